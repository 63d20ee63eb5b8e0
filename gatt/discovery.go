package gatt

import (
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/srg/blip/btle"
	"github.com/srg/blip/internal/wire"
)

func parseUUIDs(rec wire.Record) ([]btle.UUID, error) {
	raw := rec.Strs("uuid")
	out := make([]btle.UUID, len(raw))
	for i, s := range raw {
		u, err := btle.ParseUUID(s)
		if err != nil {
			return nil, &btle.Error{Kind: btle.KindDecode, Msg: "invalid identifier in reply", Err: err}
		}
		out[i] = u
	}
	return out, nil
}

func (c *Connection) servicesFrom(rec wire.Record) ([]*Service, error) {
	starts, ends := rec.Ints("hstart"), rec.Ints("hend")
	uuids, err := parseUUIDs(rec)
	if err != nil {
		return nil, err
	}
	if len(starts) != len(ends) || len(starts) != len(uuids) {
		return nil, btle.NewError(btle.KindProtocol,
			"mismatched service reply: %d starts, %d ends, %d identifiers", len(starts), len(ends), len(uuids))
	}
	out := make([]*Service, len(starts))
	for i := range starts {
		out[i] = &Service{conn: c, UUID: uuids[i], Start: uint16(starts[i]), End: uint16(ends[i])}
	}
	return out, nil
}

// DiscoverServices lists every primary service and replaces the cached map
func (c *Connection) DiscoverServices() (map[btle.UUID]*Service, error) {
	rec, err := c.exchange(wire.Svcs(nil), wire.KindFind, 0)
	if err != nil {
		return nil, err
	}
	svcs, err := c.servicesFrom(rec)
	if err != nil {
		return nil, err
	}

	c.services = make(map[btle.UUID]*Service, len(svcs))
	for _, s := range svcs {
		c.services[s.UUID] = s
	}
	c.logger.WithField("count", len(svcs)).Debug("Services discovered")
	return c.services, nil
}

// Services returns the services ordered by start handle, discovering them on first use
func (c *Connection) Services() ([]*Service, error) {
	if c.services == nil {
		if _, err := c.DiscoverServices(); err != nil {
			return nil, err
		}
	}
	out := make([]*Service, 0, len(c.services))
	for _, s := range c.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// GetServiceByUUID returns the cached service or asks the helper for it
func (c *Connection) GetServiceByUUID(id btle.UUID) (*Service, error) {
	if s, ok := c.services[id]; ok {
		return s, nil
	}

	rec, err := c.exchange(wire.Svcs(&id), wire.KindFind, 0)
	if err != nil {
		return nil, err
	}
	if !rec.Has("hstart") {
		return nil, btle.NewError(btle.KindGatt, "service %s not found", id.CommonName(c.opts.Names))
	}
	starts, ends := rec.Ints("hstart"), rec.Ints("hend")
	if len(ends) == 0 {
		return nil, btle.NewError(btle.KindProtocol, "service reply without end handle")
	}

	s := &Service{conn: c, UUID: id, Start: uint16(starts[0]), End: uint16(ends[0])}
	if c.services == nil {
		c.services = make(map[btle.UUID]*Service)
	}
	c.services[id] = s
	return s, nil
}

// GetIncludedServices lists services included within the handle range
func (c *Connection) GetIncludedServices(start, end uint16) ([]*Service, error) {
	rec, err := c.exchange(wire.Incl(start, end), wire.KindFind, 0)
	if err != nil {
		return nil, err
	}
	return c.servicesFrom(rec)
}

// GetCharacteristics lists characteristic declarations in the range, optionally
// only those with the given identifier
func (c *Connection) GetCharacteristics(start, end uint16, filter *btle.UUID) ([]*Characteristic, error) {
	rec, err := c.exchange(wire.Char(start, end, filter), wire.KindFind, 0)
	if err != nil {
		return nil, err
	}

	hnds, props, vhnds := rec.Ints("hnd"), rec.Ints("props"), rec.Ints("vhnd")
	uuids, err := parseUUIDs(rec)
	if err != nil {
		return nil, err
	}
	n := len(hnds)
	if len(props) != n || len(vhnds) != n || len(uuids) != n {
		return nil, btle.NewError(btle.KindProtocol, "mismatched characteristic reply")
	}

	out := make([]*Characteristic, 0, n)
	for i := range hnds {
		if !inRange(hnds[i], start, end) || !inRange(vhnds[i], start, end) {
			c.outOfRange("characteristic", hnds[i], start, end)
			continue
		}
		out = append(out, &Characteristic{
			conn:        c,
			UUID:        uuids[i],
			Handle:      uint16(hnds[i]),
			Properties:  Properties(props[i]),
			ValueHandle: uint16(vhnds[i]),
			end:         0xFFFF,
		})
	}
	return out, nil
}

func inRange(h int64, start, end uint16) bool {
	return h >= int64(start) && h <= int64(end)
}

func (c *Connection) outOfRange(what string, h int64, start, end uint16) {
	c.logger.WithFields(logrus.Fields{
		"handle": h,
		"start":  start,
		"end":    end,
	}).Warn("Helper reported " + what + " outside the requested range, skipping")
}

// GetDescriptors lists every attribute in the range
func (c *Connection) GetDescriptors(start, end uint16) ([]*Descriptor, error) {
	rec, err := c.exchange(wire.Desc(start, end), wire.KindDescriptors, 0)
	if err != nil {
		return nil, err
	}

	hnds := rec.Ints("hnd")
	uuids, err := parseUUIDs(rec)
	if err != nil {
		return nil, err
	}
	if len(hnds) != len(uuids) {
		return nil, btle.NewError(btle.KindProtocol, "mismatched descriptor reply")
	}

	out := make([]*Descriptor, 0, len(hnds))
	for i := range hnds {
		if !inRange(hnds[i], start, end) {
			c.outOfRange("descriptor", hnds[i], start, end)
			continue
		}
		out = append(out, &Descriptor{conn: c, UUID: uuids[i], Handle: uint16(hnds[i])})
	}
	return out, nil
}

// ReadCharacteristic reads the attribute value at handle
func (c *Connection) ReadCharacteristic(handle uint16) ([]byte, error) {
	rec, err := c.exchange(wire.Rd(handle), wire.KindRead, 0)
	if err != nil {
		return nil, err
	}
	return rec.Bytes("d"), nil
}

// ReadCharacteristicByUUID reads the first attribute with the identifier in the range
func (c *Connection) ReadCharacteristicByUUID(id btle.UUID, start, end uint16) (wire.Record, error) {
	return c.exchange(wire.Rdu(id, start, end), wire.KindRead, 0)
}

// WriteCharacteristic writes value at handle. Unacknowledged writes are
// truncated by the helper to one packet of MTU-3 bytes.
func (c *Connection) WriteCharacteristic(handle uint16, value []byte, withResponse bool) (wire.Record, error) {
	if !withResponse && len(value) > c.opts.MTU-3 {
		c.logger.WithFields(logrus.Fields{
			"handle": handle,
			"length": len(value),
			"mtu":    c.opts.MTU,
		}).Warn("Write without response exceeds one packet and will be truncated")
	}
	return c.exchange(wire.Wr(handle, value, withResponse), wire.KindWrite, 0)
}
