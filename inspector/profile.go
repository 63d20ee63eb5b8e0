package inspector

import (
	"encoding/hex"

	"github.com/srg/blip/btle"
	"github.com/srg/blip/gatt"
)

// DescriptorInfo describes one descriptor
type DescriptorInfo struct {
	UUID   string `json:"uuid"`
	Name   string `json:"name,omitempty"`
	Handle uint16 `json:"handle"`
}

// CharacteristicInfo describes one characteristic and, when read, its value
type CharacteristicInfo struct {
	UUID        string           `json:"uuid"`
	Name        string           `json:"name,omitempty"`
	Handle      uint16           `json:"handle"`
	ValueHandle uint16           `json:"value_handle"`
	Properties  []string         `json:"properties"`
	Value       string           `json:"value,omitempty"`
	ReadError   string           `json:"read_error,omitempty"`
	Descriptors []DescriptorInfo `json:"descriptors"`
}

// ServiceInfo describes one service
type ServiceInfo struct {
	UUID            string               `json:"uuid"`
	Name            string               `json:"name,omitempty"`
	Start           uint16               `json:"start"`
	End             uint16               `json:"end"`
	Characteristics []CharacteristicInfo `json:"characteristics"`
}

// DeviceProfile is the discovered attribute tree of a peripheral
type DeviceProfile struct {
	Address  string        `json:"address"`
	AddrType string        `json:"addr_type"`
	MTU      int           `json:"mtu"`
	Services []ServiceInfo `json:"services"`
}

// Profile walks every service, characteristic and descriptor. With readLimit
// above zero, readable values are read and truncated to readLimit bytes; a
// GATT error on a read is recorded and the walk goes on.
func Profile(conn *gatt.Connection, readLimit int) (*DeviceProfile, error) {
	services, err := conn.Services()
	if err != nil {
		return nil, err
	}

	names := conn.Names()
	p := &DeviceProfile{
		Address:  conn.Address(),
		AddrType: conn.AddressType(),
		MTU:      conn.MTU(),
		Services: make([]ServiceInfo, 0, len(services)),
	}

	for _, svc := range services {
		si := ServiceInfo{
			UUID:            svc.UUID.String(),
			Name:            names.Lookup(svc.UUID),
			Start:           svc.Start,
			End:             svc.End,
			Characteristics: []CharacteristicInfo{},
		}

		chars, err := svc.Characteristics(nil)
		if err != nil {
			return nil, err
		}
		for _, ch := range chars {
			ci := CharacteristicInfo{
				UUID:        ch.UUID.String(),
				Name:        names.Lookup(ch.UUID),
				Handle:      ch.Handle,
				ValueHandle: ch.ValueHandle,
				Properties:  ch.Properties.Names(),
				Descriptors: []DescriptorInfo{},
			}

			if readLimit > 0 && ch.SupportsRead() {
				val, err := ch.Read()
				switch {
				case err == nil:
					if len(val) > readLimit {
						val = val[:readLimit]
					}
					ci.Value = hex.EncodeToString(val)
				case btle.IsKind(err, btle.KindGatt):
					ci.ReadError = err.Error()
				default:
					return nil, err
				}
			}

			descs, err := ch.Descriptors(nil, 0)
			if err != nil {
				return nil, err
			}
			for _, d := range descs {
				ci.Descriptors = append(ci.Descriptors, DescriptorInfo{
					UUID:   d.UUID.String(),
					Name:   names.Lookup(d.UUID),
					Handle: d.Handle,
				})
			}
			si.Characteristics = append(si.Characteristics, ci)
		}
		p.Services = append(p.Services, si)
	}
	return p, nil
}
