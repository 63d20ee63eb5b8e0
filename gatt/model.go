package gatt

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/srg/blip/btle"
)

// Properties is the characteristic property bitmask
type Properties ble.Property

var propertyNames = []struct {
	bit  ble.Property
	name string
}{
	{ble.CharBroadcast, "BROADCAST"},
	{ble.CharRead, "READ"},
	{ble.CharWriteNR, "WRITE NO RESPONSE"},
	{ble.CharWrite, "WRITE"},
	{ble.CharNotify, "NOTIFY"},
	{ble.CharIndicate, "INDICATE"},
	{ble.CharSignedWrite, "WRITE SIGNED"},
	{ble.CharExtended, "EXTENDED PROPERTIES"},
}

// Has reports whether every bit of p is set
func (ps Properties) Has(p ble.Property) bool {
	return ble.Property(ps)&p == p
}

// Names lists the set properties in bit order
func (ps Properties) Names() []string {
	var out []string
	for _, pn := range propertyNames {
		if ps.Has(pn.bit) {
			out = append(out, pn.name)
		}
	}
	return out
}

func (ps Properties) String() string {
	return strings.Join(ps.Names(), " ")
}

// Client characteristic configuration values
const (
	CCCDDisable  uint16 = 0x0000
	CCCDNotify   uint16 = 0x0001
	CCCDIndicate uint16 = 0x0002
	CCCDBoth     uint16 = 0x0003
)

// EncodeCCCD renders a configuration value in its two-byte little-endian form
func EncodeCCCD(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

// Service is a primary service and its handle range
type Service struct {
	conn  *Connection
	UUID  btle.UUID
	Start uint16
	End   uint16

	chars []*Characteristic
	descs []*Descriptor
}

func filterChars(chars []*Characteristic, filter *btle.UUID) []*Characteristic {
	if filter == nil {
		return chars
	}
	var out []*Characteristic
	for _, ch := range chars {
		if ch.UUID == *filter {
			out = append(out, ch)
		}
	}
	return out
}

func filterDescs(descs []*Descriptor, filter *btle.UUID) []*Descriptor {
	if filter == nil {
		return descs
	}
	var out []*Descriptor
	for _, d := range descs {
		if d.UUID == *filter {
			out = append(out, d)
		}
	}
	return out
}

// Characteristics lists the service's characteristics, fetched once
func (s *Service) Characteristics(filter *btle.UUID) ([]*Characteristic, error) {
	if s.chars == nil {
		if s.End <= s.Start {
			s.chars = []*Characteristic{}
		} else {
			chars, err := s.conn.GetCharacteristics(s.Start, s.End, nil)
			if err != nil {
				return nil, err
			}
			for i, ch := range chars {
				ch.end = s.End
				if i+1 < len(chars) {
					ch.end = chars[i+1].Handle - 1
				}
			}
			s.chars = chars
		}
	}
	return filterChars(s.chars, filter), nil
}

// Descriptors lists every attribute inside the service except characteristic declarations
func (s *Service) Descriptors(filter *btle.UUID) ([]*Descriptor, error) {
	if s.descs == nil {
		s.descs = []*Descriptor{}
		if s.End > s.Start {
			all, err := s.conn.GetDescriptors(s.Start+1, s.End)
			if err != nil {
				s.descs = nil
				return nil, err
			}
			for _, d := range all {
				if d.UUID != btle.CharacteristicUUID {
					s.descs = append(s.descs, d)
				}
			}
		}
	}
	return filterDescs(s.descs, filter), nil
}

// Name is the common name of the service identifier
func (s *Service) Name() string {
	return s.UUID.CommonName(s.conn.Names())
}

func (s *Service) String() string {
	return fmt.Sprintf("Service <uuid=%s handleStart=%d handleEnd=%d>", s.Name(), s.Start, s.End)
}

// Characteristic is a characteristic declaration
type Characteristic struct {
	conn        *Connection
	UUID        btle.UUID
	Handle      uint16
	Properties  Properties
	ValueHandle uint16

	end   uint16
	descs []*Descriptor
}

// Read reads the characteristic value
func (ch *Characteristic) Read() ([]byte, error) {
	return ch.conn.ReadCharacteristic(ch.ValueHandle)
}

// Write writes the characteristic value
func (ch *Characteristic) Write(value []byte, withResponse bool) error {
	_, err := ch.conn.WriteCharacteristic(ch.ValueHandle, value, withResponse)
	return err
}

func (ch *Characteristic) SupportsRead() bool     { return ch.Properties.Has(ble.CharRead) }
func (ch *Characteristic) SupportsNotify() bool   { return ch.Properties.Has(ble.CharNotify) }
func (ch *Characteristic) SupportsIndicate() bool { return ch.Properties.Has(ble.CharIndicate) }

// PropertiesString lists the property names separated by spaces
func (ch *Characteristic) PropertiesString() string {
	return ch.Properties.String()
}

// Descriptors lists the descriptors following the value handle, stopping at the
// next service or characteristic declaration. endHandle 0 uses the known end
// of the characteristic (0xFFFF when it was not reached through a service).
func (ch *Characteristic) Descriptors(filter *btle.UUID, endHandle uint16) ([]*Descriptor, error) {
	if ch.descs == nil {
		if endHandle == 0 {
			endHandle = ch.end
		}
		descs := []*Descriptor{}
		if ch.ValueHandle < endHandle {
			all, err := ch.conn.GetDescriptors(ch.ValueHandle+1, endHandle)
			if err != nil {
				return nil, err
			}
			for _, d := range all {
				if d.UUID == btle.PrimaryServiceUUID || d.UUID == btle.SecondaryServiceUUID || d.UUID == btle.CharacteristicUUID {
					break
				}
				descs = append(descs, d)
			}
		}
		ch.descs = descs
	}
	return filterDescs(ch.descs, filter), nil
}

// EnableNotifications writes mode (one of the CCCD values) to the client
// configuration descriptor
func (ch *Characteristic) EnableNotifications(mode uint16) error {
	cccd, err := ch.Descriptors(&btle.ClientConfigUUID, 0)
	if err != nil {
		return err
	}
	if len(cccd) == 0 {
		return btle.NewError(btle.KindGatt, "characteristic %s has no client configuration descriptor", ch.Name())
	}
	return cccd[0].Write(EncodeCCCD(mode), true)
}

// Name is the common name of the characteristic identifier
func (ch *Characteristic) Name() string {
	return ch.UUID.CommonName(ch.conn.Names())
}

func (ch *Characteristic) String() string {
	return fmt.Sprintf("Characteristic <%s>", ch.Name())
}

// Descriptor is any attribute reported by descriptor discovery
type Descriptor struct {
	conn   *Connection
	UUID   btle.UUID
	Handle uint16
}

// Read reads the descriptor value
func (d *Descriptor) Read() ([]byte, error) {
	return d.conn.ReadCharacteristic(d.Handle)
}

// Write writes the descriptor value
func (d *Descriptor) Write(value []byte, withResponse bool) error {
	_, err := d.conn.WriteCharacteristic(d.Handle, value, withResponse)
	return err
}

// Name is the common name of the descriptor identifier
func (d *Descriptor) Name() string {
	return d.UUID.CommonName(d.conn.Names())
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("Descriptor <%s>", d.Name())
}
