// Package advdata decodes the length/type/value records of advertising and
// scan-response payloads.
package advdata

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/srg/blip/btle"
)

// Type is an advertising data type code
type Type uint8

const (
	Flags                   Type = 0x01
	Incomplete16BServices   Type = 0x02
	Complete16BServices     Type = 0x03
	Incomplete32BServices   Type = 0x04
	Complete32BServices     Type = 0x05
	Incomplete128BServices  Type = 0x06
	Complete128BServices    Type = 0x07
	ShortLocalName          Type = 0x08
	CompleteLocalName       Type = 0x09
	TxPower                 Type = 0x0A
	ServiceSolicitation16B  Type = 0x14
	ServiceSolicitation128B Type = 0x15
	ServiceData16B          Type = 0x16
	PublicTargetAddress     Type = 0x17
	RandomTargetAddress     Type = 0x18
	Appearance              Type = 0x19
	AdvertisingInterval     Type = 0x1A
	ServiceSolicitation32B  Type = 0x1F
	ServiceData32B          Type = 0x20
	ServiceData128B         Type = 0x21
	Manufacturer            Type = 0xFF
)

var descriptions = map[Type]string{
	Flags:                   "Flags",
	Incomplete16BServices:   "Incomplete 16b Services",
	Complete16BServices:     "Complete 16b Services",
	Incomplete32BServices:   "Incomplete 32b Services",
	Complete32BServices:     "Complete 32b Services",
	Incomplete128BServices:  "Incomplete 128b Services",
	Complete128BServices:    "Complete 128b Services",
	ShortLocalName:          "Short Local Name",
	CompleteLocalName:       "Complete Local Name",
	TxPower:                 "Tx Power",
	ServiceSolicitation16B:  "16b Service Solicitation",
	ServiceSolicitation128B: "128b Service Solicitation",
	ServiceData16B:          "16b Service Data",
	PublicTargetAddress:     "Public Target Address",
	RandomTargetAddress:     "Random Target Address",
	Appearance:              "Appearance",
	AdvertisingInterval:     "Advertising Interval",
	ServiceSolicitation32B:  "32b Service Solicitation",
	ServiceData32B:          "32b Service Data",
	ServiceData128B:         "128b Service Data",
	Manufacturer:            "Manufacturer",
}

// Description is the registry name, or the hex code for unknown types
func (t Type) Description() string {
	if d, ok := descriptions[t]; ok {
		return d
	}
	return fmt.Sprintf("0x%x", uint8(t))
}

func (t Type) String() string { return t.Description() }

// Record is one decoded advertising field
type Record struct {
	Type  Type
	Value []byte
}

// Decode splits raw into records. A length running past the end yields a
// truncated value; decoding stops when fewer than two bytes remain.
func Decode(raw []byte) []Record {
	var out []Record
	for i := 0; len(raw)-i >= 2; {
		l := int(raw[i])
		end := i + l + 1
		if end > len(raw) {
			end = len(raw)
		}
		out = append(out, Record{Type: Type(raw[i+1]), Value: raw[i+2 : max(end, i+2)]})
		i += l + 1
	}
	return out
}

// DecodeName reads a local name as UTF-8, falling back to ASCII with '?' for
// bytes outside the printable range.
func DecodeName(val []byte) string {
	if utf8.Valid(val) {
		return string(val)
	}
	var b strings.Builder
	for _, c := range val {
		if c >= 32 && c <= 127 {
			b.WriteByte(c)
		} else {
			b.WriteByte('?')
		}
	}
	return b.String()
}

// DecodeUUIDList reads groups of n little-endian bytes; a trailing partial group is ignored
func DecodeUUIDList(val []byte, n int) []btle.UUID {
	var out []btle.UUID
	for i := 0; i+n <= len(val); i += n {
		u, err := btle.UUIDFromLittleEndian(val[i : i+n])
		if err != nil {
			return out
		}
		out = append(out, u)
	}
	return out
}

func listWidth(t Type) int {
	switch t {
	case Incomplete16BServices, Complete16BServices, ServiceSolicitation16B:
		return 2
	case Incomplete32BServices, Complete32BServices, ServiceSolicitation32B:
		return 4
	case Incomplete128BServices, Complete128BServices, ServiceSolicitation128B:
		return 16
	}
	return 0
}

// IsName reports whether t carries a local name
func IsName(t Type) bool {
	return t == ShortLocalName || t == CompleteLocalName
}

// Value returns a string for names, []btle.UUID for service lists and the raw bytes otherwise
func Value(t Type, val []byte) any {
	if IsName(t) {
		return DecodeName(val)
	}
	if n := listWidth(t); n > 0 {
		return DecodeUUIDList(val, n)
	}
	return val
}

// ValueText renders names verbatim, service lists comma-joined and anything else as hex
func ValueText(t Type, val []byte) string {
	switch v := Value(t, val).(type) {
	case string:
		return v
	case []btle.UUID:
		parts := make([]string, len(v))
		for i, u := range v {
			parts[i] = u.String()
		}
		return strings.Join(parts, ",")
	default:
		return hex.EncodeToString(val)
	}
}
