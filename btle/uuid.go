package btle

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
)

// baseSuffix is the Bluetooth SIG base UUID tail, xxxxxxxx-0000-1000-8000-00805f9b34fb
const baseSuffix = "00001000800000805f9b34fb"

// UUID is a 128-bit attribute identifier kept in canonical big-endian byte order.
// Equality and map hashing operate on the 16 bytes only, so short and long
// textual forms of the same value are interchangeable as map keys.
type UUID [16]byte

// ParseUUID accepts 32-digit hex strings with or without dashes, 4 to 8 digit
// short forms (expanded onto the SIG base UUID), and an optional 0x prefix.
func ParseUUID(s string) (UUID, error) {
	var u UUID

	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "0x")
	v = strings.ReplaceAll(v, "-", "")
	if v == "" {
		return u, NewError(KindValidation, "empty UUID")
	}

	if len(v) <= 8 {
		if len(v) == 4 {
			// go-ble's parser covers the common 16-bit case and rejects non-hex input.
			if _, err := ble.Parse(v); err != nil {
				return u, &Error{Kind: KindValidation, Msg: fmt.Sprintf("invalid UUID %q", s), Err: err}
			}
		}
		v = strings.Repeat("0", 8-len(v)) + v + baseSuffix
	}

	raw, err := hex.DecodeString(v)
	if err != nil {
		return u, &Error{Kind: KindValidation, Msg: fmt.Sprintf("invalid UUID %q", s), Err: err}
	}
	if len(raw) != len(u) {
		return u, NewError(KindValidation, "UUID must be 16 bytes, got %q (len=%d)", s, len(raw))
	}
	copy(u[:], raw)
	return u, nil
}

// MustParseUUID is ParseUUID that panics on error; for package-level constants.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// UUIDFromInt expands a 16- or 32-bit assigned number onto the SIG base UUID
func UUIDFromInt(v uint32) UUID {
	return MustParseUUID(fmt.Sprintf("%08x", v))
}

// UUIDFromLittleEndian builds a UUID from an over-the-air little-endian group of
// 2, 4 or 16 bytes, as found in advertisement service lists.
func UUIDFromLittleEndian(b []byte) (UUID, error) {
	switch len(b) {
	case 2, 4, 16:
	default:
		return UUID{}, NewError(KindValidation, "UUID group must be 2, 4 or 16 bytes, got %d", len(b))
	}
	return ParseUUID(hex.EncodeToString(ble.Reverse(b)))
}

// String returns the canonical lower-case dashed form
func (u UUID) String() string {
	s := hex.EncodeToString(u[:])
	return strings.Join([]string{s[0:8], s[8:12], s[12:16], s[16:20], s[20:32]}, "-")
}

// IsZero reports whether u is the all-zero UUID
func (u UUID) IsZero() bool {
	return u == UUID{}
}

// Short returns the 16/32-bit assigned number when u sits on the SIG base UUID
func (u UUID) Short() (uint32, bool) {
	s := hex.EncodeToString(u[:])
	if !strings.HasSuffix(s, baseSuffix) {
		return 0, false
	}
	var v uint32
	for _, b := range u[:4] {
		v = v<<8 | uint32(b)
	}
	return v, true
}

// CommonName resolves the human-readable name through names, falling back to
// the short form for SIG-based values and the full form otherwise.
// A nil table is allowed.
func (u UUID) CommonName(names *NameTable) string {
	if name := names.Lookup(u); name != "" {
		return name
	}
	s := u.String()
	if strings.HasSuffix(s, "-0000-1000-8000-00805f9b34fb") {
		s = s[0:8]
		if strings.HasPrefix(s, "0000") {
			s = s[4:]
		}
	}
	return s
}

// MarshalText renders the canonical form for JSON/YAML output
func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText parses any form accepted by ParseUUID
func (u *UUID) UnmarshalText(text []byte) error {
	parsed, err := ParseUUID(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Well-known GATT attribute types
var (
	PrimaryServiceUUID   = UUIDFromInt(0x2800)
	SecondaryServiceUUID = UUIDFromInt(0x2801)
	IncludeUUID          = UUIDFromInt(0x2802)
	CharacteristicUUID   = UUIDFromInt(0x2803)
	ClientConfigUUID     = UUIDFromInt(0x2902)
)
