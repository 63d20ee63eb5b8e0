package btle

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address types understood by the helper
const (
	AddrTypePublic = "public"
	AddrTypeRandom = "random"
)

// Security levels accepted by the secu command
const (
	SecurityLow    = "low"
	SecurityMedium = "medium"
	SecurityHigh   = "high"
)

// ValidateAddress checks that addr is six colon-separated hex octets
// and that addrType is public or random.
func ValidateAddress(addr, addrType string) error {
	octets := strings.Split(addr, ":")
	if len(octets) != 6 {
		return NewError(KindValidation, "expected MAC address, got %q", addr)
	}
	for _, o := range octets {
		if len(o) != 2 {
			return NewError(KindValidation, "expected MAC address, got %q", addr)
		}
		if _, err := hex.DecodeString(o); err != nil {
			return NewError(KindValidation, "expected MAC address, got %q", addr)
		}
	}
	if addrType != AddrTypePublic && addrType != AddrTypeRandom {
		return NewError(KindValidation, "expected address type public or random, got %q", addrType)
	}
	return nil
}

// ValidateSecurityLevel checks level against the three levels the helper knows
func ValidateSecurityLevel(level string) error {
	switch level {
	case SecurityLow, SecurityMedium, SecurityHigh:
		return nil
	default:
		return NewError(KindValidation, "expected security level low, medium or high, got %q", level)
	}
}

// FormatAddress renders 6 raw address bytes, in wire order, as canonical
// lower-case colon-separated hex
func FormatAddress(raw []byte) (string, error) {
	if len(raw) != 6 {
		return "", NewError(KindDecode, "address must be 6 bytes, got %d", len(raw))
	}
	s := hex.EncodeToString(raw)
	parts := make([]string, 0, 6)
	for i := 0; i < len(s); i += 2 {
		parts = append(parts, s[i:i+2])
	}
	return strings.Join(parts, ":"), nil
}

// InterfaceName renders the hciN device name for a controller index, "" when iface < 0
func InterfaceName(iface int) string {
	if iface < 0 {
		return ""
	}
	return fmt.Sprintf("hci%d", iface)
}
