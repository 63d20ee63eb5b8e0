package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/srg/blip/btle"
	"github.com/srg/blip/gatt"
	"github.com/srg/blip/internal/bledb"
	"github.com/srg/blip/internal/sensor"
	"github.com/srg/blip/pkg/config"
)

// target is a characteristic named either by handle or by type
type target struct {
	handle uint16
	uuid   btle.UUID
	byUUID bool
}

func (t target) String() string {
	if t.byUUID {
		return t.uuid.String()
	}
	return fmt.Sprintf("handle 0x%04x", t.handle)
}

func registry(cfg *config.Config) (*bledb.Registry, error) {
	if cfg.NamesFile == "" {
		return bledb.Builtin(), nil
	}
	return bledb.LoadFile(cfg.NamesFile)
}

// parseTarget accepts "0x0025" for a value handle, a UUID in short or long
// form, or an attribute name such as "batteryLevel".
func parseTarget(arg string, reg *bledb.Registry) (target, error) {
	if h, ok := strings.CutPrefix(strings.ToLower(arg), "0x"); ok {
		v, err := strconv.ParseUint(h, 16, 16)
		if err != nil || v == 0 {
			return target{}, fmt.Errorf("invalid handle %q", arg)
		}
		return target{handle: uint16(v)}, nil
	}
	if u, err := btle.ParseUUID(arg); err == nil {
		return target{uuid: u, byUUID: true}, nil
	}
	if u, ok := reg.ByAttr(arg); ok {
		return target{uuid: u, byUUID: true}, nil
	}
	return target{}, fmt.Errorf("unknown characteristic %q: use a handle (0x25), a UUID or a name such as batteryLevel", arg)
}

// findCharacteristic searches every service for the first characteristic matching t
func findCharacteristic(conn *gatt.Connection, t target) (*gatt.Characteristic, error) {
	services, err := conn.Services()
	if err != nil {
		return nil, err
	}
	for _, svc := range services {
		var filter *btle.UUID
		if t.byUUID {
			filter = &t.uuid
		}
		chars, err := svc.Characteristics(filter)
		if err != nil {
			return nil, err
		}
		for _, ch := range chars {
			if t.byUUID || ch.ValueHandle == t.handle {
				return ch, nil
			}
		}
	}
	return nil, btle.NewError(btle.KindGatt, "characteristic %s not found", t)
}

func printable(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for _, r := range string(data) {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// formatValue renders a value: sensor readings decoded, text quoted, else hex
func formatValue(u btle.UUID, data []byte) string {
	if decode, ok := sensor.ForCharacteristic(u); ok {
		if r, err := decode(data); err == nil {
			return r.String()
		}
	}
	h := hex.EncodeToString(data)
	if printable(data) {
		return fmt.Sprintf("%s %q", h, string(data))
	}
	return h
}

// parseHexValue accepts hex with optional 0x prefix and separators
func parseHexValue(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value: %w", err)
	}
	return b, nil
}
