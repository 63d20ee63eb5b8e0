package testutils

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/srg/blip/internal/wire"
)

// Line joins tag=value segments into one helper response line
func Line(segments ...string) string {
	return strings.Join(segments, wire.FieldSeparator) + "\n"
}

// Txt, Hex and Bin render typed field values
func Txt(tag, v string) string     { return tag + "=$" + v }
func Hex(tag string, v int) string { return fmt.Sprintf("%s=h%X", tag, v) }
func Bin(tag string, b []byte) string {
	return tag + "=b" + hex.EncodeToString(b)
}

// StatLine is a status record with the given state
func StatLine(state string) string {
	return Line(Txt("rsp", "stat"), Txt("state", state))
}

// MgmtLine is a management reply with the given code
func MgmtLine(code string) string {
	return Line(Txt("rsp", "mgmt"), Txt("code", code))
}

// ErrLine is an error record with code and optional estat/emsg
func ErrLine(code string, estat int, emsg string) string {
	segs := []string{Txt("rsp", "err"), Txt("code", code)}
	if estat != 0 {
		segs = append(segs, Hex("estat", estat))
	}
	if emsg != "" {
		segs = append(segs, Txt("emsg", emsg))
	}
	return Line(segs...)
}

// NotifyLine is a notification carrying data for handle
func NotifyLine(handle int, data []byte) string {
	return Line(Txt("rsp", "ntfy"), Hex("hnd", handle), Bin("d", data))
}

// IndicateLine is an indication carrying data for handle
func IndicateLine(handle int, data []byte) string {
	return Line(Txt("rsp", "ind"), Hex("hnd", handle), Bin("d", data))
}

// ReadLine is a read reply
func ReadLine(data []byte) string {
	return Line(Txt("rsp", "rd"), Bin("d", data))
}

// WriteAck is a write reply
func WriteAck() string {
	return Line(Txt("rsp", "wr"))
}
