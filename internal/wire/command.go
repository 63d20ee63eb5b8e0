package wire

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/srg/blip/btle"
)

// Encode renders a command line: keyword, space-separated arguments, newline.
// Empty arguments are skipped so optional trailing fields can be passed through.
func Encode(keyword string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, keyword)
	for _, a := range args {
		if a != "" {
			parts = append(parts, a)
		}
	}
	return strings.Join(parts, " ") + "\n"
}

func handle(h uint16) string {
	return fmt.Sprintf("%X", h)
}

// Conn asks the helper to connect; iface < 0 leaves the controller choice to the helper.
func Conn(addr, addrType string, iface int) string {
	return Encode("conn", addr, addrType, btle.InterfaceName(iface))
}

// Disc disconnects the current link
func Disc() string { return Encode("disc") }

// Stat requests a status record
func Stat() string { return Encode("stat") }

// Quit asks the helper to exit
func Quit() string { return Encode("quit") }

// Svcs discovers primary services, all of them when filter is nil
func Svcs(filter *btle.UUID) string {
	if filter == nil {
		return Encode("svcs")
	}
	return Encode("svcs", filter.String())
}

// Incl discovers included services in a handle range
func Incl(start, end uint16) string {
	return Encode("incl", handle(start), handle(end))
}

// Char discovers characteristics in a handle range, optionally by type
func Char(start, end uint16, filter *btle.UUID) string {
	if filter == nil {
		return Encode("char", handle(start), handle(end))
	}
	return Encode("char", handle(start), handle(end), filter.String())
}

// Desc discovers descriptors in a handle range
func Desc(start, end uint16) string {
	return Encode("desc", handle(start), handle(end))
}

// Rd reads an attribute by handle
func Rd(h uint16) string {
	return Encode("rd", handle(h))
}

// Rdu reads attributes by type within a handle range
func Rdu(u btle.UUID, start, end uint16) string {
	return Encode("rdu", u.String(), handle(start), handle(end))
}

// Wr writes an attribute; wrr asks for a write response
func Wr(h uint16, data []byte, withResponse bool) string {
	cmd := "wr"
	if withResponse {
		cmd = "wrr"
	}
	// the payload field is always present, even when empty
	return fmt.Sprintf("%s %s %s\n", cmd, handle(h), hex.EncodeToString(data))
}

// Secu sets the link security level
func Secu(level string) string {
	return Encode("secu", level)
}

// MTU requests an ATT MTU exchange
func MTU(mtu int) string {
	return Encode("mtu", fmt.Sprintf("%x", mtu))
}

// ScanCmd returns the scan keyword for the chosen mode
func ScanCmd(passive bool) string {
	if passive {
		return "pasv"
	}
	return "scan"
}

// Scan starts an active or passive scan
func Scan(passive bool) string { return Encode(ScanCmd(passive)) }

// ScanEnd stops the matching scan mode
func ScanEnd(passive bool) string { return Encode(ScanCmd(passive) + "end") }

// LEOn powers up the LE side of the controller
func LEOn() string { return Encode("le", "on") }

// Pair and Unpair are management commands on the current link
func Pair() string   { return Encode("pair") }
func Unpair() string { return Encode("unpair") }

// OOBData holds pairing out-of-band values as hex strings. A pair is sent
// only when both its confirm and random values are set.
type OOBData struct {
	C192, R192 string
	C256, R256 string
}

// RemoteOOB hands the peer's out-of-band data to the helper before pairing
func RemoteOOB(addr, addrType string, oob OOBData, iface int) string {
	args := []string{addr, addrType}
	if oob.C192 != "" && oob.R192 != "" {
		args = append(args, "C_192", oob.C192, "R_192", oob.R192)
	}
	if oob.C256 != "" && oob.R256 != "" {
		args = append(args, "C_256", oob.C256, "R_256", oob.R256)
	}
	return Encode("remote_oob", append(args, btle.InterfaceName(iface))...)
}

// LocalOOB asks the controller for its own out-of-band data
func LocalOOB(iface int) string {
	return Encode("local_oob", btle.InterfaceName(iface))
}
