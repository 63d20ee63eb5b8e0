package wire

import (
	"fmt"

	"github.com/srg/blip/btle"
)

// LocalOOBData is the controller's out-of-band pairing data, each field upper-case hex
type LocalOOBData struct {
	Address string `json:"address"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	C256    string `json:"c_256"`
	R256    string `json:"r_256"`
	Flags   string `json:"flags"`
}

// oobField is one length/type-prefixed EIR field of the local_oob payload
type oobField struct {
	name   string
	length byte
	typ    byte
}

var localOOBLayout = []oobField{
	{"address", 8, 0x1b},
	{"role", 2, 0x1c},
	{"confirm", 17, 0x22},
	{"random", 17, 0x23},
	{"flags", 2, 0x01},
}

// ParseLocalOOB decodes the d field of an oob record
func ParseLocalOOB(rec Record) (*LocalOOBData, error) {
	data := rec.Bytes("d")
	if data == nil {
		return nil, btle.NewError(btle.KindManagement, "failed to get local OOB data")
	}

	values := make(map[string][]byte, len(localOOBLayout))
	off := 0
	for _, f := range localOOBLayout {
		end := off + 1 + int(f.length)
		if end > len(data) || data[off] != f.length || data[off+1] != f.typ {
			return nil, btle.NewError(btle.KindManagement, "malformed local OOB data (%s)", f.name)
		}
		values[f.name] = data[off+2 : end]
		off = end
	}

	addr := values["address"]
	return &LocalOOBData{
		Address: fmt.Sprintf("%X", addr[:6]),
		Type:    fmt.Sprintf("%X", addr[6:]),
		Role:    fmt.Sprintf("%X", values["role"]),
		C256:    fmt.Sprintf("%X", values["confirm"]),
		R256:    fmt.Sprintf("%X", values["random"]),
		Flags:   fmt.Sprintf("%X", values["flags"]),
	}, nil
}
