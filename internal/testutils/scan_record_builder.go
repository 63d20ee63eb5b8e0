package testutils

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/srg/blip/btle"
)

// ScanRecordBuilder builds helper scan result lines for testing.
// Advertising structures are emitted in the order they are added.
type ScanRecordBuilder struct {
	address     string
	addrType    int
	rssi        int
	connectable bool
	adv         []byte
}

// NewScanRecordBuilder creates a builder for a connectable public device at -50 dBm
func NewScanRecordBuilder() *ScanRecordBuilder {
	return &ScanRecordBuilder{
		address:     "00:11:22:33:44:55",
		addrType:    1,
		rssi:        -50,
		connectable: true,
	}
}

// WithAddress sets the device address in aa:bb:cc:dd:ee:ff form
func (b *ScanRecordBuilder) WithAddress(addr string) *ScanRecordBuilder {
	b.address = addr
	return b
}

// WithRandomAddress marks the address as random
func (b *ScanRecordBuilder) WithRandomAddress() *ScanRecordBuilder {
	b.addrType = 2
	return b
}

// WithAddressType sets the raw wire address type (1 public, 2 random)
func (b *ScanRecordBuilder) WithAddressType(t int) *ScanRecordBuilder {
	b.addrType = t
	return b
}

// WithRSSI sets the signal strength in dBm
func (b *ScanRecordBuilder) WithRSSI(rssi int) *ScanRecordBuilder {
	b.rssi = rssi
	return b
}

// WithConnectable sets whether the device accepts connections
func (b *ScanRecordBuilder) WithConnectable(c bool) *ScanRecordBuilder {
	b.connectable = c
	return b
}

// WithField appends one raw advertising structure
func (b *ScanRecordBuilder) WithField(adType byte, value []byte) *ScanRecordBuilder {
	b.adv = append(b.adv, byte(len(value)+1), adType)
	b.adv = append(b.adv, value...)
	return b
}

// WithRaw appends raw advertising bytes verbatim
func (b *ScanRecordBuilder) WithRaw(raw []byte) *ScanRecordBuilder {
	b.adv = append(b.adv, raw...)
	return b
}

// WithFlags adds an AD flags structure
func (b *ScanRecordBuilder) WithFlags(flags byte) *ScanRecordBuilder {
	return b.WithField(0x01, []byte{flags})
}

// WithName adds a complete local name
func (b *ScanRecordBuilder) WithName(name string) *ScanRecordBuilder {
	return b.WithField(0x09, []byte(name))
}

// WithShortName adds a shortened local name
func (b *ScanRecordBuilder) WithShortName(name string) *ScanRecordBuilder {
	return b.WithField(0x08, []byte(name))
}

// WithTxPower adds a TX power level
func (b *ScanRecordBuilder) WithTxPower(power int8) *ScanRecordBuilder {
	return b.WithField(0x0A, []byte{byte(power)})
}

// WithServices adds complete service lists; 16-bit and 128-bit identifiers go to separate structures.
// UUIDs can be in short form (e.g., "180D") or full form.
func (b *ScanRecordBuilder) WithServices(uuids ...string) *ScanRecordBuilder {
	var short, long []byte
	for _, s := range uuids {
		u := btle.MustParseUUID(s)
		if v, ok := u.Short(); ok && v <= 0xFFFF {
			short = binary.LittleEndian.AppendUint16(short, uint16(v))
			continue
		}
		for i := len(u) - 1; i >= 0; i-- {
			long = append(long, u[i])
		}
	}
	if len(short) > 0 {
		b.WithField(0x03, short)
	}
	if len(long) > 0 {
		b.WithField(0x07, long)
	}
	return b
}

// WithManufacturerData adds manufacturer-specific data, company id first (little-endian)
func (b *ScanRecordBuilder) WithManufacturerData(company uint16, data []byte) *ScanRecordBuilder {
	return b.WithField(0xFF, append(binary.LittleEndian.AppendUint16(nil, company), data...))
}

// WithServiceData adds 16-bit service data
func (b *ScanRecordBuilder) WithServiceData(uuid16 uint16, data []byte) *ScanRecordBuilder {
	return b.WithField(0x16, append(binary.LittleEndian.AppendUint16(nil, uuid16), data...))
}

// FromJSON fills builder fields from a JSON string with format support.
// Panics on invalid JSON as this is intended for test data setup.
func (b *ScanRecordBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *ScanRecordBuilder {
	var data struct {
		Address     string   `json:"address"`
		Random      bool     `json:"random"`
		RSSI        *int     `json:"rssi"`
		Connectable *bool    `json:"connectable"`
		Name        string   `json:"name"`
		Flags       *byte    `json:"flags"`
		Services    []string `json:"services"`
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &data); err != nil {
		panic(fmt.Sprintf("ScanRecordBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	if data.Address != "" {
		b.WithAddress(data.Address)
	}
	if data.Random {
		b.WithRandomAddress()
	}
	if data.RSSI != nil {
		b.WithRSSI(*data.RSSI)
	}
	if data.Connectable != nil {
		b.WithConnectable(*data.Connectable)
	}
	if data.Flags != nil {
		b.WithFlags(*data.Flags)
	}
	if data.Name != "" {
		b.WithName(data.Name)
	}
	if len(data.Services) > 0 {
		b.WithServices(data.Services...)
	}
	return b
}

// AdvData returns the advertising payload built so far
func (b *ScanRecordBuilder) AdvData() []byte {
	return append([]byte(nil), b.adv...)
}

// Build renders the scan record line as the helper prints it
func (b *ScanRecordBuilder) Build() string {
	addr := make([]byte, 0, 6)
	for _, octet := range strings.Split(b.address, ":") {
		var v byte
		if _, err := fmt.Sscanf(octet, "%02x", &v); err != nil {
			panic(fmt.Sprintf("ScanRecordBuilder: bad address %q", b.address))
		}
		addr = append(addr, v)
	}

	flag := 0
	if !b.connectable {
		flag = 0x4
	}

	return Line(
		Txt("rsp", "scan"),
		Bin("addr", addr),
		Hex("type", b.addrType),
		Hex("rssi", -b.rssi),
		Hex("flag", flag),
		Bin("d", b.adv),
	)
}
