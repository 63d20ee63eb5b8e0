package scanner

import (
	"bytes"
	"encoding/hex"
	"encoding/json"

	"github.com/srg/blip/btle"
	"github.com/srg/blip/internal/advdata"
	"github.com/srg/blip/internal/wire"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var addrTypes = map[int64]string{
	1: btle.AddrTypePublic,
	2: btle.AddrTypeRandom,
}

// ScanEntry accumulates everything heard from one advertiser
type ScanEntry struct {
	Addr        string
	Iface       int
	AddrType    string
	RSSI        int
	Connectable bool
	RawData     []byte
	UpdateCount int

	scanData *orderedmap.OrderedMap[advdata.Type, []byte]
}

// NewScanEntry creates an entry for a canonical address
func NewScanEntry(addr string, iface int) *ScanEntry {
	return &ScanEntry{
		Addr:     addr,
		Iface:    iface,
		scanData: orderedmap.New[advdata.Type, []byte](),
	}
}

// Update folds one scan record into the entry and reports whether any
// advertising field is new or changed.
func (e *ScanEntry) Update(rec wire.Record) (bool, error) {
	typ, _ := rec.Int("type")
	addrType := addrTypes[typ]
	if e.AddrType != "" && addrType != e.AddrType {
		return false, btle.NewError(btle.KindProtocol, "address type changed during scan, for address %s", e.Addr)
	}

	e.UpdateCount++
	e.AddrType = addrType
	rssi, _ := rec.Int("rssi")
	e.RSSI = -int(rssi)
	flag, _ := rec.Int("flag")
	e.Connectable = flag&0x4 == 0

	data := rec.Bytes("d")
	if data == nil {
		data = []byte{}
	}
	e.RawData = data

	isNewData := false
	for _, r := range advdata.Decode(data) {
		if old, ok := e.scanData.Get(r.Type); !ok || !bytes.Equal(old, r.Value) {
			isNewData = true
		}
		e.scanData.Set(r.Type, r.Value)
	}
	return isNewData, nil
}

// Description names an advertising type code
func (e *ScanEntry) Description(code advdata.Type) string {
	return code.Description()
}

// Value decodes the latest value seen for code; nil when never seen
func (e *ScanEntry) Value(code advdata.Type) any {
	val, ok := e.scanData.Get(code)
	if !ok {
		return nil
	}
	return advdata.Value(code, val)
}

// ValueText renders the latest value seen for code; "" when never seen
func (e *ScanEntry) ValueText(code advdata.Type) string {
	val, ok := e.scanData.Get(code)
	if !ok {
		return ""
	}
	return advdata.ValueText(code, val)
}

// Field is one advertising field in display form
type Field struct {
	Code        advdata.Type `json:"code"`
	Description string       `json:"description"`
	Value       string       `json:"value"`
}

// ScanData lists the fields in the order they were first seen
func (e *ScanEntry) ScanData() []Field {
	out := make([]Field, 0, e.scanData.Len())
	for p := e.scanData.Oldest(); p != nil; p = p.Next() {
		out = append(out, Field{
			Code:        p.Key,
			Description: p.Key.Description(),
			Value:       advdata.ValueText(p.Key, p.Value),
		})
	}
	return out
}

// Name returns the complete local name, else the short one
func (e *ScanEntry) Name() string {
	if v, ok := e.Value(advdata.CompleteLocalName).(string); ok {
		return v
	}
	if v, ok := e.Value(advdata.ShortLocalName).(string); ok {
		return v
	}
	return ""
}

// Clone copies the entry so it can outlive further updates
func (e *ScanEntry) Clone() *ScanEntry {
	c := *e
	c.RawData = append([]byte(nil), e.RawData...)
	c.scanData = orderedmap.New[advdata.Type, []byte]()
	for p := e.scanData.Oldest(); p != nil; p = p.Next() {
		c.scanData.Set(p.Key, p.Value)
	}
	return &c
}

// MarshalJSON renders the entry for CLI output
func (e *ScanEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Addr        string  `json:"addr"`
		AddrType    string  `json:"addr_type"`
		Iface       int     `json:"iface"`
		RSSI        int     `json:"rssi"`
		Connectable bool    `json:"connectable"`
		UpdateCount int     `json:"update_count"`
		Name        string  `json:"name,omitempty"`
		RawData     string  `json:"raw_data"`
		ScanData    []Field `json:"scan_data"`
	}{
		Addr:        e.Addr,
		AddrType:    e.AddrType,
		Iface:       e.Iface,
		RSSI:        e.RSSI,
		Connectable: e.Connectable,
		UpdateCount: e.UpdateCount,
		Name:        e.Name(),
		RawData:     hex.EncodeToString(e.RawData),
		ScanData:    e.ScanData(),
	})
}
