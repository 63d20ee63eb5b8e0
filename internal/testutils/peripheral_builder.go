package testutils

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-ble/ble"
	"github.com/srg/blip/btle"
)

// CharacteristicConfig represents a characteristic of a simulated peripheral
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig represents a primary service of a simulated peripheral
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete GATT profile of a simulated peripheral
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralBuilder builds a simulated peripheral that answers helper GATT commands
type PeripheralBuilder struct {
	profile DeviceProfileConfig
	address string
}

// NewPeripheralBuilder creates an empty peripheral builder
func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{
		profile: DeviceProfileConfig{Services: []ServiceConfig{}},
		address: "11:22:33:44:55:66",
	}
}

// WithAddress sets the address reported in the connected status
func (b *PeripheralBuilder) WithAddress(addr string) *PeripheralBuilder {
	b.address = addr
	return b
}

// WithService adds a service to the profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID:            uuid,
		Characteristics: []CharacteristicConfig{},
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics,
		CharacteristicConfig{UUID: uuid, Properties: properties, Value: value})
	return b
}

// FromJSON fills the profile from JSON
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &config); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.profile = config
	return b
}

// GetServices returns the configured services
func (b *PeripheralBuilder) GetServices() []ServiceConfig {
	return b.profile.Services
}

// ParseProperties converts a comma-separated property list into a ble.Property mask
func ParseProperties(props string) ble.Property {
	if props == "" {
		return ble.CharRead | ble.CharWrite | ble.CharNotify
	}

	var p ble.Property
	for _, name := range strings.Split(props, ",") {
		switch strings.TrimSpace(name) {
		case "broadcast":
			p |= ble.CharBroadcast
		case "read":
			p |= ble.CharRead
		case "write-without-response", "writenr":
			p |= ble.CharWriteNR
		case "write":
			p |= ble.CharWrite
		case "notify":
			p |= ble.CharNotify
		case "indicate":
			p |= ble.CharIndicate
		case "signed-write":
			p |= ble.CharSignedWrite
		case "extended":
			p |= ble.CharExtended
		}
	}
	return p
}

// SimChar is a characteristic laid out on the simulated attribute table
type SimChar struct {
	UUID        btle.UUID
	Decl        uint16
	ValueHandle uint16
	CCCD        uint16 // zero when the characteristic cannot notify or indicate
	Props       ble.Property
}

// SimService is a service laid out on the simulated attribute table
type SimService struct {
	UUID       btle.UUID
	Start, End uint16
	Chars      []*SimChar
}

type simAttr struct {
	handle uint16
	uuid   btle.UUID
}

// Peripheral is a simulated GATT server speaking the helper protocol
type Peripheral struct {
	Address  string
	Services []*SimService
	Values   map[uint16][]byte
	Written  map[uint16][]byte

	attrs []simAttr
	chars map[uint16]*SimChar
}

// Build lays out handles: each service declaration is followed by, per
// characteristic, its declaration, its value and a CCCD when it can notify.
func (b *PeripheralBuilder) Build() *Peripheral {
	p := &Peripheral{
		Address: b.address,
		Values:  make(map[uint16][]byte),
		Written: make(map[uint16][]byte),
		chars:   make(map[uint16]*SimChar),
	}

	h := uint16(1)
	for _, sc := range b.profile.Services {
		svc := &SimService{UUID: btle.MustParseUUID(sc.UUID), Start: h}
		p.attrs = append(p.attrs, simAttr{h, btle.PrimaryServiceUUID})
		h++

		for _, cc := range sc.Characteristics {
			ch := &SimChar{
				UUID:        btle.MustParseUUID(cc.UUID),
				Decl:        h,
				ValueHandle: h + 1,
				Props:       ParseProperties(cc.Properties),
			}
			p.attrs = append(p.attrs, simAttr{ch.Decl, btle.CharacteristicUUID}, simAttr{ch.ValueHandle, ch.UUID})
			p.Values[ch.ValueHandle] = append([]byte(nil), cc.Value...)
			p.chars[ch.ValueHandle] = ch
			h += 2

			if ch.Props&(ble.CharNotify|ble.CharIndicate) != 0 {
				ch.CCCD = h
				p.attrs = append(p.attrs, simAttr{h, btle.ClientConfigUUID})
				p.Values[h] = []byte{0, 0}
				h++
			}
			svc.Chars = append(svc.Chars, ch)
		}

		svc.End = h - 1
		p.Services = append(p.Services, svc)
	}
	return p
}

// Transport returns a FakeTransport answered by this peripheral
func (p *Peripheral) Transport() *FakeTransport {
	return NewFakeTransport().WithResponder(p.Respond)
}

// Char finds a characteristic by UUID
func (p *Peripheral) Char(uuid string) *SimChar {
	u := btle.MustParseUUID(uuid)
	for _, svc := range p.Services {
		for _, ch := range svc.Chars {
			if ch.UUID == u {
				return ch
			}
		}
	}
	return nil
}

func parseHandle(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 16, 16)
	return uint16(v), err
}

func attNotFound() []string {
	return []string{ErrLine("atterr", 0x0A, "Attribute not found")}
}

func badCommand(cmd string) []string {
	return []string{ErrLine("badcmd", 0, "unknown command "+cmd)}
}

// Respond answers one helper command
func (p *Peripheral) Respond(cmd string) []string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "conn":
		return []string{
			StatLine("tryconn"),
			Line(Txt("rsp", "stat"), Txt("state", "conn"), Txt("dst", p.Address), Hex("mtu", ble.DefaultMTU)),
		}
	case "disc":
		return []string{StatLine("disc")}
	case "stat", "secu", "mtu":
		return []string{StatLine("conn")}
	case "pair", "unpair":
		return []string{MgmtLine("success")}
	case "quit":
		return nil
	case "svcs":
		return p.respondServices(fields[1:])
	case "incl":
		return []string{Line(Txt("rsp", "find"))}
	case "char":
		return p.respondChars(fields[1:])
	case "desc":
		return p.respondDescs(fields[1:])
	case "rd":
		return p.respondRead(fields[1:])
	case "rdu":
		return p.respondReadByUUID(fields[1:])
	case "wr", "wrr":
		return p.respondWrite(fields[1:])
	default:
		return badCommand(cmd)
	}
}

func (p *Peripheral) respondServices(args []string) []string {
	segs := []string{Txt("rsp", "find")}
	var filter *btle.UUID
	if len(args) > 0 {
		u, err := btle.ParseUUID(args[0])
		if err != nil {
			return badCommand("svcs " + args[0])
		}
		filter = &u
	}
	for _, svc := range p.Services {
		if filter != nil && svc.UUID != *filter {
			continue
		}
		segs = append(segs, Hex("hstart", int(svc.Start)), Hex("hend", int(svc.End)), Txt("uuid", svc.UUID.String()))
	}
	return []string{Line(segs...)}
}

func (p *Peripheral) respondChars(args []string) []string {
	if len(args) < 2 {
		return badCommand("char")
	}
	start, err1 := parseHandle(args[0])
	end, err2 := parseHandle(args[1])
	if err1 != nil || err2 != nil {
		return badCommand("char " + strings.Join(args, " "))
	}
	var filter *btle.UUID
	if len(args) > 2 {
		u, err := btle.ParseUUID(args[2])
		if err != nil {
			return badCommand("char " + strings.Join(args, " "))
		}
		filter = &u
	}

	segs := []string{Txt("rsp", "find")}
	found := 0
	for _, svc := range p.Services {
		for _, ch := range svc.Chars {
			if ch.Decl < start || ch.Decl > end || (filter != nil && ch.UUID != *filter) {
				continue
			}
			segs = append(segs,
				Hex("hnd", int(ch.Decl)),
				Txt("uuid", ch.UUID.String()),
				Hex("props", int(ch.Props)),
				Hex("vhnd", int(ch.ValueHandle)))
			found++
		}
	}
	if found == 0 {
		return attNotFound()
	}
	return []string{Line(segs...)}
}

func (p *Peripheral) respondDescs(args []string) []string {
	if len(args) < 2 {
		return badCommand("desc")
	}
	start, err1 := parseHandle(args[0])
	end, err2 := parseHandle(args[1])
	if err1 != nil || err2 != nil {
		return badCommand("desc " + strings.Join(args, " "))
	}

	segs := []string{Txt("rsp", "desc")}
	found := 0
	for _, a := range p.attrs {
		if a.handle < start || a.handle > end {
			continue
		}
		segs = append(segs, Hex("hnd", int(a.handle)), Txt("uuid", a.uuid.String()))
		found++
	}
	if found == 0 {
		return attNotFound()
	}
	return []string{Line(segs...)}
}

func (p *Peripheral) respondRead(args []string) []string {
	if len(args) < 1 {
		return badCommand("rd")
	}
	h, err := parseHandle(args[0])
	if err != nil {
		return badCommand("rd " + args[0])
	}
	val, ok := p.Values[h]
	if !ok {
		return []string{ErrLine("atterr", 0x01, "Invalid handle")}
	}
	if ch, isChar := p.chars[h]; isChar && ch.Props&ble.CharRead == 0 {
		return []string{ErrLine("atterr", 0x02, "Attribute can't be read")}
	}
	return []string{ReadLine(val)}
}

func (p *Peripheral) respondReadByUUID(args []string) []string {
	if len(args) < 3 {
		return badCommand("rdu")
	}
	u, err := btle.ParseUUID(args[0])
	if err != nil {
		return badCommand("rdu " + args[0])
	}
	start, err1 := parseHandle(args[1])
	end, err2 := parseHandle(args[2])
	if err1 != nil || err2 != nil {
		return badCommand("rdu " + strings.Join(args, " "))
	}
	for _, a := range p.attrs {
		if a.uuid == u && a.handle >= start && a.handle <= end {
			return []string{Line(Txt("rsp", "rd"), Hex("hnd", int(a.handle)), Bin("d", p.Values[a.handle]))}
		}
	}
	return attNotFound()
}

func (p *Peripheral) respondWrite(args []string) []string {
	if len(args) < 1 {
		return badCommand("wr")
	}
	h, err := parseHandle(args[0])
	if err != nil {
		return badCommand("wr " + args[0])
	}
	var payload string
	if len(args) > 1 {
		payload = args[1]
	}
	data, err := hex.DecodeString(payload)
	if err != nil {
		return badCommand("wr " + strings.Join(args, " "))
	}
	if _, ok := p.Values[h]; !ok {
		return []string{ErrLine("atterr", 0x01, "Invalid handle")}
	}
	p.Values[h] = data
	p.Written[h] = data
	return []string{WriteAck()}
}
