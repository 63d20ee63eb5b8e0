package btle

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUUID(t *testing.T) {
	battery := "0000180f-0000-1000-8000-00805f9b34fb"
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "180f", want: battery},
		{in: "0x180F", want: battery},
		{in: "0000180f", want: battery},
		{in: battery, want: battery},
		{in: "0000180F00001000800000805F9B34FB", want: battery},
		{in: "00e00000-0001-11e1-ac36-0002a5d5c51b", want: "00e00000-0001-11e1-ac36-0002a5d5c51b"},
		{in: "  2a19 ", want: "00002a19-0000-1000-8000-00805f9b34fb"},
		{in: "", wantErr: true},
		{in: "zzzz", wantErr: true},
		{in: "0000180f-0000-1000-8000", wantErr: true},
		{in: "0000180f-0000-1000-8000-00805f9b34fbff", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u, err := ParseUUID(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestUUID_EqualityAcrossForms(t *testing.T) {
	names := map[UUID]string{MustParseUUID("2a19"): "Battery Level"}
	assert.Equal(t, "Battery Level", names[MustParseUUID("00002A19-0000-1000-8000-00805F9B34FB")])
	assert.Equal(t, UUIDFromInt(0x2a19), MustParseUUID("0x2a19"))
}

func TestUUID_Short(t *testing.T) {
	v, ok := UUIDFromInt(0x2902).Short()
	assert.True(t, ok)
	assert.EqualValues(t, 0x2902, v)

	_, ok = MustParseUUID("00e00000-0001-11e1-ac36-0002a5d5c51b").Short()
	assert.False(t, ok)
	assert.True(t, UUID{}.IsZero())
}

func TestUUID_CommonName(t *testing.T) {
	names := NewNameTable(map[UUID]string{UUIDFromInt(0x180f): "Battery Service"})
	assert.Equal(t, "Battery Service", UUIDFromInt(0x180f).CommonName(names))
	assert.Equal(t, "2a19", UUIDFromInt(0x2a19).CommonName(names))
	assert.Equal(t, "12345678", UUIDFromInt(0x12345678).CommonName(nil))

	vendor := "00e00000-0001-11e1-ac36-0002a5d5c51b"
	assert.Equal(t, vendor, MustParseUUID(vendor).CommonName(names))
}

func TestUUIDFromLittleEndian(t *testing.T) {
	u, err := UUIDFromLittleEndian([]byte{0x0f, 0x18})
	require.NoError(t, err)
	assert.Equal(t, UUIDFromInt(0x180f), u)

	u, err = UUIDFromLittleEndian([]byte{
		0x1b, 0xc5, 0xd5, 0xa5, 0x02, 0x00, 0x36, 0xac,
		0xe1, 0x11, 0x01, 0x00, 0x00, 0x00, 0xe0, 0x00,
	})
	require.NoError(t, err)
	assert.Equal(t, "00e00000-0001-11e1-ac36-0002a5d5c51b", u.String())

	_, err = UUIDFromLittleEndian([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUUID_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]UUID{"u": UUIDFromInt(0x2a19)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"u":"00002a19-0000-1000-8000-00805f9b34fb"}`, string(data))

	var back map[string]UUID
	require.NoError(t, json.Unmarshal([]byte(`{"u":"2a19"}`), &back))
	assert.Equal(t, UUIDFromInt(0x2a19), back["u"])
	assert.Error(t, json.Unmarshal([]byte(`{"u":"nope"}`), &back))
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr, addrType string
		ok             bool
	}{
		{"11:22:33:44:55:66", AddrTypePublic, true},
		{"c0:83:1d:31:45:48", AddrTypeRandom, true},
		{"11:22:33:44:55", AddrTypePublic, false},
		{"11:22:33:44:55:6", AddrTypePublic, false},
		{"11:22:33:44:55:zz", AddrTypePublic, false},
		{"11-22-33-44-55-66", AddrTypePublic, false},
		{"11:22:33:44:55:66", "static", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr+"/"+tt.addrType, func(t *testing.T) {
			err := ValidateAddress(tt.addr, tt.addrType)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsKind(err, KindValidation), "got %v", err)
			}
		})
	}
}

func TestFormatAddress(t *testing.T) {
	s, err := FormatAddress([]byte{0xc0, 0x83, 0x1d, 0x31, 0x45, 0x48})
	require.NoError(t, err)
	assert.Equal(t, "c0:83:1d:31:45:48", s)

	_, err = FormatAddress([]byte{1, 2})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestSecurityAndInterface(t *testing.T) {
	assert.NoError(t, ValidateSecurityLevel(SecurityHigh))
	assert.ErrorIs(t, ValidateSecurityLevel("extreme"), ErrValidation)
	assert.Equal(t, "hci1", InterfaceName(1))
	assert.Equal(t, "", InterfaceName(-1))
}

func TestError(t *testing.T) {
	cause := errors.New("broken pipe")
	err := &Error{Kind: KindGatt, Msg: "read failed", Status: "atterr", Detail: "Attribute can't be read", Err: cause}

	assert.Equal(t, "read failed (code: atterr, error: Attribute can't be read): broken pipe", err.Error())
	assert.ErrorIs(t, err, ErrGatt)
	assert.NotErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal", (&Error{Kind: KindInternal}).Error())

	wrapped := fmt.Errorf("inspect: %w", NewError(KindManagement, "scan %s", "denied").WithStatus("rejected", ""))
	assert.True(t, IsKind(wrapped, KindManagement))
	assert.Contains(t, wrapped.Error(), "scan denied (code: rejected)")
	assert.False(t, IsKind(cause, KindGatt))
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(NewError(KindGatt, "x")))
	assert.False(t, IsFatal(NewError(KindValidation, "x")))
	assert.True(t, IsFatal(NewError(KindDisconnected, "x")))
	assert.True(t, IsFatal(errors.New("other")))
}

func TestNameTable(t *testing.T) {
	var nilTable *NameTable
	assert.Equal(t, "", nilTable.Lookup(UUIDFromInt(1)))
	assert.Equal(t, 0, nilTable.Len())

	tbl := NewNameTable(map[UUID]string{UUIDFromInt(1): "one", UUIDFromInt(2): "two"})
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "two", tbl.Lookup(MustParseUUID("0002")))
}
