package sensor

import (
	"encoding/hex"
	"math"
	"testing"

	"github.com/srg/blip/btle"
	"github.com/srg/blip/internal/bledb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func values(r Reading) map[string]float64 {
	out := make(map[string]float64, len(r.Fields))
	for _, f := range r.Fields {
		out[f.Name] = f.Value
	}
	return out
}

func TestTempPressure(t *testing.T) {
	r, err := TempPressure(mustHex(t, "0100a0860100fa00"))
	require.NoError(t, err)

	assert.Equal(t, "environmental", r.Kind)
	assert.EqualValues(t, 1, r.Timestamp)
	assert.Equal(t, map[string]float64{"pressure": 1000, "temperature": 25}, values(r))
	assert.Equal(t, "environmental ts=1 pressure=1000mbar temperature=25°C", r.String())
}

func TestMotion(t *testing.T) {
	// acc 1000/-1000/0 mg, gyro 10/0/-10, mag 1000/0/0 mGauss
	r, err := Motion(mustHex(t, "0200" + "e80318fc0000" + "0a000000f6ff" + "e80300000000"))
	require.NoError(t, err)

	v := values(r)
	assert.Len(t, r.Fields, 9)
	assert.EqualValues(t, 2, r.Timestamp)
	assert.InDelta(t, 1.0, v["acc_x"], 1e-9)
	assert.InDelta(t, -1.0, v["acc_y"], 1e-9)
	assert.InDelta(t, 1.0, v["gyro_x"], 1e-9)
	assert.InDelta(t, -1.0, v["gyro_z"], 1e-9)
	assert.InDelta(t, 100.0, v["mag_x"], 1e-9)
}

func TestQuaternions(t *testing.T) {
	// qi1 = 10000, qk3 = -5000
	r, err := Quaternions(mustHex(t, "0300"+"102700000000"+"000000000000"+"00000000"+"78ec"))
	require.NoError(t, err)

	v := values(r)
	assert.Len(t, r.Fields, 9)
	assert.InDelta(t, 1.0, v["qi1"], 1e-9)
	assert.InDelta(t, -0.5, v["qk3"], 1e-9)
	assert.Zero(t, v["qj2"])
}

func TestPitchRoll(t *testing.T) {
	r, err := PitchRoll(mustHex(t, "0400" + "0020" + "00e0"))
	require.NoError(t, err)

	v := values(r)
	assert.InDelta(t, 180/math.Pi, v["pitch"], 1e-9)
	assert.InDelta(t, -180/math.Pi, v["roll"], 1e-9)
}

func TestDecoders_RejectWrongLength(t *testing.T) {
	tests := []struct {
		name string
		fn   Decoder
		data string
	}{
		{"temp pressure short", TempPressure, "0100a086"},
		{"motion long", Motion, "00000000000000000000000000000000000000000000"},
		{"quaternions empty", Quaternions, ""},
		{"pitch roll short", PitchRoll, "0400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fn(mustHex(t, tt.data))
			require.Error(t, err)
			assert.True(t, btle.IsKind(err, btle.KindDecode))
		})
	}
}

func TestForCharacteristic(t *testing.T) {
	d, ok := ForCharacteristic(btle.MustParseUUID(bledb.PitchRollUUID))
	require.True(t, ok)
	r, err := d(mustHex(t, "000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "pitch_roll", r.Kind)

	_, ok = ForCharacteristic(btle.UUIDFromInt(0x2a00))
	assert.False(t, ok)
}
