// Package sensor decodes the fixed-layout notification payloads of the
// SensorTile environmental and inertial characteristics.
package sensor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/srg/blip/btle"
	"github.com/srg/blip/internal/bledb"
)

// Field is one decoded quantity
type Field struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Reading is one decoded payload
type Reading struct {
	Kind      string  `json:"kind"`
	Timestamp uint16  `json:"timestamp"`
	Fields    []Field `json:"fields"`
}

func (r Reading) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s ts=%d", r.Kind, r.Timestamp)
	for _, f := range r.Fields {
		fmt.Fprintf(&sb, " %s=%g", f.Name, f.Value)
		if f.Unit != "" {
			sb.WriteString(f.Unit)
		}
	}
	return sb.String()
}

// Decoder turns a notification payload into a Reading
type Decoder func(data []byte) (Reading, error)

func unpack(kind string, data []byte, v any) error {
	if want := binary.Size(v); len(data) != want {
		return btle.NewError(btle.KindDecode, "%s payload must be %d bytes, got %d", kind, want, len(data))
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, v)
}

// TempPressure decodes timestamp, pressure (hundredths of mbar) and
// temperature (tenths of a degree).
func TempPressure(data []byte) (Reading, error) {
	var p struct {
		Timestamp   uint16
		Pressure    int32
		Temperature int16
	}
	if err := unpack("temperature/pressure", data, &p); err != nil {
		return Reading{}, err
	}
	return Reading{
		Kind:      "environmental",
		Timestamp: p.Timestamp,
		Fields: []Field{
			{Name: "pressure", Value: float64(p.Pressure) / 100, Unit: "mbar"},
			{Name: "temperature", Value: float64(p.Temperature) / 10, Unit: "°C"},
		},
	}, nil
}

// Motion decodes accelerometer (mg), gyroscope (tenths of dps) and
// magnetometer (mGauss) axes.
func Motion(data []byte) (Reading, error) {
	var p struct {
		Timestamp uint16
		Acc       [3]int16
		Gyro      [3]int16
		Mag       [3]int16
	}
	if err := unpack("motion", data, &p); err != nil {
		return Reading{}, err
	}
	r := Reading{Kind: "motion", Timestamp: p.Timestamp}
	for i, axis := range []string{"x", "y", "z"} {
		r.Fields = append(r.Fields, Field{Name: "acc_" + axis, Value: float64(p.Acc[i]) / 1000, Unit: "g"})
	}
	for i, axis := range []string{"x", "y", "z"} {
		r.Fields = append(r.Fields, Field{Name: "gyro_" + axis, Value: float64(p.Gyro[i]) / 10, Unit: "dps"})
	}
	for i, axis := range []string{"x", "y", "z"} {
		// 1 Gauss = 100 µT
		r.Fields = append(r.Fields, Field{Name: "mag_" + axis, Value: float64(p.Mag[i]) / 1000 * 100, Unit: "µT"})
	}
	return r, nil
}

// Quaternions decodes three compact (i, j, k) samples scaled by 10000
func Quaternions(data []byte) (Reading, error) {
	var p struct {
		Timestamp uint16
		Q         [3][3]int16
	}
	if err := unpack("quaternions", data, &p); err != nil {
		return Reading{}, err
	}
	r := Reading{Kind: "quaternions", Timestamp: p.Timestamp}
	for n, q := range p.Q {
		for i, c := range []string{"i", "j", "k"} {
			r.Fields = append(r.Fields, Field{Name: fmt.Sprintf("q%s%d", c, n+1), Value: float64(q[i]) / 10000})
		}
	}
	return r, nil
}

func degrees(raw int16) float64 {
	return float64(raw) / 8192 * 180 / math.Pi
}

// PitchRoll decodes pitch and roll sent as radians scaled by 8192
func PitchRoll(data []byte) (Reading, error) {
	var p struct {
		Timestamp uint16
		Pitch     int16
		Roll      int16
	}
	if err := unpack("pitch/roll", data, &p); err != nil {
		return Reading{}, err
	}
	return Reading{
		Kind:      "pitch_roll",
		Timestamp: p.Timestamp,
		Fields: []Field{
			{Name: "pitch", Value: degrees(p.Pitch), Unit: "°"},
			{Name: "roll", Value: degrees(p.Roll), Unit: "°"},
		},
	}, nil
}

var decoders = map[btle.UUID]Decoder{
	btle.MustParseUUID(bledb.EnvironmentalUUID): TempPressure,
	btle.MustParseUUID(bledb.MotionUUID):        Motion,
	btle.MustParseUUID(bledb.QuaternionsUUID):   Quaternions,
	btle.MustParseUUID(bledb.PitchRollUUID):     PitchRoll,
}

// ForCharacteristic returns the decoder registered for a characteristic type
func ForCharacteristic(u btle.UUID) (Decoder, bool) {
	d, ok := decoders[u]
	return d, ok
}
