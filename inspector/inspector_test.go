package inspector

import (
	"errors"
	"testing"

	"github.com/srg/blip/btle"
	"github.com/srg/blip/gatt"
	"github.com/srg/blip/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type InspectorSuite struct {
	testutils.HelperSuite
	phases []string
}

func TestInspectorSuite(t *testing.T) {
	suite.Run(t, new(InspectorSuite))
}

func (s *InspectorSuite) SetupTest() {
	s.HelperSuite.SetupTest()
	s.phases = nil
}

func (s *InspectorSuite) options() *gatt.ConnectOptions {
	opts := gatt.DefaultConnectOptions()
	opts.Address = "11:22:33:44:55:66"
	opts.Transport = s.Factory()
	return opts
}

func (s *InspectorSuite) progress(phase string) {
	s.phases = append(s.phases, phase)
}

func (s *InspectorSuite) TestInspectDevice_DisconnectsAfterCallback() {
	n, err := InspectDevice(s.options(), s.Logger, s.progress, func(c *gatt.Connection) (int, error) {
		s.Equal(gatt.Connected, c.State())
		svcs, err := c.Services()
		return len(svcs), err
	})

	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal([]string{"Connecting", "Connected", "Discovering services", "Processing results"}, s.phases)
	s.Contains(s.Transport.Writes(), "disc")
	s.True(s.Transport.Closed())
}

func (s *InspectorSuite) TestInspectDevice_CallbackErrorStillDisconnects() {
	boom := errors.New("boom")
	_, err := InspectDevice(s.options(), s.Logger, nil, func(*gatt.Connection) (struct{}, error) {
		return struct{}{}, boom
	})

	s.ErrorIs(err, boom)
	s.Contains(s.Transport.Writes(), "disc")
	s.True(s.Transport.Closed())
}

func (s *InspectorSuite) TestInspectDevice_ConnectFailure() {
	s.Transport.On("conn 11:22:33:44:55:66 public", testutils.StatLine("disc"))

	called := false
	_, err := InspectDevice(s.options(), s.Logger, s.progress, func(*gatt.Connection) (bool, error) {
		called = true
		return true, nil
	})

	s.Require().Error(err)
	s.True(btle.IsKind(err, btle.KindDisconnected))
	s.False(called)
	s.Equal([]string{"Connecting", "Failed"}, s.phases)
	s.NotContains(s.Transport.Writes(), "svcs")
}

func (s *InspectorSuite) TestProfile() {
	s.PeripheralBuilder = testutils.NewPeripheralBuilder().
		WithService("180F").
		WithCharacteristic("2A19", "read,notify", []byte{50}).
		WithService("180A").
		WithCharacteristic("2A29", "read", []byte("ACME")).
		WithCharacteristic("2A24", "read", []byte("model-1234"))
	s.HelperSuite.SetupTest()
	s.Transport.On("rd 7", testutils.ErrLine("atterr", 0x02, "Attribute can't be read"))

	profile, err := InspectDevice(s.options(), s.Logger, nil, func(c *gatt.Connection) (*DeviceProfile, error) {
		return Profile(c, 4)
	})
	s.Require().NoError(err)

	s.Equal("11:22:33:44:55:66", profile.Address)
	s.Equal(btle.AddrTypePublic, profile.AddrType)
	s.Require().Len(profile.Services, 2)

	battery := profile.Services[0]
	s.Equal(btle.UUIDFromInt(0x180f).String(), battery.UUID)
	s.Equal("Battery Service", battery.Name)
	s.Require().Len(battery.Characteristics, 1)

	level := battery.Characteristics[0]
	s.Equal("Battery Level", level.Name)
	s.Equal([]string{"READ", "NOTIFY"}, level.Properties)
	s.Equal("32", level.Value)
	s.Empty(level.ReadError)
	s.Require().Len(level.Descriptors, 1)
	s.Equal(btle.UUIDFromInt(0x2902).String(), level.Descriptors[0].UUID)
	s.EqualValues(4, level.Descriptors[0].Handle)

	info := profile.Services[1]
	s.Require().Len(info.Characteristics, 2)
	s.Empty(info.Characteristics[0].Value)
	s.Contains(info.Characteristics[0].ReadError, "Attribute can't be read")
	s.Equal("6d6f6465", info.Characteristics[1].Value, "values are truncated to the read limit")
}

func (s *InspectorSuite) TestProfile_SkipsReadsWhenLimitIsZero() {
	_, err := InspectDevice(s.options(), s.Logger, nil, func(c *gatt.Connection) (*DeviceProfile, error) {
		return Profile(c, 0)
	})
	s.Require().NoError(err)

	for _, w := range s.Transport.Writes() {
		s.NotRegexp(`^rd `, w)
	}
}
