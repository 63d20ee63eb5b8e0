package gatt

import (
	"testing"
	"time"

	"github.com/srg/blip/btle"
	"github.com/srg/blip/internal/testutils"
	"github.com/srg/blip/internal/wire"
	"github.com/srg/blip/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const peripheralAddr = "11:22:33:44:55:66"

func newConnection(f *testutils.FakeTransport, timeout time.Duration) *Connection {
	opts := DefaultConnectOptions()
	opts.Transport = f.Factory()
	opts.ConnectTimeout = timeout
	return NewConnection(opts, testutils.QuietLogger())
}

type ConnectionSuite struct {
	testutils.HelperSuite
}

func TestConnectionSuite(t *testing.T) {
	suite.Run(t, new(ConnectionSuite))
}

func (s *ConnectionSuite) connect() *Connection {
	c := newConnection(s.Transport, 0)
	s.Require().NoError(c.Connect(peripheralAddr, btle.AddrTypePublic, -1))
	return c
}

func (s *ConnectionSuite) TestConnect_SendsOneConnCommand() {
	c := s.connect()

	s.Equal(Connected, c.State())
	s.Equal([]string{"conn 11:22:33:44:55:66 public"}, s.Transport.Writes())
	s.Equal([]int{-1}, s.Transport.Ifaces)
	s.Equal(peripheralAddr, c.Address())
	s.Equal(btle.AddrTypePublic, c.AddressType())
	s.Equal(23, c.MTU())
}

func (s *ConnectionSuite) TestConnect_InterfaceSelectsController() {
	c := newConnection(s.Transport, 0)
	s.Require().NoError(c.Connect(peripheralAddr, btle.AddrTypeRandom, 1))

	s.Equal([]string{"conn 11:22:33:44:55:66 random hci1"}, s.Transport.Writes())
	s.Equal([]int{1}, s.Transport.Ifaces)
	s.Equal(1, c.Interface())
}

func (s *ConnectionSuite) TestDisconnect_SecondCallDoesNoIO() {
	c := s.connect()

	s.Require().NoError(c.Disconnect())
	s.Equal(Disconnected, c.State())
	s.True(s.Transport.Closed())
	writes := s.Transport.Writes()
	s.Equal([]string{"conn 11:22:33:44:55:66 public", "disc", "quit"}, writes)

	s.Require().NoError(c.Close())
	s.Equal(writes, s.Transport.Writes())
	s.Equal(1, s.Transport.Closes)
}

func (s *ConnectionSuite) TestDiscoverServices() {
	s.PeripheralBuilder = testutils.NewPeripheralBuilder().
		WithService("180F").
		WithCharacteristic("2A19", "read,notify", []byte{50}).
		WithService("180A").
		WithCharacteristic("2A29", "read", []byte("ACME"))
	s.HelperSuite.SetupTest()
	c := s.connect()

	svcs, err := c.DiscoverServices()
	s.Require().NoError(err)
	s.Len(svcs, 2)

	ordered, err := c.Services()
	s.Require().NoError(err)
	s.Require().Len(ordered, 2)
	s.Equal(btle.UUIDFromInt(0x180f), ordered[0].UUID)
	s.Equal(uint16(1), ordered[0].Start)
	s.Equal(uint16(4), ordered[0].End)
	s.Equal("Service <uuid=Device Information handleStart=5 handleEnd=7>", ordered[1].String())

	before := len(s.Transport.Writes())
	svc, err := c.GetServiceByUUID(btle.UUIDFromInt(0x180a))
	s.Require().NoError(err)
	s.Equal(uint16(5), svc.Start)
	s.Len(s.Transport.Writes(), before, "cached service must not hit the helper")
}

func (s *ConnectionSuite) TestGetServiceByUUID_QueriesAndCaches() {
	c := s.connect()

	svc, err := c.GetServiceByUUID(btle.MustParseUUID("180f"))
	s.Require().NoError(err)
	s.Equal(uint16(1), svc.Start)
	s.Equal(uint16(4), svc.End)
	s.Contains(s.Transport.Writes(), "svcs 0000180f-0000-1000-8000-00805f9b34fb")

	_, err = c.GetServiceByUUID(btle.MustParseUUID("1800"))
	s.Require().Error(err)
	s.ErrorIs(err, btle.ErrGatt)
	s.Equal(Connected, c.State())
}

func (s *ConnectionSuite) TestCharacteristicsAndDescriptors() {
	c := s.connect()
	svc, err := c.GetServiceByUUID(btle.UUIDFromInt(0x180f))
	s.Require().NoError(err)

	chars, err := svc.Characteristics(nil)
	s.Require().NoError(err)
	s.Require().Len(chars, 1)
	level := chars[0]
	s.Equal(uint16(2), level.Handle)
	s.Equal(uint16(3), level.ValueHandle)
	s.True(level.SupportsRead())
	s.True(level.SupportsNotify())
	s.False(level.SupportsIndicate())
	s.Equal("READ NOTIFY", level.PropertiesString())
	s.Equal("Characteristic <Battery Level>", level.String())

	descs, err := level.Descriptors(nil, 0)
	s.Require().NoError(err)
	s.Require().Len(descs, 1)
	s.Equal(btle.ClientConfigUUID, descs[0].UUID)
	s.Equal(uint16(4), descs[0].Handle)
	s.Contains(s.Transport.Writes(), "desc 4 4")

	svcDescs, err := svc.Descriptors(nil)
	s.Require().NoError(err)
	for _, d := range svcDescs {
		s.NotEqual(btle.CharacteristicUUID, d.UUID)
	}
	s.Len(svcDescs, 2)

	writes := len(s.Transport.Writes())
	_, err = svc.Characteristics(&level.UUID)
	s.Require().NoError(err)
	_, err = level.Descriptors(nil, 0)
	s.Require().NoError(err)
	s.Len(s.Transport.Writes(), writes, "memoized lookups must not hit the helper")
}

func (s *ConnectionSuite) TestEmptyServiceHasNoCharacteristics() {
	c := s.connect()
	svc := &Service{conn: c, UUID: btle.UUIDFromInt(0x1801), Start: 9, End: 9}

	chars, err := svc.Characteristics(nil)
	s.Require().NoError(err)
	s.Empty(chars)
	s.Len(s.Transport.Writes(), 1)
}

func (s *ConnectionSuite) TestReadWrite() {
	c := s.connect()

	val, err := c.ReadCharacteristic(3)
	s.Require().NoError(err)
	s.Equal([]byte{50}, val)

	_, err = c.ReadCharacteristic(9)
	s.ErrorIs(err, btle.ErrGatt)
	s.Equal(Connected, c.State())

	_, err = c.WriteCharacteristic(3, []byte{0x10, 0x20}, false)
	s.Require().NoError(err)
	s.Contains(s.Transport.Writes(), "wr 3 1020")
	s.Equal([]byte{0x10, 0x20}, s.Peripheral.Written[3])

	rec, err := c.ReadCharacteristicByUUID(btle.UUIDFromInt(0x2a19), 1, 0xffff)
	s.Require().NoError(err)
	s.Equal([]byte{0x10, 0x20}, rec.Bytes("d"))
}

func (s *ConnectionSuite) TestEnableNotificationsAndWait() {
	c := s.connect()
	svc, err := c.GetServiceByUUID(btle.UUIDFromInt(0x180f))
	s.Require().NoError(err)
	chars, err := svc.Characteristics(&btle.UUID{})
	s.Require().NoError(err)
	s.Empty(chars)
	chars, err = svc.Characteristics(nil)
	s.Require().NoError(err)

	s.Require().NoError(chars[0].EnableNotifications(CCCDNotify))
	s.Contains(s.Transport.Writes(), "wrr 4 0100")

	var got [][]byte
	c.SetObserver(NotificationFunc(func(h uint16, d []byte) {
		s.Equal(uint16(3), h)
		got = append(got, d)
	}))
	s.Transport.Queue(testutils.NotifyLine(3, []byte{49}), testutils.NotifyLine(3, []byte{48}))

	ok, err := c.WaitForNotifications(time.Second)
	s.Require().NoError(err)
	s.True(ok)
	ok, err = c.WaitForNotifications(time.Second)
	s.Require().NoError(err)
	s.True(ok)
	ok, err = c.WaitForNotifications(10 * time.Millisecond)
	s.Require().NoError(err)
	s.False(ok)
	s.Equal([][]byte{{49}, {48}}, got)
}

func (s *ConnectionSuite) TestLinkSettings() {
	c := s.connect()

	s.ErrorIs(c.SetSecurityLevel("extreme"), btle.ErrValidation)
	s.Require().NoError(c.SetSecurityLevel(btle.SecurityMedium))

	s.ErrorIs(c.SetMTU(10), btle.ErrValidation)
	s.Require().NoError(c.SetMTU(185))
	s.Equal(185, c.MTU())

	state, err := c.GetState()
	s.Require().NoError(err)
	s.Equal("conn", state)

	s.Require().NoError(c.Pair())
	s.Require().NoError(c.Unpair())

	s.Equal([]string{
		"conn 11:22:33:44:55:66 public",
		"secu medium",
		"mtu b9",
		"stat",
		"pair",
		"unpair",
	}, s.Transport.Writes())
}

func (s *ConnectionSuite) TestConnectToEntry() {
	entry := scanner.NewScanEntry(peripheralAddr, 0)
	entry.AddrType = btle.AddrTypeRandom

	c := newConnection(s.Transport, 0)
	s.Require().NoError(c.ConnectToEntry(entry))
	s.Equal([]string{"conn 11:22:33:44:55:66 random hci0"}, s.Transport.Writes())
	s.Equal([]int{0}, s.Transport.Ifaces)
}

func TestConnect_ValidationDoesNoIO(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		addrType string
	}{
		{"too few octets", "11:22:33:44:55", btle.AddrTypePublic},
		{"not hex", "11:22:33:44:55:zz", btle.AddrTypePublic},
		{"dashes", "11-22-33-44-55-66", btle.AddrTypePublic},
		{"bad type", peripheralAddr, "static"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testutils.NewFakeTransport()
			c := newConnection(f, 0)

			err := c.Connect(tt.addr, tt.addrType, -1)
			require.Error(t, err)
			assert.ErrorIs(t, err, btle.ErrValidation)
			assert.Empty(t, f.Writes())
			assert.Zero(t, f.Starts)
			assert.Equal(t, Unattached, c.State())
		})
	}
}

func TestConnect_Failures(t *testing.T) {
	conn := "conn 11:22:33:44:55:66 public"

	t.Run("refused", func(t *testing.T) {
		f := testutils.NewFakeTransport().On(conn, testutils.StatLine("tryconn"), testutils.StatLine("disc"))
		c := newConnection(f, 0)

		err := c.Connect(peripheralAddr, btle.AddrTypePublic, -1)
		require.Error(t, err)
		assert.ErrorIs(t, err, btle.ErrDisconnected)
		assert.Contains(t, err.Error(), peripheralAddr)
		assert.True(t, f.Closed())
		assert.Equal(t, Disconnected, c.State())
	})

	t.Run("timeout", func(t *testing.T) {
		f := testutils.NewFakeTransport().On(conn, testutils.StatLine("tryconn"))
		c := newConnection(f, 20*time.Millisecond)

		err := c.Connect(peripheralAddr, btle.AddrTypePublic, -1)
		require.Error(t, err)
		assert.ErrorIs(t, err, btle.ErrDisconnected)
		assert.Contains(t, err.Error(), "timed out")
		assert.True(t, f.Closed())
	})

	t.Run("helper missing", func(t *testing.T) {
		f := testutils.NewFakeTransport()
		f.StartErr = assert.AnError
		c := newConnection(f, 0)

		err := c.Connect(peripheralAddr, btle.AddrTypePublic, -1)
		assert.ErrorIs(t, err, btle.ErrInternal)
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("link lost mid-session", func(t *testing.T) {
		f := testutils.NewFakeTransport().
			On(conn, testutils.StatLine("conn")).
			On("rd 3", testutils.StatLine("disc"))
		c := newConnection(f, 0)
		require.NoError(t, c.Connect(peripheralAddr, btle.AddrTypePublic, -1))

		_, err := c.ReadCharacteristic(3)
		assert.ErrorIs(t, err, btle.ErrDisconnected)
		assert.Equal(t, Disconnected, c.State())

		require.NoError(t, c.Disconnect())
		assert.Equal(t, []string{conn, "rd 3", "quit"}, f.Writes())
	})
}

func TestConnect_OnlyOnce(t *testing.T) {
	conn := "conn 11:22:33:44:55:66 public"

	t.Run("while connected", func(t *testing.T) {
		f := testutils.NewFakeTransport().On(conn, testutils.StatLine("conn"))
		c := newConnection(f, 0)
		require.NoError(t, c.Connect(peripheralAddr, btle.AddrTypePublic, -1))

		err := c.Connect(peripheralAddr, btle.AddrTypePublic, -1)
		assert.ErrorIs(t, err, btle.ErrValidation)
		assert.Equal(t, Connected, c.State())
		assert.Equal(t, []string{conn}, f.Writes())
		assert.Equal(t, 1, f.Starts)
	})

	t.Run("after disconnect", func(t *testing.T) {
		f := testutils.NewFakeTransport().On(conn, testutils.StatLine("conn"))
		c := newConnection(f, 0)
		require.NoError(t, c.Connect(peripheralAddr, btle.AddrTypePublic, -1))
		require.NoError(t, c.Disconnect())
		writes := f.Writes()

		err := c.Connect(peripheralAddr, btle.AddrTypePublic, -1)
		assert.ErrorIs(t, err, btle.ErrValidation)
		assert.Contains(t, err.Error(), "new connection")
		assert.Equal(t, Disconnected, c.State())
		assert.Equal(t, writes, f.Writes())
		assert.Equal(t, 1, f.Starts)
	})

	t.Run("after failed attempt", func(t *testing.T) {
		f := testutils.NewFakeTransport().On(conn, testutils.StatLine("disc"))
		c := newConnection(f, 0)
		require.Error(t, c.Connect(peripheralAddr, btle.AddrTypePublic, -1))

		assert.ErrorIs(t, c.Connect(peripheralAddr, btle.AddrTypePublic, -1), btle.ErrValidation)
		assert.Equal(t, 1, f.Starts)
	})
}

func TestOutOfBandData(t *testing.T) {
	conn := "conn 11:22:33:44:55:66 random hci0"

	t.Run("remote data precedes connect", func(t *testing.T) {
		f := testutils.NewFakeTransport().On(conn, testutils.StatLine("conn"))
		c := newConnection(f, 0)

		oob := wire.OOBData{C256: "0011", R256: "2233"}
		require.NoError(t, c.SetRemoteOOB(peripheralAddr, btle.AddrTypeRandom, oob, 0))
		assert.Equal(t, Unattached, c.State())
		require.NoError(t, c.Connect(peripheralAddr, btle.AddrTypeRandom, 0))

		assert.Equal(t, []string{
			"remote_oob 11:22:33:44:55:66 random C_256 0011 R_256 2233 hci0",
			conn,
		}, f.Writes())
		assert.Equal(t, 1, f.Starts)

		assert.ErrorIs(t, c.SetRemoteOOB(peripheralAddr, btle.AddrTypeRandom, oob, 0), btle.ErrValidation)
	})

	t.Run("remote data validates address", func(t *testing.T) {
		f := testutils.NewFakeTransport()
		c := newConnection(f, 0)

		err := c.SetRemoteOOB("11:22:33", btle.AddrTypePublic, wire.OOBData{}, -1)
		assert.ErrorIs(t, err, btle.ErrValidation)
		assert.Zero(t, f.Starts)
	})

	t.Run("local data", func(t *testing.T) {
		payload := []byte{8, 0x1b, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11, 0x01, 2, 0x1c, 0x00, 17, 0x22}
		payload = append(payload, make([]byte, 16)...)
		payload = append(payload, 17, 0x23)
		payload = append(payload, make([]byte, 16)...)
		payload = append(payload, 2, 0x01, 0x06)

		f := testutils.NewFakeTransport().
			On("local_oob", testutils.Line(testutils.Txt("rsp", "oob"), testutils.Bin("d", payload)))
		c := newConnection(f, 0)

		oob, err := c.GetLocalOOB(-1)
		require.NoError(t, err)
		assert.Equal(t, "665544332211", oob.Address)
		assert.Equal(t, "01", oob.Type)
		assert.Equal(t, "06", oob.Flags)
		assert.Equal(t, []string{"local_oob"}, f.Writes())
	})

	t.Run("local data rejected", func(t *testing.T) {
		f := testutils.NewFakeTransport().
			On("local_oob", testutils.Line(testutils.Txt("rsp", "oob"), testutils.Bin("d", []byte{1, 2})))
		c := newConnection(f, 0)

		_, err := c.GetLocalOOB(-1)
		assert.ErrorIs(t, err, btle.ErrManagement)
		assert.True(t, f.Closed())
		assert.Equal(t, Disconnected, c.State())
	})
}

func uuidField(u btle.UUID) string {
	return testutils.Txt("uuid", u.String())
}

func TestDiscovery_StaysInsideServiceRange(t *testing.T) {
	svcA, svcB := btle.UUIDFromInt(0xfff0), btle.UUIDFromInt(0xfff1)
	inside, stray := btle.UUIDFromInt(0xfff2), btle.UUIDFromInt(0xfff3)

	f := testutils.NewFakeTransport().
		On("conn 11:22:33:44:55:66 public", testutils.StatLine("conn")).
		On("svcs", testutils.Line(
			testutils.Txt("rsp", "find"),
			testutils.Hex("hstart", 1), testutils.Hex("hend", 5), uuidField(svcA),
			testutils.Hex("hstart", 6), testutils.Hex("hend", 10), uuidField(svcB),
		)).
		On("char 6 A", testutils.Line(
			testutils.Txt("rsp", "find"),
			testutils.Hex("hnd", 3), testutils.Hex("props", 0x02), testutils.Hex("vhnd", 4), uuidField(stray),
			testutils.Hex("hnd", 7), testutils.Hex("props", 0x02), testutils.Hex("vhnd", 8), uuidField(inside),
			testutils.Hex("hnd", 0x20), testutils.Hex("props", 0x02), testutils.Hex("vhnd", 0x21), uuidField(stray),
		)).
		On("desc 9 A", testutils.Line(
			testutils.Txt("rsp", "desc"),
			testutils.Hex("hnd", 9), uuidField(btle.ClientConfigUUID),
			testutils.Hex("hnd", 11), uuidField(btle.ClientConfigUUID),
		))
	c := newConnection(f, 0)
	require.NoError(t, c.Connect(peripheralAddr, btle.AddrTypePublic, -1))

	svcs, err := c.Services()
	require.NoError(t, err)
	require.Len(t, svcs, 2)
	assert.Equal(t, [2]uint16{1, 5}, [2]uint16{svcs[0].Start, svcs[0].End})
	assert.Equal(t, [2]uint16{6, 10}, [2]uint16{svcs[1].Start, svcs[1].End})

	chars, err := svcs[1].Characteristics(nil)
	require.NoError(t, err)
	require.Len(t, chars, 1)
	assert.Equal(t, inside, chars[0].UUID)
	assert.Equal(t, uint16(7), chars[0].Handle)
	assert.Equal(t, uint16(8), chars[0].ValueHandle)

	descs, err := c.GetDescriptors(9, 10)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, uint16(9), descs[0].Handle)
}

func TestOperationsRequireConnection(t *testing.T) {
	c := newConnection(testutils.NewFakeTransport(), 0)

	_, err := c.ReadCharacteristic(3)
	assert.ErrorIs(t, err, btle.ErrInternal)
	_, err = c.WaitForNotifications(time.Millisecond)
	assert.ErrorIs(t, err, btle.ErrInternal)
	assert.ErrorIs(t, c.Pair(), btle.ErrInternal)
	assert.NoError(t, c.Disconnect())
	assert.Equal(t, Unattached, c.State())
}

func TestEncodeCCCD(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x00}, EncodeCCCD(CCCDNotify))
	assert.Equal(t, []byte{0x02, 0x00}, EncodeCCCD(CCCDIndicate))
	assert.Equal(t, []byte{0x03, 0x00}, EncodeCCCD(CCCDBoth))
	assert.Equal(t, []byte{0x00, 0x00}, EncodeCCCD(CCCDDisable))
}

func TestProperties(t *testing.T) {
	p := Properties(0x3E)
	assert.Equal(t, []string{"READ", "WRITE NO RESPONSE", "WRITE", "NOTIFY", "INDICATE"}, p.Names())
	assert.Equal(t, "", Properties(0).String())
	assert.Equal(t, "BROADCAST EXTENDED PROPERTIES", Properties(0x81).String())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "unknown", State(42).String())
}
