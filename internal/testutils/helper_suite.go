package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blip/internal/transport"
	"github.com/stretchr/testify/suite"
)

// HelperSuite is a testify suite backed by a simulated helper.
//
// Basic usage (default battery service peripheral):
//
//	type ReadSuite struct {
//	    testutils.HelperSuite
//	}
//
//	func TestReadSuite(t *testing.T) {
//	    suite.Run(t, new(ReadSuite))
//	}
//
// Custom profile:
//
//	func (s *InspectSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180D").
//	        WithCharacteristic("2A37", "read,notify", []byte{80})
//
//	    s.HelperSuite.SetupTest() // call parent last to apply configuration
//	}
type HelperSuite struct {
	suite.Suite

	Helper      *TestHelper
	Logger      *logrus.Logger
	TestTimeout time.Duration

	PeripheralBuilder *PeripheralBuilder
	Peripheral        *Peripheral
	Transport         *FakeTransport
}

// SetupSuite creates the logger once for all tests
func (s *HelperSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second
}

// SetupTest builds the peripheral and its transport before each test
func (s *HelperSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = createDefaultPeripheralBuilder()
	}
	s.Peripheral = s.PeripheralBuilder.Build()
	s.Transport = s.Peripheral.Transport()
}

// TearDownTest resets the builder so each test starts from the default profile
func (s *HelperSuite) TearDownTest() {
	s.PeripheralBuilder = nil
	s.Peripheral = nil
	s.Transport = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration
func (s *HelperSuite) WithPeripheral() *PeripheralBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralBuilder()
	}
	return s.PeripheralBuilder
}

// Factory hands out the suite's transport
func (s *HelperSuite) Factory() transport.Factory {
	return s.Transport.Factory()
}

// createDefaultPeripheralBuilder describes a peripheral with the Battery Service (180F)
// and a Battery Level characteristic (2A19) at 50%.
func createDefaultPeripheralBuilder() *PeripheralBuilder {
	return NewPeripheralBuilder().FromJSON(`
	{
		"services": [
			{
				"uuid": "180F",
				"characteristics": [
					{ "uuid": "2A19", "properties": "read,notify", "value": [50] }
				]
			}
		]
	}`)
}
