//go:build test

package testutils

import (
	"github.com/sirupsen/logrus"
	goble "github.com/srg/blemon/internal/device/go-ble"
	"github.com/srg/blemon/internal/testutils/mocks"
	"github.com/stretchr/testify/suite"
)

// MockBLEPeripheralSuite swaps goble.DeviceFactory for a mocked host device for the
// duration of each test.
//
// Custom device profile usage:
//
//	type ProviderSuite struct {
//	    testutils.MockBLEPeripheralSuite
//	}
//
//	func (s *ProviderSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180D").
//	        WithCharacteristic("2A37", "read,notify", []byte{80})
//
//	    s.MockBLEPeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	OriginalDeviceFactory func(goble.Options) (goble.Device, error)

	PeripheralBuilder *PeripheralDeviceBuilder
	Device            *mocks.MockDevice
	FactoryCalls      int
}

// SetupSuite initializes the helper and saves the real device factory.
func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.OriginalDeviceFactory = goble.DeviceFactory

	s.T().Cleanup(func() {
		if s.OriginalDeviceFactory != nil {
			goble.DeviceFactory = s.OriginalDeviceFactory
		}
	})
}

// SetupTest builds the mocked device and installs it as the factory result.
func (s *MockBLEPeripheralSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = createDefaultPeripheralBuilder()
	}
	s.Device = s.PeripheralBuilder.Build()
	s.FactoryCalls = 0

	goble.DeviceFactory = func(goble.Options) (goble.Device, error) {
		s.FactoryCalls++
		return s.Device, nil
	}
}

// TearDownTest restores the factory and resets the builder.
func (s *MockBLEPeripheralSuite) TearDownTest() {
	if s.OriginalDeviceFactory != nil {
		goble.DeviceFactory = s.OriginalDeviceFactory
	}
	s.PeripheralBuilder = nil
	s.Device = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder()
	}
	return s.PeripheralBuilder
}

// createDefaultPeripheralBuilder returns a peripheral with Battery Service (180F)
// and a readable+notifiable Battery Level characteristic (2A19) set to 50%.
func createDefaultPeripheralBuilder() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().
		FromJSON(`
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
