//go:build test

package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	blelib "github.com/go-ble/ble"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder builds a mocked go-ble host device that scans the configured
// advertisements and dials a client exposing the configured profile.
type PeripheralDeviceBuilder struct {
	profile            DeviceProfileConfig
	scanAdvertisements []device.Advertisement
	scanErr            error
	dialErr            error
	discoverErr        error

	bleProfile *blelib.Profile
	client     *mocks.MockClient
}

// NewPeripheralDeviceBuilder creates a new peripheral device builder
func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		profile: DeviceProfileConfig{Services: []ServiceConfig{}},
	}
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.profile = config
	return b
}

// WithScanAdvertisements sets the advertisements every Scan call delivers.
func (b *PeripheralDeviceBuilder) WithScanAdvertisements(ads ...device.Advertisement) *PeripheralDeviceBuilder {
	b.scanAdvertisements = append(b.scanAdvertisements, ads...)
	return b
}

// WithScanError makes Scan fail with err after delivering the advertisements.
func (b *PeripheralDeviceBuilder) WithScanError(err error) *PeripheralDeviceBuilder {
	b.scanErr = err
	return b
}

func (b *PeripheralDeviceBuilder) WithDialError(err error) *PeripheralDeviceBuilder {
	b.dialErr = err
	return b
}

func (b *PeripheralDeviceBuilder) WithDiscoverError(err error) *PeripheralDeviceBuilder {
	b.discoverErr = err
	return b
}

// parseCharacteristicProperties converts a comma-separated property string to ble.Property flags
func parseCharacteristicProperties(props string) blelib.Property {
	if props == "" {
		return blelib.CharRead | blelib.CharNotify
	}
	var property blelib.Property
	for _, p := range strings.Split(props, ",") {
		switch strings.TrimSpace(strings.ToLower(p)) {
		case "read":
			property |= blelib.CharRead
		case "write":
			property |= blelib.CharWrite
		case "notify":
			property |= blelib.CharNotify
		case "indicate":
			property |= blelib.CharIndicate
		}
	}
	return property
}

// Profile returns the go-ble profile built from the configuration. Repeated calls
// return the same pointers, so tests can address characteristics directly.
func (b *PeripheralDeviceBuilder) Profile() *blelib.Profile {
	if b.bleProfile != nil {
		return b.bleProfile
	}
	services := make([]*blelib.Service, 0, len(b.profile.Services))
	for _, svcConfig := range b.profile.Services {
		svc := &blelib.Service{UUID: blelib.MustParse(svcConfig.UUID)}
		for _, charConfig := range svcConfig.Characteristics {
			svc.Characteristics = append(svc.Characteristics, &blelib.Characteristic{
				UUID:     blelib.MustParse(charConfig.UUID),
				Property: parseCharacteristicProperties(charConfig.Properties),
				Value:    charConfig.Value,
			})
		}
		services = append(services, svc)
	}
	b.bleProfile = &blelib.Profile{Services: services}
	return b.bleProfile
}

// Characteristic returns the built go-ble characteristic for the given UUID pair.
func (b *PeripheralDeviceBuilder) Characteristic(serviceUUID, charUUID string) *blelib.Characteristic {
	want := device.NormalizeUUID(serviceUUID) + "/" + device.NormalizeUUID(charUUID)
	for _, s := range b.Profile().Services {
		for _, c := range s.Characteristics {
			if device.NormalizeUUID(s.UUID.String())+"/"+device.NormalizeUUID(c.UUID.String()) == want {
				return c
			}
		}
	}
	panic(fmt.Sprintf("characteristic %s not configured", want))
}

// Client returns the mocked client the device dials. Valid after Build.
func (b *PeripheralDeviceBuilder) Client() *mocks.MockClient {
	return b.client
}

// Build creates a mocked goble.Device with the configured profile
func (b *PeripheralDeviceBuilder) Build() *mocks.MockDevice {
	mockDevice := &mocks.MockDevice{}
	b.client = mocks.NewMockClient()
	profile := b.Profile()

	if b.dialErr != nil {
		mockDevice.On("Dial", mock.Anything, mock.Anything).Return(nil, b.dialErr)
	} else {
		mockDevice.On("Dial", mock.Anything, mock.Anything).Return(b.client, nil)
	}
	if b.discoverErr != nil {
		b.client.On("DiscoverProfile", true).Return(nil, b.discoverErr)
	} else {
		b.client.On("DiscoverProfile", true).Return(profile, nil)
	}
	b.client.On("CancelConnection").Return(nil)

	for _, svc := range profile.Services {
		for _, char := range svc.Characteristics {
			b.client.On("Subscribe", char, mock.Anything, mock.Anything).Return(nil)
			b.client.On("Unsubscribe", char, mock.Anything).Return(nil)
		}
	}

	ads := b.scanAdvertisements
	mockDevice.On("Scan", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			handler := args.Get(2).(func(device.Advertisement))
			for _, adv := range ads {
				handler(adv)
			}
		}).
		Return(b.scanErr)
	mockDevice.On("Stop").Return(nil)

	return mockDevice
}

// GetServices returns the configured services
func (b *PeripheralDeviceBuilder) GetServices() []ServiceConfig {
	return b.profile.Services
}
