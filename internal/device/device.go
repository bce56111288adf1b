package device

import (
	"context"
	"fmt"
)

// DiscoveredDevice is a peripheral seen in a scan advertisement.
// Identity is the ID; all other fields are informational.
type DiscoveredDevice struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	LocalName        string `json:"local_name,omitempty"`
	ManufacturerData []byte `json:"manufacturer_data,omitempty"`
	RSSI             int    `json:"rssi"`
}

// Enrich fills the empty fields of d from fallback, normally the advertised
// identity, so a live record never carries less than the advertisement did.
func (d DiscoveredDevice) Enrich(fallback DiscoveredDevice) DiscoveredDevice {
	if d.ID == "" {
		d.ID = fallback.ID
	}
	if d.Name == "" {
		d.Name = fallback.Name
	}
	if d.LocalName == "" {
		d.LocalName = fallback.LocalName
	}
	if len(d.ManufacturerData) == 0 {
		d.ManufacturerData = fallback.ManufacturerData
	}
	if d.RSSI == 0 {
		d.RSSI = fallback.RSSI
	}
	return d
}

// DisplayName returns "id - name - localName", the row label used by the views.
func (d DiscoveredDevice) DisplayName() string {
	return fmt.Sprintf("%s - %s - %s", d.ID, d.Name, d.LocalName)
}

// Advertisement is a single advertising report delivered by a provider scan.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	Services() []string
	TxPowerLevel() int
	Connectable() bool
	RSSI() int
	Addr() string
}

// DeviceFromAdvertisement builds the immutable DiscoveredDevice for an advertisement.
// Bindings without a separate GAP name report the local name as the name.
func DeviceFromAdvertisement(adv Advertisement) DiscoveredDevice {
	var manufData []byte
	if md := adv.ManufacturerData(); len(md) > 0 {
		manufData = make([]byte, len(md))
		copy(manufData, md)
	}
	return DiscoveredDevice{
		ID:               adv.Addr(),
		Name:             adv.LocalName(),
		LocalName:        adv.LocalName(),
		ManufacturerData: manufData,
		RSSI:             adv.RSSI(),
	}
}

// RadioState is the power state of the host BLE radio.
type RadioState string

const (
	RadioUnknown      RadioState = "Unknown"
	RadioResetting    RadioState = "Resetting"
	RadioUnsupported  RadioState = "Unsupported"
	RadioUnauthorized RadioState = "Unauthorized"
	RadioPoweredOff   RadioState = "PoweredOff"
	RadioPoweredOn    RadioState = "PoweredOn"
)

// Subscription is a registered listener. Remove is idempotent.
type Subscription interface {
	Remove()
}

// SubscriptionFunc adapts a function to the Subscription interface.
type SubscriptionFunc func()

func (f SubscriptionFunc) Remove() { f() }

// Characteristic is a snapshot of a discovered GATT characteristic.
type Characteristic struct {
	ServiceUUID   string
	UUID          string
	IsReadable    bool
	IsNotifiable  bool
	IsIndicatable bool
}

// Key returns the "service/characteristic" pair used to index subscriptions.
func (c Characteristic) Key() string {
	return NormalizeUUID(c.ServiceUUID) + "/" + NormalizeUUID(c.UUID)
}

// Service is a snapshot of a discovered GATT service.
type Service struct {
	UUID            string
	Characteristics []Characteristic
}

// Value is a characteristic value change. Payloads cross the provider boundary
// base64 encoded.
type Value struct {
	ServiceUUID        string
	CharacteristicUUID string
	Base64             string
}

// MonitorHandler receives either a value or a terminal error.
// After an error no further calls are made for that subscription.
type MonitorHandler func(v *Value, err error)

// Peripheral is a connected device handle returned by Provider.Connect.
type Peripheral interface {
	Device() DiscoveredDevice
	DiscoverAllServicesAndCharacteristics(ctx context.Context) ([]Service, error)
	Monitor(char Characteristic, handler MonitorHandler) (Subscription, error)
}

// Provider is the BLE stack collaborator. Implementations must be safe for
// concurrent use; callbacks may arrive on any goroutine.
type Provider interface {
	// Scan blocks, delivering every advertisement (duplicates included) until
	// ctx is cancelled or the stack reports an error.
	Scan(ctx context.Context, handler func(Advertisement)) error
	Connect(ctx context.Context, id string) (Peripheral, error)
	IsConnected(ctx context.Context, id string) (bool, error)
	CancelConnection(ctx context.Context, id string) error
	// OnDeviceDisconnected registers a listener fired when the link to id drops,
	// regardless of which side closed it.
	OnDeviceDisconnected(id string, fn func(err error)) Subscription
	// OnStateChange registers a radio state listener; emitCurrent delivers the
	// current state immediately.
	OnStateChange(fn func(RadioState), emitCurrent bool) Subscription
	Close() error
}
