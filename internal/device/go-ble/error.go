package goble

import (
	"errors"
	"fmt"

	"github.com/srg/blemon/internal/device"
)

// darwinPoweredOffMsg is what CoreBluetooth reports when the radio is off.
const darwinPoweredOffMsg = "central manager has invalid state: have=4 want=5: is Bluetooth turned on?"

// NormalizeError maps known go-ble error strings to structured sentinel errors.
// Platform-specific messages are handled here; the generic ones are delegated to
// device.NormalizeError.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	if err.Error() == darwinPoweredOffMsg {
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	}
	return device.NormalizeError(err)
}

// radioStateFor derives the radio state implied by a device creation error.
func radioStateFor(err error) device.RadioState {
	switch {
	case err == nil:
		return device.RadioPoweredOn
	case errors.Is(err, device.ErrBluetoothOff):
		return device.RadioPoweredOff
	case errors.Is(err, device.ErrUnsupported):
		return device.RadioUnsupported
	default:
		return device.RadioUnknown
	}
}
