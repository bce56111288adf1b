//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// deviceOptions selects the hciN adapter and the optional dial timeout.
func deviceOptions(opts Options) []ble.Option {
	bleOpts := []ble.Option{ble.OptDeviceID(opts.HCIDevice)}
	if opts.DialTimeout > 0 {
		bleOpts = append(bleOpts, ble.OptDialerTimeout(opts.DialTimeout))
	}
	return bleOpts
}

func newBLEDevice(opts Options) (Device, error) {
	dev, err := linux.NewDevice(deviceOptions(opts)...)
	if err != nil {
		return nil, NormalizeError(err)
	}
	return wrapDevice(dev), nil
}
