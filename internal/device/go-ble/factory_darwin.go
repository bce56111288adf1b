//go:build darwin

package goble

import (
	"github.com/go-ble/ble/darwin"
)

func newBLEDevice(_ Options) (Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return wrapDevice(dev), nil
}
