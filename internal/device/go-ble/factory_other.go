//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/srg/blemon/internal/device"
)

func newBLEDevice(_ Options) (Device, error) {
	return nil, fmt.Errorf("%w: no BLE backend for %s", device.ErrUnsupported, runtime.GOOS)
}
