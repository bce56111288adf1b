package main

import (
	"errors"
	"fmt"

	"github.com/srg/blemon/internal/device"
)

// Command-level errors
var (
	// ErrDeviceNotFound indicates the target did not advertise before the scan timeout.
	ErrDeviceNotFound = errors.New("device not found")
)

// FormatUserError turns an error chain into a single line for the terminal.
func FormatUserError(err error) string {
	var (
		scanErr *device.ScanError
		connErr *device.ConnectError
		permErr *device.PermissionDeniedError
	)

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case errors.Is(err, device.ErrUnsupported):
		return "Bluetooth LE is not supported on this platform."
	case errors.As(err, &permErr):
		return fmt.Sprintf("Permission %s was not granted.", permErr.Permission)
	case errors.As(err, &scanErr):
		return fmt.Sprintf("Scan failed (code %d): %s", scanErr.ErrorCode, scanErr.Message)
	case errors.As(err, &connErr):
		return fmt.Sprintf("Could not %s %s: %v", connErr.Stage, connErr.DeviceID, connErr.Err)
	default:
		return err.Error()
	}
}
