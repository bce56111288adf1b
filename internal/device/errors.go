package device

import (
	"errors"
	"fmt"
	"strings"
)

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Operation errors
var (
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrUnsupported  = errors.New("unsupported")
	ErrCancelled    = errors.New("operation cancelled")
)

// ErrorCode classifies provider failures. The numbering follows the codes mobile BLE
// stacks report so diagnostics stay comparable across bindings.
type ErrorCode int

const (
	ErrorUnknown                          ErrorCode = 0
	ErrorOperationCancelled               ErrorCode = 2
	ErrorOperationTimedOut                ErrorCode = 3
	ErrorBluetoothUnsupported             ErrorCode = 100
	ErrorBluetoothUnauthorized            ErrorCode = 101
	ErrorBluetoothPoweredOff              ErrorCode = 102
	ErrorDeviceConnectionFailed           ErrorCode = 200
	ErrorDeviceDisconnected               ErrorCode = 201
	ErrorDeviceAlreadyConnected           ErrorCode = 203
	ErrorDeviceNotConnected               ErrorCode = 205
	ErrorServicesDiscoveryFailed          ErrorCode = 300
	ErrorCharacteristicNotifyChangeFailed ErrorCode = 403
	ErrorScanStartFailed                  ErrorCode = 600
)

// ScanError is the diagnostic bundle reported when a scan terminates abnormally.
// DeviceErrorCode and AttErrorCode are zero when the stack does not supply them.
type ScanError struct {
	DeviceErrorCode int
	AttErrorCode    int
	ErrorCode       ErrorCode
	Message         string
	Reason          string
	Stack           string
	Err             error
}

func (e *ScanError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("scan failed (code %d): %s: %s", e.ErrorCode, e.Message, e.Reason)
	}
	return fmt.Sprintf("scan failed (code %d): %s", e.ErrorCode, e.Message)
}

func (e *ScanError) Unwrap() error { return e.Err }

// NewScanError classifies err into a ScanError. stack is optional context, typically
// the name of the goroutine that ran the scan.
func NewScanError(err error, stack string) *ScanError {
	var se *ScanError
	if errors.As(err, &se) {
		return se
	}

	code := ErrorScanStartFailed
	switch {
	case errors.Is(err, ErrBluetoothOff):
		code = ErrorBluetoothPoweredOff
	case errors.Is(err, ErrUnsupported):
		code = ErrorBluetoothUnsupported
	case errors.Is(err, ErrCancelled):
		code = ErrorOperationCancelled
	}

	reason := ""
	if unwrapped := errors.Unwrap(err); unwrapped != nil {
		reason = unwrapped.Error()
	}

	return &ScanError{
		ErrorCode: code,
		Message:   err.Error(),
		Reason:    reason,
		Stack:     stack,
		Err:       err,
	}
}

// ConnectStage names the step of the connect pipeline that failed.
type ConnectStage string

const (
	StageConnect   ConnectStage = "connect"
	StageDiscovery ConnectStage = "discover"
	StageMonitor   ConnectStage = "monitor"
)

// ConnectError is returned by the connect -> discover chain.
type ConnectError struct {
	Stage    ConnectStage
	DeviceID string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Stage, e.DeviceID, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// MonitorError is a per-characteristic subscription failure.
type MonitorError struct {
	ServiceUUID        string
	CharacteristicUUID string
	Err                error
}

func (e *MonitorError) Error() string {
	return fmt.Sprintf("monitor %s in service %s: %v", e.CharacteristicUUID, e.ServiceUUID, e.Err)
}

func (e *MonitorError) Unwrap() error { return e.Err }

// PermissionDeniedError reports a permission the user did not grant.
type PermissionDeniedError struct {
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission %q denied", e.Permission)
}

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "device", "service", "characteristic"
	IDs      []string // One or more identifiers, parent first
}

func (e *NotFoundError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.IDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.IDs[0])
	}
	return fmt.Sprintf("%s %q not found in %q", e.Resource, e.IDs[len(e.IDs)-1], e.IDs[0])
}

// NormalizeError maps known provider error strings to structured sentinel errors.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "is Bluetooth turned on"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}
