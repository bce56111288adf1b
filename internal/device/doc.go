// Package device defines the Bluetooth Low Energy (BLE) domain model shared by the
// scanner, the connection manager and the provider bindings.
//
// This package contains no radio code. It provides:
//   - DiscoveredDevice, the immutable record produced by a scan advertisement
//   - Provider and Peripheral, the collaborator interfaces a BLE binding implements
//   - Service / Characteristic snapshots returned by profile discovery
//   - The error taxonomy (ScanError, ConnectError, MonitorError, PermissionDeniedError,
//     ConnectionError sentinels) and NormalizeError for binding-specific messages
package device
