//go:build !linux

package permission

import "github.com/srg/blemon/internal/device"

func hasNetCapabilities() (bool, error) {
	return false, device.ErrUnsupported
}
