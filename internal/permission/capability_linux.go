//go:build linux

package permission

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// hasNetCapabilities reports whether the process holds CAP_NET_ADMIN and CAP_NET_RAW
// in its effective set.
func hasNetCapabilities() (bool, error) {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return false, fmt.Errorf("capget: %w", err)
	}
	return hasCap(data, unix.CAP_NET_ADMIN) && hasCap(data, unix.CAP_NET_RAW), nil
}

func hasCap(data [2]unix.CapUserData, capability int) bool {
	return data[capability/32].Effective&(1<<uint(capability%32)) != 0
}
