package permission

import (
	"context"
	"fmt"
	"os"
)

// CapabilityChecker verifies the effective capabilities raw HCI access needs.
// Request cannot raise them: file capabilities only apply to the next exec, so it
// tells the user how to grant them and reports the permission as not granted.
type CapabilityChecker struct {
	prompter Prompter
	hasCaps  func() (bool, error)
}

func NewCapabilityChecker(p Prompter) *CapabilityChecker {
	return &CapabilityChecker{prompter: p, hasCaps: hasNetCapabilities}
}

func (c *CapabilityChecker) Check(_ context.Context, _ string) (bool, error) {
	return c.hasCaps()
}

func (c *CapabilityChecker) Request(ctx context.Context, permission string) (bool, error) {
	if c.prompter == nil {
		return false, nil
	}
	exe, err := os.Executable()
	if err != nil {
		exe = "blemon"
	}
	question := fmt.Sprintf("Scanning needs %s. Grant it with\n  sudo setcap 'cap_net_raw,cap_net_admin+eip' %s\nand restart blemon. Understood?", permission, exe)
	if _, err := c.prompter.Confirm(ctx, question); err != nil {
		return false, err
	}
	return false, nil
}
