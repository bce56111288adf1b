// Package permission decides whether BLE scanning may start on the host.
package permission

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/device"
)

// Permission names
const (
	FineLocation  = "ACCESS_FINE_LOCATION"
	RawBluetooth  = "CAP_NET_ADMIN,CAP_NET_RAW"
	androidMinAPI = 23
)

// Platform describes the host OS. Version is the OS API level where it matters
// (android) and zero elsewhere.
type Platform struct {
	OS      string
	Version int
}

// HostPlatform returns the platform the binary runs on.
func HostPlatform() Platform {
	return Platform{OS: runtime.GOOS}
}

func (p Platform) String() string {
	if p.Version == 0 {
		return p.OS
	}
	return fmt.Sprintf("%s/%d", p.OS, p.Version)
}

// RequiresRuntimeCheck reports whether scanning needs a runtime grant on p.
func RequiresRuntimeCheck(p Platform) bool {
	switch p.OS {
	case "android":
		return p.Version >= androidMinAPI
	case "linux":
		return true
	default:
		return false
	}
}

// PermissionFor returns the permission that gates scanning on p, or "" when none.
func PermissionFor(p Platform) string {
	if !RequiresRuntimeCheck(p) {
		return ""
	}
	if p.OS == "linux" {
		return RawBluetooth
	}
	return FineLocation
}

// Checker is the OS permission subsystem.
type Checker interface {
	Check(ctx context.Context, permission string) (bool, error)
	Request(ctx context.Context, permission string) (bool, error)
}

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Gate guards the start of scanning.
type Gate struct {
	platform Platform
	checker  Checker
	logger   *logrus.Logger
}

func NewGate(platform Platform, checker Checker, logger *logrus.Logger) *Gate {
	if logger == nil {
		logger = logrus.New()
	}
	return &Gate{platform: platform, checker: checker, logger: logger}
}

// EnsurePermission checks the grant and requests it once when missing. On platforms
// without a runtime check it grants without consulting the checker. A denial
// returns false with a *device.PermissionDeniedError; there is no retry.
func (g *Gate) EnsurePermission(ctx context.Context) (bool, error) {
	perm := PermissionFor(g.platform)
	if perm == "" {
		return true, nil
	}

	log := g.logger.WithFields(logrus.Fields{
		"platform":   g.platform.String(),
		"permission": perm,
	})

	granted, err := g.checker.Check(ctx, perm)
	if err != nil {
		log.WithField("error", err).Error("Permission check failed")
		return false, fmt.Errorf("failed to check permission %q: %w", perm, err)
	}
	if granted {
		log.Debug("Permission already granted")
		return true, nil
	}

	log.Info("Requesting permission")
	granted, err = g.checker.Request(ctx, perm)
	if err != nil {
		log.WithField("error", err).Error("Permission request failed")
		return false, fmt.Errorf("failed to request permission %q: %w", perm, err)
	}
	if !granted {
		log.Warn("Permission denied")
		return false, &device.PermissionDeniedError{Permission: perm}
	}

	log.Info("Permission granted")
	return true, nil
}

// StaticChecker answers from fixed values. Request grants when GrantOnRequest is set.
type StaticChecker struct {
	mu             sync.Mutex
	Granted        bool
	GrantOnRequest bool
	Err            error
	checks         int
	requests       int
}

func (c *StaticChecker) Check(_ context.Context, _ string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks++
	return c.Granted, c.Err
}

func (c *StaticChecker) Request(_ context.Context, _ string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
	if c.Err != nil {
		return false, c.Err
	}
	if c.GrantOnRequest {
		c.Granted = true
	}
	return c.Granted, nil
}

// Calls returns how many checks and requests were made.
func (c *StaticChecker) Calls() (checks, requests int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checks, c.requests
}

// PromptChecker keeps the grant in memory and asks the user on Request. A grant
// lasts for the life of the process; a denial is asked again on the next Request.
type PromptChecker struct {
	prompter Prompter

	mu      sync.Mutex
	granted map[string]bool
}

func NewPromptChecker(p Prompter) *PromptChecker {
	return &PromptChecker{prompter: p, granted: make(map[string]bool)}
}

func (c *PromptChecker) Check(_ context.Context, permission string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.granted[permission], nil
}

func (c *PromptChecker) Request(ctx context.Context, permission string) (bool, error) {
	if c.prompter == nil {
		return false, nil
	}
	ok, err := c.prompter.Confirm(ctx, fmt.Sprintf("Allow blemon to use %s for scanning?", permission))
	if err != nil {
		return false, err
	}
	if ok {
		c.mu.Lock()
		c.granted[permission] = true
		c.mu.Unlock()
	}
	return ok, nil
}
