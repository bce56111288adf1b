package permission

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/srg/blemon/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiresRuntimeCheck(t *testing.T) {
	tests := []struct {
		platform Platform
		want     bool
		perm     string
	}{
		{Platform{OS: "android", Version: 23}, true, FineLocation},
		{Platform{OS: "android", Version: 30}, true, FineLocation},
		{Platform{OS: "android", Version: 22}, false, ""},
		{Platform{OS: "ios"}, false, ""},
		{Platform{OS: "darwin"}, false, ""},
		{Platform{OS: "linux"}, true, RawBluetooth},
	}
	for _, tt := range tests {
		t.Run(tt.platform.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, RequiresRuntimeCheck(tt.platform))
			assert.Equal(t, tt.perm, PermissionFor(tt.platform))
		})
	}
}

func TestGate_NoRuntimeCheckGrantsWithoutChecker(t *testing.T) {
	checker := &StaticChecker{}
	gate := NewGate(Platform{OS: "darwin"}, checker, nil)

	granted, err := gate.EnsurePermission(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)

	checks, requests := checker.Calls()
	assert.Zero(t, checks, "checker MUST NOT be consulted when no runtime check applies")
	assert.Zero(t, requests)
}

func TestGate_AlreadyGranted(t *testing.T) {
	checker := &StaticChecker{Granted: true}
	gate := NewGate(Platform{OS: "android", Version: 29}, checker, nil)

	granted, err := gate.EnsurePermission(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)

	checks, requests := checker.Calls()
	assert.Equal(t, 1, checks)
	assert.Zero(t, requests, "granted permission MUST NOT be requested")
}

func TestGate_RequestsOnceAndGrants(t *testing.T) {
	checker := &StaticChecker{GrantOnRequest: true}
	gate := NewGate(Platform{OS: "android", Version: 29}, checker, nil)

	granted, err := gate.EnsurePermission(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)

	_, requests := checker.Calls()
	assert.Equal(t, 1, requests)
}

func TestGate_DenialIsNotRetried(t *testing.T) {
	checker := &StaticChecker{}
	gate := NewGate(Platform{OS: "android", Version: 29}, checker, nil)

	granted, err := gate.EnsurePermission(context.Background())
	assert.False(t, granted)

	var denied *device.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, FineLocation, denied.Permission)

	checks, requests := checker.Calls()
	assert.Equal(t, 1, checks)
	assert.Equal(t, 1, requests, "a denial MUST NOT be retried")
}

func TestGate_CheckerFailure(t *testing.T) {
	boom := errors.New("boom")
	gate := NewGate(Platform{OS: "linux"}, &StaticChecker{Err: boom}, nil)

	granted, err := gate.EnsurePermission(context.Background())
	assert.False(t, granted)
	assert.ErrorIs(t, err, boom)
}

type scriptedPrompter struct {
	answers   []bool
	questions []string
}

func (p *scriptedPrompter) Confirm(_ context.Context, q string) (bool, error) {
	p.questions = append(p.questions, q)
	if len(p.answers) == 0 {
		return false, nil
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func TestPromptChecker_RemembersGrant(t *testing.T) {
	prompter := &scriptedPrompter{answers: []bool{false, true}}
	gate := NewGate(Platform{OS: "android", Version: 31}, NewPromptChecker(prompter), nil)

	granted, _ := gate.EnsurePermission(context.Background())
	assert.False(t, granted)

	granted, err := gate.EnsurePermission(context.Background())
	require.NoError(t, err)
	assert.True(t, granted, "a retry after denial MUST ask again")

	granted, err = gate.EnsurePermission(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Len(t, prompter.questions, 2, "a remembered grant MUST NOT prompt again")
}

func TestCapabilityChecker_RequestNeedsRestart(t *testing.T) {
	calls := 0
	prompter := &scriptedPrompter{answers: []bool{true}}
	c := &CapabilityChecker{
		prompter: prompter,
		hasCaps: func() (bool, error) {
			calls++
			return false, nil
		},
	}
	gate := NewGate(Platform{OS: "linux"}, c, nil)

	granted, err := gate.EnsurePermission(context.Background())
	assert.False(t, granted, "capabilities granted on disk MUST NOT count for the running process")
	var denied *device.PermissionDeniedError
	assert.ErrorAs(t, err, &denied)
	assert.Equal(t, 1, calls, "Request MUST NOT re-check the running process")
	require.Len(t, prompter.questions, 1)
	assert.Contains(t, prompter.questions[0], "restart blemon")
}

func TestCapabilityChecker_NoPrompterDenies(t *testing.T) {
	c := &CapabilityChecker{hasCaps: func() (bool, error) { return false, nil }}
	granted, err := c.Request(context.Background(), RawBluetooth)
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	ok, err := confirm(context.Background(), strings.NewReader("Yes\n"), &out, "Proceed?")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Proceed? [y/N]: ", out.String())

	ok, err = confirm(context.Background(), strings.NewReader(""), &out, "Proceed?")
	require.NoError(t, err)
	assert.False(t, ok, "EOF MUST count as no")
}
