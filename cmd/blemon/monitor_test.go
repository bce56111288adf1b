//go:build test

package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/testutils"
)

const waitFor = 2 * time.Second

type MonitorCommandTestSuite struct {
	CommandTestSuite
	peripheral *testutils.FakePeripheral
}

func (s *MonitorCommandTestSuite) SetupTest() {
	s.CommandTestSuite.SetupTest()
	s.Provider.WithAdvertisements(
		testutils.FakeAdvertisement{ID: "X1", Name: "Thermo", Rssi: -40},
		testutils.FakeAdvertisement{ID: "X2", Name: "Scale", Rssi: -70},
	)
	s.peripheral = s.Provider.WithPeripheral(device.DiscoveredDevice{ID: "X1", Name: "Thermo"}).
		WithService("180F").
		WithCharacteristic("2A19", "read,notify").
		WithCharacteristic("2A38", "read")
}

func (s *MonitorCommandTestSuite) waitOutput(out *lockedBuffer, want string, count int) {
	s.Eventually(func() bool {
		return strings.Count(out.String(), want) >= count
	}, waitFor, 10*time.Millisecond, "output MUST contain %q %d time(s), got:\n%s", want, count, out)
}

// GOAL: Verify the full monitor lifecycle from the command line
//
// TEST SCENARIO: connect → notification printed → link drops → device re-advertises → reconnect → Ctrl+C
func (s *MonitorCommandTestSuite) TestMonitorLifecycle() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, done := s.StartCommand(ctx, "monitor", "X1")

	s.waitOutput(out, "Connected to X1 - Thermo - Thermo", 1)
	s.waitOutput(out, "Monitoring 1 characteristic(s)", 1)
	s.Equal([]string{"180f/2a19"}, s.peripheral.ActiveMonitors(), "only read+notify characteristics MUST be monitored")

	s.Require().NoError(s.peripheral.Push("180f/2a19", "SGVsbG8="))
	s.waitOutput(out, "Value received: Hello", 1)

	s.Provider.DropLink("X1")
	s.waitOutput(out, "Disconnected from X1", 1)
	s.waitOutput(out, "Connected to X1", 2)
	s.Equal(2, s.Provider.ConnectCalls())

	cancel()
	s.ErrorIs(<-done, context.Canceled)
	s.Zero(s.Provider.DisconnectListeners("X1"), "exiting MUST release the disconnect listener")
	s.True(s.Provider.Closed(), "exiting MUST release the provider")
}

// GOAL: Verify --duration ends monitoring without an error
//
// TEST SCENARIO: monitor with a short duration → returns nil after it elapses
func (s *MonitorCommandTestSuite) TestMonitorDuration() {
	out, err := s.ExecuteCommand("monitor", "X1", "--duration", "300ms")
	s.Require().NoError(err)
	s.Contains(out, "Connected to X1")
}

// GOAL: Verify an absent device is reported after the scan timeout
//
// TEST SCENARIO: target never advertises → ErrDeviceNotFound, no connect
func (s *MonitorCommandTestSuite) TestMonitorDeviceNotFound() {
	_, err := s.ExecuteCommand("monitor", "ZZ", "--scan-timeout", "200ms")
	s.Require().ErrorIs(err, ErrDeviceNotFound)
	s.Zero(s.Provider.ConnectCalls())
}

// GOAL: Verify a failed first connect ends the command with the failing stage
//
// TEST SCENARIO: provider refuses the connection → ConnectError at the connect stage
func (s *MonitorCommandTestSuite) TestMonitorConnectFailure() {
	s.Provider.ConnectErr = errors.New("refused")

	_, err := s.ExecuteCommand("monitor", "X1", "--scan-timeout", "2s")

	var connErr *device.ConnectError
	s.Require().ErrorAs(err, &connErr)
	s.Equal(device.StageConnect, connErr.Stage)
	s.Equal("X1", connErr.DeviceID)
	s.Contains(FormatUserError(err), "Could not connect X1")
}

// GOAL: Verify monitor requires exactly one device id
//
// TEST SCENARIO: no argument → usage error, radio untouched
func (s *MonitorCommandTestSuite) TestMonitorRequiresDeviceID() {
	_, err := s.ExecuteCommand("monitor")
	s.Require().Error(err)
	s.Zero(s.Provider.ScanCalls())
}

func TestMonitorCommandTestSuite(t *testing.T) {
	suite.Run(t, new(MonitorCommandTestSuite))
}
