//go:build test

package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/testutils"
)

type ScanCommandTestSuite struct {
	CommandTestSuite
}

func (s *ScanCommandTestSuite) SetupTest() {
	s.CommandTestSuite.SetupTest()
	s.Provider.WithAdvertisements(
		testutils.FakeAdvertisement{ID: "X1", Name: "Thermo", Rssi: -40},
		testutils.FakeAdvertisement{ID: "X2", Name: "Scale", Rssi: -70},
		testutils.FakeAdvertisement{ID: "X1", Name: "Thermo (renamed)", Rssi: -41},
	)
}

// GOAL: Verify the table lists every discovered device once, in discovery order
//
// TEST SCENARIO: X1 advertises twice under different names → table has one X1 row with the first identity
func (s *ScanCommandTestSuite) TestScanTable() {
	out, err := s.ExecuteCommand("scan", "--duration", "300ms")
	s.Require().NoError(err, "scan MUST succeed")

	testutils.NewTextAsserter(s.T()).WithOptions(testutils.WithTrimSpace(true)).Assert(out, `
ID  NAME    LOCAL NAME  RSSI
X1  Thermo  Thermo      -40 dBm
X2  Scale   Scale       -70 dBm
`)
}

// GOAL: Verify JSON output carries the registry devices
//
// TEST SCENARIO: scan with --format json → array of both devices
func (s *ScanCommandTestSuite) TestScanJSON() {
	out, err := s.ExecuteCommand("scan", "-d", "300ms", "-f", "json")
	s.Require().NoError(err, "scan MUST succeed")

	testutils.NewJSONAsserter(s.T()).Assert(out, `[
  {"id": "X1", "name": "Thermo", "local_name": "Thermo", "rssi": -40},
  {"id": "X2", "name": "Scale", "local_name": "Scale", "rssi": -70}
]`)
}

// GOAL: Verify block list filtering reaches the scanner
//
// TEST SCENARIO: --block X2 → only X1 is listed
func (s *ScanCommandTestSuite) TestScanBlockList() {
	out, err := s.ExecuteCommand("scan", "-d", "300ms", "--block", "x2")
	s.Require().NoError(err)

	s.Contains(out, "X1  Thermo")
	s.NotContains(out, "X2", "blocked devices MUST NOT be listed")
}

// GOAL: Verify an empty scan says so
//
// TEST SCENARIO: allow list matches nothing → "No devices discovered"
func (s *ScanCommandTestSuite) TestScanNothingFound() {
	out, err := s.ExecuteCommand("scan", "-d", "200ms", "--allow", "ZZ")
	s.Require().NoError(err)
	s.Contains(out, "No devices discovered")
}

// GOAL: Verify invalid output formats are rejected before the radio is touched
//
// TEST SCENARIO: --format xml → error, no scan
func (s *ScanCommandTestSuite) TestScanInvalidFormat() {
	_, err := s.ExecuteCommand("scan", "--format", "xml")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid format 'xml'")
	s.Zero(s.Provider.ScanCalls(), "an invalid format MUST NOT start a scan")
}

// GOAL: Verify a failed scan ends the command with the diagnostic bundle
//
// TEST SCENARIO: provider fails the running scan → ScanError with the start-failed code
func (s *ScanCommandTestSuite) TestScanFailure() {
	out, done := s.StartCommand(context.Background(), "scan", "-d", "5s")

	s.Eventually(func() bool {
		return s.Provider.FailScan(errors.New("adapter gone"))
	}, 2*time.Second, 10*time.Millisecond, "scan MUST start")

	var err error
	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		s.FailNow("scan MUST stop on a scan error", out.String())
	}

	var scanErr *device.ScanError
	s.Require().ErrorAs(err, &scanErr)
	s.Equal(device.ErrorScanStartFailed, scanErr.ErrorCode)
	s.Contains(FormatUserError(err), "adapter gone")
}

// GOAL: Verify a powered-off radio is reported instead of an empty result
//
// TEST SCENARIO: radio PoweredOff → ErrBluetoothOff
func (s *ScanCommandTestSuite) TestScanRadioOff() {
	s.Provider.WithState(device.RadioPoweredOff)

	_, err := s.ExecuteCommand("scan", "-d", "2s")
	s.Require().ErrorIs(err, device.ErrBluetoothOff)
	s.Zero(s.Provider.ScanCalls())
}

// GOAL: Verify Ctrl+C still prints what was found
//
// TEST SCENARIO: indefinite scan cancelled → table printed, no error
func (s *ScanCommandTestSuite) TestScanIndefiniteCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	out, done := s.StartCommand(ctx, "scan", "-d", "0")

	s.Eventually(func() bool { return s.Provider.ScanCalls() > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	cancel()

	s.Require().NoError(<-done)
	s.Contains(out.String(), "X2  Scale")
}

func TestScanCommandTestSuite(t *testing.T) {
	suite.Run(t, new(ScanCommandTestSuite))
}
