//go:build test

package scanner_test

import (
	"sync"
	"testing"
	"time"

	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/scanner"
	"github.com/srg/blemon/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ScannerTestSuite struct {
	suite.Suite

	helper   *testutils.TestHelper
	provider *testutils.FakeProvider

	mu      sync.Mutex
	devices []device.DiscoveredDevice
	errs    chan *device.ScanError
}

func (s *ScannerTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.provider = testutils.NewFakeProvider()
	s.devices = nil
	s.errs = make(chan *device.ScanError, 1)
}

func (s *ScannerTestSuite) onDevice(d device.DiscoveredDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append(s.devices, d)
}

func (s *ScannerTestSuite) onError(err *device.ScanError) {
	s.errs <- err
}

func (s *ScannerTestSuite) seen() []device.DiscoveredDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]device.DiscoveredDevice(nil), s.devices...)
}

func (s *ScannerTestSuite) waitScanStarted() {
	select {
	case <-s.provider.ScanStarted():
	case <-time.After(2 * time.Second):
		s.FailNow("scan MUST start")
	}
}

func (s *ScannerTestSuite) TestForwardsDuplicates() {
	// GOAL: deduplication is not the scanner's job
	//
	// TEST SCENARIO: same advertisement twice → onDevice called twice

	sc := scanner.New(s.provider, nil, s.helper.Logger)
	s.True(sc.Start(s.onDevice, s.onError))
	s.waitScanStarted()

	adv := testutils.FakeAdvertisement{ID: "X1", Name: "Sensor", Rssi: -40}
	s.True(s.provider.Advertise(adv))
	s.True(s.provider.Advertise(adv))

	got := s.seen()
	s.Require().Len(got, 2, "duplicates MUST be forwarded")
	s.Equal(device.DiscoveredDevice{ID: "X1", Name: "Sensor", LocalName: "Sensor", RSSI: -40}, got[0])

	sc.Stop()
}

func (s *ScannerTestSuite) TestStartWhileScanningIsNoop() {
	sc := scanner.New(s.provider, nil, s.helper.Logger)
	s.True(sc.Start(s.onDevice, s.onError))
	s.waitScanStarted()

	s.False(sc.Start(s.onDevice, s.onError), "second Start MUST be a no-op")
	s.Equal(1, s.provider.ScanCalls())
	s.True(sc.Scanning())

	sc.Stop()
}

func (s *ScannerTestSuite) TestStopIsIdempotent() {
	sc := scanner.New(s.provider, nil, s.helper.Logger)
	sc.Stop()

	s.True(sc.Start(s.onDevice, s.onError))
	s.waitScanStarted()

	sc.Stop()
	sc.Stop()
	s.False(sc.Scanning())
	s.Eventually(func() bool { return !s.provider.Scanning() }, time.Second, 5*time.Millisecond,
		"provider scan MUST be cancelled")

	s.False(s.provider.Advertise(testutils.FakeAdvertisement{ID: "late"}))
	s.Empty(s.seen())

	select {
	case err := <-s.errs:
		s.Failf("Stop MUST NOT report an error", "got %v", err)
	default:
	}

	s.True(sc.Start(s.onDevice, s.onError), "scan MUST be restartable after Stop")
	s.waitScanStarted()
	sc.Stop()
}

func (s *ScannerTestSuite) TestProviderErrorReportsDiagnosticsAndStops() {
	// GOAL: a provider failure reaches onError with the diagnostic bundle and the
	// scanner does not restart
	//
	// TEST SCENARIO: scan running → provider fails with bluetooth off → onError gets
	// code 102 with a stack label → Scanning() is false

	sc := scanner.New(s.provider, nil, s.helper.Logger)
	s.True(sc.Start(s.onDevice, s.onError))
	s.waitScanStarted()

	s.True(s.provider.FailScan(device.NormalizeError(assertErr("Bluetooth is turned off"))))

	select {
	case err := <-s.errs:
		s.Equal(device.ErrorBluetoothPoweredOff, err.ErrorCode)
		s.Contains(err.Message, "turned off")
		s.Contains(err.Stack, "ble-scan", "stack MUST name the scanning goroutine")
		s.ErrorIs(err, device.ErrBluetoothOff)
	case <-time.After(2 * time.Second):
		s.FailNow("onError MUST be called")
	}

	s.Eventually(func() bool { return !sc.Scanning() }, time.Second, 5*time.Millisecond)
	s.Equal(1, s.provider.ScanCalls(), "scanner MUST NOT restart on error")
}

func (s *ScannerTestSuite) TestFilters() {
	sc := scanner.New(s.provider, &scanner.Options{
		BlockList:    []string{"bb"},
		ServiceUUIDs: []string{"0000180D-0000-1000-8000-00805F9B34FB"},
	}, s.helper.Logger)
	s.True(sc.Start(s.onDevice, s.onError))
	s.waitScanStarted()

	s.provider.Advertise(testutils.FakeAdvertisement{ID: "AA", ServiceUUIDs: []string{"180d"}})
	s.provider.Advertise(testutils.FakeAdvertisement{ID: "BB", ServiceUUIDs: []string{"180d"}})
	s.provider.Advertise(testutils.FakeAdvertisement{ID: "CC", ServiceUUIDs: []string{"180f"}})
	sc.Stop()

	got := s.seen()
	s.Require().Len(got, 1)
	s.Equal("AA", got[0].ID)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestScannerTestSuite(t *testing.T) {
	suite.Run(t, new(ScannerTestSuite))
}
