package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blemon/internal/app"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/registry"
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor <device-id>",
		Short: "Connect to a device and print every value it notifies",
		Long: `Wait for the device to advertise, connect to it and subscribe to every
characteristic that is both readable and notifiable. Each received value is
printed as text.

When the device goes away, scanning resumes and blemon reconnects once it
advertises again.`,
		Example: `  blemon monitor AA:BB:CC:DD:EE:FF
  blemon monitor AA:BB:CC:DD:EE:FF --duration 5m --notify-policy queue`,
		Args: cobra.ExactArgs(1),
		RunE: runMonitor,
	}

	cmd.Flags().DurationP("duration", "d", 0, "Stop monitoring after this long (0 for indefinite)")
	cmd.Flags().Duration("scan-timeout", 30*time.Second, "Give up if the device does not advertise within this time (0 to wait forever)")
	return cmd
}

func runMonitor(cmd *cobra.Command, args []string) error {
	target := args[0]
	duration, _ := cmd.Flags().GetDuration("duration")
	scanTimeout, _ := cmd.Flags().GetDuration("scan-timeout")

	env, err := setupCommand(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	// Restrict discovery to the target; the registry only ever holds it.
	env.cfg.Scan.AllowList = []string{target}

	cmd.SilenceUsage = true

	a, err := env.newApp(newLineAlerter(env.out), newPrompter())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd.Context(), duration)
	defer cancel()

	m := &monitorLoop{
		app:     a,
		target:  target,
		env:     env,
		dropped: make(chan struct{}, 1),
	}
	sub := a.Store().Subscribe(m.onState)
	defer sub.Remove()

	if err := a.Start(ctx); err != nil {
		return err
	}

	err = m.run(ctx, scanTimeout)
	if errors.Is(err, context.DeadlineExceeded) && duration > 0 {
		return nil
	}
	return err
}

type monitorLoop struct {
	app     *app.App
	target  string
	env     *commandEnv
	dropped chan struct{}

	wasConnected bool
}

// onState runs under the store's notification lock; it only signals.
func (m *monitorLoop) onState(s *registry.State) {
	_, connected := s.Connected()
	if m.wasConnected && !connected {
		select {
		case m.dropped <- struct{}{}:
		default:
		}
	}
	m.wasConnected = connected
}

func (m *monitorLoop) run(ctx context.Context, scanTimeout time.Duration) error {
	logger := m.env.logger.WithField("device", m.target)

	var notFound <-chan time.Time
	if scanTimeout > 0 {
		timer := time.NewTimer(scanTimeout)
		defer timer.Stop()
		notFound = timer.C
	}

	var progress *ProgressPrinter
	if isTerminal(m.env.out) {
		progress = NewProgressPrinter(m.env.out, fmt.Sprintf("Waiting for %s", m.target), "Scanning")
		progress.Start()
	}
	stopProgress := func() {
		if progress != nil {
			progress.Stop()
			progress = nil
		}
	}
	defer stopProgress()

	everConnected := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-notFound:
			return fmt.Errorf("%w: %s did not advertise within %s", ErrDeviceNotFound, m.target, scanTimeout)

		case <-m.dropped:
			fmt.Fprintf(m.env.out, "Disconnected from %s, waiting for it to advertise again\n", m.target)

		case ev := <-m.app.Events().C():
			switch ev.Kind {
			case app.EventScanError:
				return ev.ScanErr
			case app.EventRadio:
				if err := radioError(ev.Radio); err != nil {
					return err
				}
			case app.EventDevice:
				if !strings.EqualFold(ev.Device.ID, m.target) || m.app.Manager().IsConnected() {
					continue
				}
				if progress != nil {
					progress.Callback()("Connecting")
				}
				session, err := m.app.Connect(ctx, ev.Device.ID)
				if err != nil {
					if !everConnected {
						return err
					}
					m.retry(ctx, logger, err)
					continue
				}
				stopProgress()
				notFound = nil
				everConnected = true

				fmt.Fprintf(m.env.out, "Connected to %s\n", session.Device.DisplayName())
				fmt.Fprintf(m.env.out, "Monitoring %d characteristic(s), Ctrl+C to stop\n", len(session.Monitored()))
			}
		}
	}
}

// retry resumes discovery after a failed reconnect so the next advertisement
// triggers another attempt.
func (m *monitorLoop) retry(ctx context.Context, logger *logrus.Entry, err error) {
	if ctx.Err() != nil {
		return
	}
	var connErr *device.ConnectError
	if errors.As(err, &connErr) {
		logger = logger.WithField("stage", connErr.Stage)
	}
	logger.WithError(err).Warn("Reconnect failed, scanning again")
	m.app.StartDiscovery(ctx)
}
