package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blemon/internal/app"
	"github.com/srg/blemon/internal/device"
)

var validFormats = []string{"table", "json"}

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE devices",
		Long: `Scan for Bluetooth Low Energy devices in the vicinity and list them.

Every peripheral is listed once, with the identity of its most recent
advertisement. With --duration 0 the scan runs until Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}

	cmd.Flags().DurationP("duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringSliceP("services", "s", nil, "Only report devices advertising these service UUIDs")
	cmd.Flags().StringSlice("allow", nil, "Only show devices with these ids")
	cmd.Flags().StringSlice("block", nil, "Hide devices with these ids")
	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if !slices.Contains(validFormats, format) {
		return fmt.Errorf("invalid format '%s': must be one of %v", format, validFormats)
	}
	duration, _ := cmd.Flags().GetDuration("duration")

	env, err := setupCommand(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	if services, _ := cmd.Flags().GetStringSlice("services"); len(services) > 0 {
		env.cfg.Scan.Services = services
	}
	if allow, _ := cmd.Flags().GetStringSlice("allow"); len(allow) > 0 {
		env.cfg.Scan.AllowList = allow
	}
	if block, _ := cmd.Flags().GetStringSlice("block"); len(block) > 0 {
		env.cfg.Scan.BlockList = block
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	a, err := env.newApp(newLineAlerter(env.out), newPrompter())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd.Context(), duration)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	if isTerminal(env.out) {
		var progress *ProgressPrinter
		if duration > 0 {
			progress = NewCountdownProgressPrinter(env.out, "Scanning for BLE devices", "Scanning", duration)
		} else {
			progress = NewProgressPrinter(env.out, "Scanning for BLE devices (Ctrl+C to stop)", "Scanning")
		}
		progress.Start()
		defer progress.Stop()
	}

	if err := collectScan(ctx, a); err != nil {
		return err
	}

	devices := a.Store().State().Devices()
	env.logger.WithField("devices", len(devices)).Debug("Scan finished")

	if format == "json" {
		return displayDevicesJSON(env.out, devices)
	}
	return displayDevicesTable(env.out, devices)
}

// collectScan drains discovery events until ctx ends. Scan failures and a radio
// that cannot scan end it early with an error.
func collectScan(ctx context.Context, a *app.App) error {
	for {
		select {
		case <-ctx.Done():
			// timeout and Ctrl+C both print what was found
			return nil
		case ev := <-a.Events().C():
			switch ev.Kind {
			case app.EventScanError:
				return ev.ScanErr
			case app.EventRadio:
				if err := radioError(ev.Radio); err != nil {
					return err
				}
			}
		}
	}
}

func displayDevicesTable(out io.Writer, devices []device.DiscoveredDevice) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "No devices discovered")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLOCAL NAME\tRSSI")

	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d dBm\n", d.ID, truncate(d.Name, 20), truncate(d.LocalName, 20), d.RSSI)
	}
	return w.Flush()
}

func displayDevicesJSON(out io.Writer, devices []device.DiscoveredDevice) error {
	if devices == nil {
		devices = []device.DiscoveredDevice{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
