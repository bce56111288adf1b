package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Without a subcommand blemon opens the
// interactive device screen.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "blemon",
		Short: "Bluetooth Low Energy device monitor",
		Long: `Bluetooth Low Energy (BLE) device monitor:

- Scan and list nearby BLE peripherals
- Connect to a peripheral and subscribe to every readable, notifiable characteristic
- Show each received value as an alert
- Resume scanning when the peripheral goes away

Run without a subcommand for the interactive screen.`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		RunE:    runTUI,
	}

	// Silence Cobra's "Error:" prefix - main() prints clean errors
	root.SilenceErrors = true

	root.AddCommand(newScanCmd())
	root.AddCommand(newMonitorCmd())

	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("verbose", false, "Shortcut for --log-level debug")
	root.PersistentFlags().String("log-file", "", "Write logs to this file")
	root.PersistentFlags().String("config", "", "Config file (default ~/.config/blemon/config.yaml)")
	root.PersistentFlags().String("permission", "", "Permission mode (auto, granted, prompt)")
	root.PersistentFlags().String("notify-policy", "", "Pending value policy (latest, queue)")
	root.PersistentFlags().Int("hci", -1, "HCI device index (linux)")
	root.PersistentFlags().Duration("connect-timeout", -1, "Connect and discovery timeout (0 for none)")

	// Add -v as a short flag for --version
	root.Flags().BoolP("version", "v", false, "Show version information")
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
