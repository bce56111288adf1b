package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blemon/internal/config"
)

// loadConfig reads the config file and applies the global flags on top of it.
// Flags left at their zero value do not override the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
	if v, _ := cmd.Flags().GetString("log-file"); v != "" {
		cfg.LogFile = v
	}
	if v, _ := cmd.Flags().GetString("permission"); v != "" {
		cfg.Permission.Mode = v
	}
	if v, _ := cmd.Flags().GetString("notify-policy"); v != "" {
		cfg.Notify.Policy = v
	}
	if v, _ := cmd.Flags().GetInt("hci"); v >= 0 {
		cfg.Adapter.HCIDevice = v
	}
	if v, _ := cmd.Flags().GetDuration("connect-timeout"); v >= 0 {
		cfg.Connect.Timeout = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// configureLogger creates the logger for a command. Without --log-level or
// --verbose it is silent; logs go to --log-file when set, otherwise to out.
func configureLogger(cfg *config.Config, out io.Writer) (*logrus.Logger, io.Closer, error) {
	return cfg.NewLogger(out)
}
