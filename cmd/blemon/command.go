package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blemon/internal/app"
	"github.com/srg/blemon/internal/config"
	"github.com/srg/blemon/internal/device"
	goble "github.com/srg/blemon/internal/device/go-ble"
	"github.com/srg/blemon/internal/notify"
	"github.com/srg/blemon/internal/permission"
)

// newProvider opens the platform BLE stack. Tests replace it with a fake.
var newProvider = func(cfg *config.Config, logger *logrus.Logger) device.Provider {
	return goble.NewProvider(cfg.ProviderOptions(), logger)
}

// newPrompter backs interactive permission requests of the headless commands.
var newPrompter = func() permission.Prompter {
	return permission.NewTerminalPrompter()
}

// commandEnv is what every subcommand sets up before touching the radio.
type commandEnv struct {
	cfg    *config.Config
	logger *logrus.Logger
	out    io.Writer
	closer io.Closer
}

func (e *commandEnv) Close() error {
	return e.closer.Close()
}

func setupCommand(cmd *cobra.Command) (*commandEnv, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, closer, err := configureLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return &commandEnv{
		cfg:    cfg,
		logger: logger,
		out:    &syncWriter{w: cmd.OutOrStdout()},
		closer: closer,
	}, nil
}

func (e *commandEnv) newApp(alerter notify.Alerter, prompter permission.Prompter) (*app.App, error) {
	a, err := app.New(app.Options{
		Config:   e.cfg,
		Provider: newProvider(e.cfg, e.logger),
		Prompter: prompter,
		Alerter:  alerter,
		Logger:   e.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE runtime: %w", err)
	}
	return a, nil
}

// commandContext is cancelled on Ctrl+C, SIGTERM or, when d > 0, after d.
func commandContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if d <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		stop()
	}
}

// radioError maps a terminal radio state to an error. Transient states map to nil.
func radioError(st device.RadioState) error {
	switch st {
	case device.RadioPoweredOff:
		return device.ErrBluetoothOff
	case device.RadioUnsupported:
		return device.ErrUnsupported
	case device.RadioUnauthorized:
		return &device.PermissionDeniedError{Permission: "bluetooth"}
	}
	return nil
}
