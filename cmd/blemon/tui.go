package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/blemon/internal/ui"
)

// runTUI opens the interactive device screen.
func runTUI(cmd *cobra.Command, _ []string) error {
	env, err := setupCommand(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	if env.cfg.LogFile == "" && env.cfg.LogLevel != "" {
		// logs written to the terminal would tear the screen
		return errors.New("--log-level needs --log-file when running the interactive screen")
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("the interactive screen needs a terminal; use 'blemon scan' or 'blemon monitor' instead")
	}

	cmd.SilenceUsage = true

	bridge := ui.NewBridge()
	a, err := env.newApp(bridge, bridge)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd.Context(), 0)
	defer cancel()

	return ui.Run(ctx, a, bridge, env.logger)
}
