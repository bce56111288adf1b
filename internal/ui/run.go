package ui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/srg/blemon/internal/app"
	"github.com/srg/blemon/internal/registry"
)

// Run shows the screen for a until the user quits or ctx is cancelled. bridge must
// be the alerter and prompter a was built with. Run starts a.
func Run(ctx context.Context, a *app.App, bridge *Bridge, logger *logrus.Logger, opts ...tea.ProgramOption) error {
	model := NewModel(a, a.Store().State(), logger)
	p := tea.NewProgram(model, append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)...)

	bridge.Attach(p.Send)
	defer bridge.Detach()

	sub := a.Store().Subscribe(func(s *registry.State) {
		p.Send(RegistryMsg{State: s})
	})
	defer sub.Remove()

	if err := a.Start(ctx); err != nil {
		return err
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
