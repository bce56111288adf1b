package ui

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrNotRunning is returned by Bridge calls made while no program is attached.
var ErrNotRunning = errors.New("ui: program not running")

// Bridge lets background components ask the running program for input. It
// implements notify.Alerter and permission.Prompter.
type Bridge struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach routes messages to send, normally (*tea.Program).Send.
func (b *Bridge) Attach(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

// Detach makes further calls fail with ErrNotRunning.
func (b *Bridge) Detach() {
	b.Attach(nil)
}

func (b *Bridge) sender() func(tea.Msg) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.send
}

// Alert shows value in a modal and blocks until the user dismisses it.
func (b *Bridge) Alert(ctx context.Context, value string) error {
	send := b.sender()
	if send == nil {
		return ErrNotRunning
	}
	done := make(chan struct{})
	send(AlertMsg{Value: value, Done: done})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Confirm asks a yes/no question in a modal.
func (b *Bridge) Confirm(ctx context.Context, question string) (bool, error) {
	send := b.sender()
	if send == nil {
		return false, ErrNotRunning
	}
	reply := make(chan bool, 1)
	send(PromptMsg{Question: question, Reply: reply})

	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
