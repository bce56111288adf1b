package ui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blemon/internal/connection"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/registry"
)

type fakeController struct {
	mu          sync.Mutex
	connects    []string
	disconnects int
	clears      int
	connectErr  error
}

func (c *fakeController) Connect(_ context.Context, id string) (*connection.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects = append(c.connects, id)
	return nil, c.connectErr
}

func (c *fakeController) Disconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

func (c *fakeController) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func state(actions ...registry.Action) *registry.State {
	s := registry.NewState()
	for _, a := range actions {
		s = registry.Reduce(s, a)
	}
	return s
}

var (
	x1 = device.DiscoveredDevice{ID: "X1", Name: "Thermo", LocalName: "Thermo-LE"}
	x2 = device.DiscoveredDevice{ID: "X2", Name: "Scale", LocalName: "Scale-LE"}
)

// press feeds a key and runs the resulting command synchronously.
func press(t *testing.T, m *Model, k string) tea.Msg {
	t.Helper()
	_, cmd := m.Update(key(k))
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if msg != nil {
		m.Update(msg)
	}
	return msg
}

func TestModel_RendersRowsAndBanner(t *testing.T) {
	m := NewModel(&fakeController{}, state(registry.Add{Device: x1}, registry.Add{Device: x2}), nil)

	view := m.View()
	assert.Contains(t, view, "X1 - Thermo - Thermo-LE")
	assert.Contains(t, view, "X2 - Scale - Scale-LE")
	assert.NotContains(t, view, "Connected:")

	m.Update(RegistryMsg{State: state(registry.Add{Device: x1}, registry.Add{Device: x2}, registry.Connected{Device: x1})})
	assert.Contains(t, m.View(), "Connected: X1 - Thermo - Thermo-LE")
}

func TestModel_EmptyListShowsScanning(t *testing.T) {
	m := NewModel(&fakeController{}, nil, nil)
	assert.Contains(t, m.View(), "Scanning for devices...")
}

func TestModel_EnterConnectsSelectedDevice(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(ctrl, state(registry.Add{Device: x1}, registry.Add{Device: x2}), nil)

	m.Update(key("down"))
	_, cmd := m.Update(key("enter"))
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Connecting to X2...")

	_, again := m.Update(key("enter"))
	assert.Nil(t, again, "a second connect MUST wait for the first to finish")

	m.Update(cmd())
	assert.Equal(t, []string{"X2"}, ctrl.connects)
	assert.NotContains(t, m.View(), "Connecting to")
}

func TestModel_ConnectFailureIsNotSurfaced(t *testing.T) {
	ctrl := &fakeController{connectErr: errors.New("refused")}
	m := NewModel(ctrl, state(registry.Add{Device: x1}), nil)

	press(t, m, "enter")
	assert.Equal(t, []string{"X1"}, ctrl.connects)
	assert.NotContains(t, m.View(), "refused")
}

func TestModel_ClearAndDisconnect(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(ctrl, state(registry.Add{Device: x1}), nil)

	press(t, m, "d")
	assert.Zero(t, ctrl.disconnects, "disconnect without a connected device MUST do nothing")

	m.Update(RegistryMsg{State: state(registry.Add{Device: x1}, registry.Connected{Device: x1})})
	press(t, m, "d")
	assert.Equal(t, 1, ctrl.disconnects)

	press(t, m, "c")
	assert.Equal(t, 1, ctrl.clears)
}

func TestModel_AlertModalBlocksUntilDismissed(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(ctrl, state(registry.Add{Device: x1}), nil)

	done := make(chan struct{})
	m.Update(AlertMsg{Value: "Hello", Done: done})
	assert.Contains(t, m.View(), "Hello")

	press(t, m, "c")
	assert.Zero(t, ctrl.clears, "keys MUST NOT reach the list while a modal is open")

	m.Update(key("enter"))
	select {
	case <-done:
	default:
		t.Fatal("dismissing the modal MUST release the alerter")
	}
	assert.NotContains(t, m.View(), "Value received")
}

func TestModel_PromptAnswers(t *testing.T) {
	m := NewModel(&fakeController{}, nil, nil)

	reply := make(chan bool, 1)
	m.Update(PromptMsg{Question: "Allow blemon?", Reply: reply})
	assert.Contains(t, m.View(), "Allow blemon?")

	m.Update(key("n"))
	assert.False(t, <-reply)

	m.Update(PromptMsg{Question: "Allow blemon?", Reply: reply})
	m.Update(key("y"))
	assert.True(t, <-reply)
}

func TestModel_QuitReleasesModals(t *testing.T) {
	m := NewModel(&fakeController{}, nil, nil)
	done := make(chan struct{})
	reply := make(chan bool, 1)
	m.Update(AlertMsg{Value: "v", Done: done})
	m.Update(PromptMsg{Question: "q?", Reply: reply})

	_, cmd := m.Update(key("ctrl+c"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.False(t, <-reply)
	<-done
}

func TestBridge_AlertWaitsForDismissal(t *testing.T) {
	b := NewBridge()
	assert.ErrorIs(t, b.Alert(context.Background(), "x"), ErrNotRunning)

	msgs := make(chan tea.Msg, 1)
	b.Attach(func(msg tea.Msg) { msgs <- msg })

	result := make(chan error, 1)
	go func() { result <- b.Alert(context.Background(), "Hello") }()

	msg := (<-msgs).(AlertMsg)
	assert.Equal(t, "Hello", msg.Value)
	select {
	case <-result:
		t.Fatal("Alert MUST block until dismissed")
	case <-time.After(20 * time.Millisecond):
	}
	close(msg.Done)
	assert.NoError(t, <-result)
}

func TestBridge_ConfirmHonoursContext(t *testing.T) {
	b := NewBridge()
	b.Attach(func(tea.Msg) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := b.Confirm(ctx, "allow?")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}
