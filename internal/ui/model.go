// Package ui is the interactive device screen.
package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/srg/blemon/internal/connection"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/registry"
)

// Controller is what the screen can ask of the application.
type Controller interface {
	Connect(ctx context.Context, id string) (*connection.Session, error)
	Disconnect(ctx context.Context) error
	Clear()
}

// RegistryMsg carries a new registry snapshot.
type RegistryMsg struct {
	State *registry.State
}

// AlertMsg opens the value modal. Done is closed when the user dismisses it.
type AlertMsg struct {
	Value string
	Done  chan struct{}
}

// PromptMsg opens a yes/no modal. The answer is sent on Reply.
type PromptMsg struct {
	Question string
	Reply    chan<- bool
}

type connectDoneMsg struct {
	id  string
	err error
}

type disconnectDoneMsg struct{ err error }

// Ensure *Model satisfies tea.Model.
var _ tea.Model = (*Model)(nil)

// Model is the root screen: header, connected banner, device rows and modals.
type Model struct {
	ctrl   Controller
	logger *logrus.Logger

	devices    []device.DiscoveredDevice
	connected  *device.DiscoveredDevice
	cursor     int
	connecting string

	alerts []AlertMsg
	prompt *PromptMsg

	width  int
	height int
}

// NewModel creates the screen showing initial.
func NewModel(ctrl Controller, initial *registry.State, logger *logrus.Logger) *Model {
	if logger == nil {
		logger = logrus.New()
	}
	m := &Model{ctrl: ctrl, logger: logger}
	m.apply(initial)
	return m
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) apply(s *registry.State) {
	if s == nil {
		return
	}
	m.devices = s.Devices()
	if d, ok := s.Connected(); ok {
		m.connected = &d
	} else {
		m.connected = nil
	}
	if m.cursor >= len(m.devices) {
		m.cursor = max(len(m.devices)-1, 0)
	}
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case RegistryMsg:
		m.apply(msg.State)
		return m, nil

	case AlertMsg:
		m.alerts = append(m.alerts, msg)
		return m, nil

	case PromptMsg:
		if m.prompt != nil {
			m.prompt.Reply <- false
		}
		m.prompt = &msg
		return m, nil

	case connectDoneMsg:
		if m.connecting == msg.id {
			m.connecting = ""
		}
		if msg.err != nil {
			m.logger.WithFields(logrus.Fields{
				"address": msg.id,
				"error":   msg.err,
			}).Warn("Connect from screen failed")
		}
		return m, nil

	case disconnectDoneMsg:
		if msg.err != nil {
			m.logger.WithField("error", msg.err).Warn("Disconnect from screen failed")
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.dismissAll()
		return m, tea.Quit
	}

	if m.prompt != nil {
		switch msg.String() {
		case "y", "enter":
			m.answer(true)
		case "n", "esc":
			m.answer(false)
		}
		return m, nil
	}

	if len(m.alerts) > 0 {
		switch msg.String() {
		case "enter", "esc", " ":
			close(m.alerts[0].Done)
			m.alerts = m.alerts[1:]
		}
		return m, nil
	}

	switch msg.String() {
	case "q":
		m.dismissAll()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.devices)-1 {
			m.cursor++
		}
	case "c":
		return m, m.clearCmd()
	case "d":
		if m.connected != nil {
			return m, m.disconnectCmd()
		}
	case "enter":
		if len(m.devices) == 0 || m.connecting != "" {
			return m, nil
		}
		d := m.devices[m.cursor]
		if m.connected != nil && m.connected.ID == d.ID {
			return m, nil
		}
		m.connecting = d.ID
		return m, m.connectCmd(d.ID)
	}
	return m, nil
}

func (m *Model) answer(ok bool) {
	m.prompt.Reply <- ok
	m.prompt = nil
}

// dismissAll releases every goroutine blocked on a modal.
func (m *Model) dismissAll() {
	if m.prompt != nil {
		m.answer(false)
	}
	for _, a := range m.alerts {
		close(a.Done)
	}
	m.alerts = nil
}

// Controller calls run as commands: they dispatch registry actions, and the store
// delivers the result back through Program.Send.
func (m *Model) connectCmd(id string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.ctrl.Connect(context.Background(), id)
		return connectDoneMsg{id: id, err: err}
	}
}

func (m *Model) disconnectCmd() tea.Cmd {
	return func() tea.Msg {
		return disconnectDoneMsg{err: m.ctrl.Disconnect(context.Background())}
	}
}

func (m *Model) clearCmd() tea.Cmd {
	return func() tea.Msg {
		m.ctrl.Clear()
		return nil
	}
}

// View renders the screen.
func (m *Model) View() string {
	if m.prompt != nil {
		return m.modal("Permission", m.prompt.Question, "[y] allow  [n] deny")
	}
	if len(m.alerts) > 0 {
		return m.modal("Value received", m.alerts[0].Value, "[enter] dismiss")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("blemon"))
	b.WriteString("  ")
	b.WriteString(keyStyle.Render("[c]") + mutedStyle.Render(" clear"))
	b.WriteString("\n\n")

	if m.connected != nil {
		banner := fmt.Sprintf("Connected: %s  %s", m.connected.DisplayName(),
			keyStyle.Render("[d]")+mutedStyle.Render(" disconnect"))
		b.WriteString(bannerStyle.Render(banner))
		b.WriteString("\n\n")
	}

	if m.connecting != "" {
		b.WriteString(statusStyle.Render("Connecting to " + m.connecting + "..."))
		b.WriteString("\n\n")
	}

	if len(m.devices) == 0 {
		b.WriteString(mutedStyle.Render("Scanning for devices..."))
		b.WriteString("\n")
	}
	for i, d := range m.devices {
		row := d.DisplayName()
		if m.connected != nil && m.connected.ID == d.ID {
			row = connectedStyle.Render(row) + "  " + keyStyle.Render("[d]") + mutedStyle.Render(" disconnect")
		}
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> ") + row)
		} else {
			b.WriteString("  " + row)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("↑/↓ select  enter connect  d disconnect  c clear  q quit"))
	return b.String()
}

func (m *Model) modal(title, body, hint string) string {
	box := modalStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		"",
		body,
		"",
		mutedStyle.Render(hint),
	))
	if m.width == 0 || m.height == 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
