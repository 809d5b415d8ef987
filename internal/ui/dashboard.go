package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/ippower/internal/device"
	"github.com/muurk/ippower/internal/engine"
	"github.com/muurk/ippower/internal/state"
)

// commandTimeout bounds one toggle or refresh issued from the dashboard
const commandTimeout = 10 * time.Second

// Controller is the engine surface the dashboard drives.
type Controller interface {
	Sockets() [device.NumSockets]device.SocketRecord
	Status() (engine.Status, error)
	Subscribe(fn state.Observer) (cancel func())
	SubscribeStatus(fn engine.StatusObserver) (cancel func())
	ToggleSocketPower(ctx context.Context, id device.SocketID) error
	RefreshPowerState(ctx context.Context) error
}

// updateMsg signals that the cache or status changed
type updateMsg struct{}

// commandDoneMsg carries the result of a toggle or refresh
type commandDoneMsg struct {
	label string
	err   error
}

type dashboardKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	Socket  key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k dashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Socket, k.Toggle, k.Refresh, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k dashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle, k.Socket},
		{k.Refresh, k.Quit},
	}
}

func defaultKeys() dashboardKeyMap {
	return dashboardKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "toggle"),
		),
		Socket: key.NewBinding(
			key.WithKeys("1", "2", "3", "4"),
			key.WithHelp("1-4", "toggle socket"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// DashboardModel is the live socket view of `ippower watch`.
type DashboardModel struct {
	ctrl    Controller
	address string
	updates chan struct{}
	cancels []func()

	sockets   [device.NumSockets]device.SocketRecord
	status    engine.Status
	statusErr error

	cursor  int
	busy    string
	message string
	lastErr error

	width   int
	spinner spinner.Model
	help    help.Model
	keys    dashboardKeyMap
}

// NewDashboardModel creates the dashboard and subscribes it to ctrl. Call
// Close when the program exits.
func NewDashboardModel(ctrl Controller, address string) *DashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	m := &DashboardModel{
		ctrl:    ctrl,
		address: address,
		updates: make(chan struct{}, 1),
		width:   GetTerminalWidth(),
		spinner: s,
		help:    help.New(),
		keys:    defaultKeys(),
	}

	// Observers run on the poller's goroutine so they only signal
	notify := func() {
		select {
		case m.updates <- struct{}{}:
		default:
		}
	}
	m.cancels = append(m.cancels,
		ctrl.Subscribe(func(state.Change) { notify() }),
		ctrl.SubscribeStatus(func(engine.Status, error) { notify() }),
	)
	m.refresh()
	return m
}

// Close removes the dashboard's subscriptions
func (m *DashboardModel) Close() {
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
}

func (m *DashboardModel) refresh() {
	m.sockets = m.ctrl.Sockets()
	m.status, m.statusErr = m.ctrl.Status()
}

func (m *DashboardModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		<-m.updates
		return updateMsg{}
	}
}

func (m *DashboardModel) run(label string, fn func(ctx context.Context) error) tea.Cmd {
	m.busy = label
	m.message = ""
	m.lastErr = nil
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return commandDoneMsg{label: label, err: fn(ctx)}
	})
}

func (m *DashboardModel) toggle(idx int) tea.Cmd {
	id := device.SocketID(idx + 1)
	m.cursor = idx
	return m.run(fmt.Sprintf("Toggling %s", m.sockets[idx].Name), func(ctx context.Context) error {
		return m.ctrl.ToggleSocketPower(ctx, id)
	})
}

// Init implements tea.Model
func (m *DashboardModel) Init() tea.Cmd {
	return m.waitForUpdate()
}

// Update implements tea.Model
func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = min(max(msg.Width, MinTerminalWidth), MaxContentWidth)
		m.help.Width = m.width

	case updateMsg:
		m.refresh()
		return m, m.waitForUpdate()

	case commandDoneMsg:
		m.busy = ""
		m.refresh()
		if msg.err != nil {
			m.lastErr = msg.err
			m.message = msg.label + " failed"
		} else {
			m.message = msg.label + " done"
		}

	case spinner.TickMsg:
		if m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			m.cursor = (m.cursor + device.NumSockets - 1) % device.NumSockets
		case key.Matches(msg, m.keys.Down):
			m.cursor = (m.cursor + 1) % device.NumSockets
		case m.busy != "":
			// One command at a time
		case key.Matches(msg, m.keys.Socket):
			return m, m.toggle(int(msg.Runes[0] - '1'))
		case key.Matches(msg, m.keys.Toggle):
			return m, m.toggle(m.cursor)
		case key.Matches(msg, m.keys.Refresh):
			return m, m.run("Refresh", m.ctrl.RefreshPowerState)
		}
	}
	return m, nil
}

func statusStyle(s engine.Status) lipgloss.Style {
	switch s {
	case engine.StatusOK:
		return PowerOnStyle
	case engine.StatusConnecting, engine.StatusUnknown:
		return PowerUnsetStyle
	default:
		return ErrorTitleStyle
	}
}

// View implements tea.Model
func (m *DashboardModel) View() string {
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		TitleStyle.Render("IP POWER  "),
		statusStyle(m.status).Render(m.status.String()),
	)
	subtitle := SubtitleStyle.Render(m.address)

	var footer string
	switch {
	case m.busy != "":
		footer = m.spinner.View() + " " + m.busy + "..."
	case m.lastErr != nil:
		footer = ErrorMessageStyle.Render(FailureMarker + " " + m.message + ": " + device.ShortMessage(m.lastErr))
	case m.statusErr != nil:
		footer = ErrorMessageStyle.Render(device.ShortMessage(m.statusErr))
	case m.message != "":
		footer = SuccessTitleStyle.Render(SuccessMarker + " " + m.message)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		header,
		subtitle,
		"",
		RenderSocketTable(m.sockets[:], m.cursor),
		"",
		footer,
	)

	return BoxStyle(m.width, PrimaryColor).Render(content) + "\n" + m.help.View(m.keys) + "\n"
}

// RunDashboard runs the watch dashboard until the user quits
func RunDashboard(ctrl Controller, address string) error {
	m := NewDashboardModel(ctrl, address)
	defer m.Close()

	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
