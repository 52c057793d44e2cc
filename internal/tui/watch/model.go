package watch

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/agentgw/internal/events"
)

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health    HealthState
	processes map[string]*ProcessState
	eventLog  []events.Event
	lastID    int64

	pulse Pulse
	table table.Model
	theme Theme
	now   time.Time

	hubEvents chan events.Event
	lastError string
}

// New creates a watch model for the gateway at apiURL.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		processes: make(map[string]*ProcessState),
		hubEvents: make(chan events.Event, 100),
		table:     newProcessTable(),
		theme:     NewDefaultTheme(),
		now:       time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(msg.Width-8, 20))

	case tickMsg:
		m.now = time.Time(msg)
		m.pulse.Decay(m.now)
		m.refreshTable()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		m.apply(events.Event(msg))
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.ProfilesLoaded = msg.ProfilesLoaded
		m.health.ProfilesError = msg.ProfilesError
		m.health.ActiveProcesses = msg.ActiveProcesses
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.lastID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})
	}

	return m, nil
}

// apply records e in the log and process table. Replayed events already
// seen are skipped.
func (m *Model) apply(e events.Event) {
	if e.ID != 0 && e.ID <= m.lastID {
		return
	}
	if e.ID != 0 {
		m.lastID = e.ID
	}

	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[:maxEventLog]
	}
	if e.Type == events.ProcessOutput {
		m.pulse.Hit(e.At)
	}
	updateProcessState(m.processes, e)
	m.refreshTable()

	m.health.Connected = true
	m.lastError = ""
}

func (m *Model) refreshTable() {
	m.table.SetRows(processRows(sortedProcesses(m.processes), m.now))
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to agentgw..."
	}

	parts := []string{
		renderHeader(m.health, m.pulse, m.theme, m.width, m.now),
		renderProcesses(m.table, len(m.processes), m.theme, m.width),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" ! "+m.lastError))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Select process"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
