package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/tessera/internal/control"
	"github.com/mattjoyce/tessera/internal/events"
)

const (
	maxEventLog   = 50
	statusPeriod  = time.Second
	reconnectWait = 3 * time.Second
	cycleStepMS   = 100
)

// ChainState is one run-queue entry as seen through chain events.
type ChainState struct {
	Entry    string
	Result   string
	Duration time.Duration
	Location string
	Error    string
}

// Model is the BubbleTea model for `tessera monitor`.
type Model struct {
	client *client

	width  int
	height int

	status    control.Status
	connected bool
	cycleMS   uint
	chains    map[string]*ChainState
	order     []string
	eventLog  []events.Event
	hubEvents chan events.Event

	table   table.Model
	spinner Spinner
	theme   Theme

	lastError string
	notice    string
}

// New creates a monitor for the API at apiURL.
func New(apiURL, apiKey string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Entry", Width: 16},
			{Title: "Result", Width: 10},
			{Title: "Time", Width: 8},
			{Title: "Location", Width: 22},
			{Title: "Error", Width: 30},
		}),
		table.WithHeight(8),
	)
	return &Model{
		client:    newClient(apiURL, apiKey),
		chains:    make(map[string]*ChainState),
		hubEvents: make(chan events.Event, 100),
		table:     t,
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.client.subscribeCmd(m.hubEvents),
		receiveNextEvent(m.hubEvents),
		m.client.statusCmd(),
		m.client.cycleTimeCmd(),
		tea.Tick(statusPeriod, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.spinner.Decay()
		return m, tea.Batch(
			m.client.statusCmd(),
			tea.Tick(statusPeriod, func(t time.Time) tea.Msg { return tickMsg(t) }),
		)

	case statusMsg:
		m.status = control.Status(msg)
		m.connected = true
		m.lastError = ""

	case cycleMsg:
		m.cycleMS = uint(msg)

	case eventMsg:
		m.applyEvent(events.Event(msg))
		return m, receiveNextEvent(m.hubEvents)

	case actionMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
		} else {
			m.notice = msg.action + " ok"
		}
		return m, m.client.statusCmd()

	case sseDisconnectedMsg:
		m.connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(reconnectWait, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.client.subscribeCmd(m.hubEvents)

	case errMsg:
		m.connected = false
		m.lastError = msg.Error()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		return m, m.client.actionCmd("run", "POST", "/run", nil)
	case "c":
		return m, m.client.actionCmd("cancel", "POST", "/cancel", nil)
	case "n":
		return m, m.client.actionCmd("continue", "POST", "/continue", nil)
	case "+":
		m.cycleMS += cycleStepMS
		return m, m.client.setCycleTimeCmd(m.cycleMS)
	case "-":
		m.cycleMS = max(cycleStepMS, m.cycleMS) - cycleStepMS
		return m, m.client.setCycleTimeCmd(m.cycleMS)
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// applyEvent folds one controller event into the model.
func (m *Model) applyEvent(e events.Event) {
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[:maxEventLog]
	}
	m.spinner.OnEvent()
	m.connected = true

	switch e.Type {
	case events.RunStarted:
		var p events.RunPayload
		if e.Decode(&p) == nil {
			m.chains = make(map[string]*ChainState)
			m.order = nil
			m.status = control.Status{RunID: p.RunID, State: control.Running}
		}
	case events.RunCompleted, events.RunCancelled, events.RunFailed:
		var p events.RunPayload
		if e.Decode(&p) == nil {
			_ = m.status.State.UnmarshalText([]byte(p.State))
			m.status.Code = p.Code
		}
	case events.ChainStarted, events.ChainCompleted, events.ChainFailed:
		var p events.ChainPayload
		if e.Decode(&p) != nil {
			break
		}
		cs, ok := m.chains[p.Entry]
		if !ok {
			cs = &ChainState{Entry: p.Entry}
			m.chains[p.Entry] = cs
			m.order = append(m.order, p.Entry)
		}
		cs.Result = p.Result
		if e.Type == events.ChainStarted {
			cs.Result = "started"
		}
		cs.Duration = time.Duration(p.DurationMS) * time.Millisecond
		cs.Error = p.Error
		if p.Processor != "" {
			cs.Location = p.Processor
			if p.Endpoint != "" {
				cs.Location += ":" + p.Endpoint
			}
		}
	case events.CycleTimeChanged:
		var p struct {
			CycleTimeMS uint `json:"cycle_time_ms"`
		}
		if e.Decode(&p) == nil {
			m.cycleMS = p.CycleTimeMS
		}
	}
	m.refreshTable()
}

func (m *Model) refreshTable() {
	rows := make([]table.Row, 0, len(m.order))
	for _, entry := range m.order {
		cs := m.chains[entry]
		rows = append(rows, table.Row{
			cs.Entry,
			cs.Result,
			cs.Duration.String(),
			cs.Location,
			cs.Error,
		})
	}
	m.table.SetRows(rows)
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to tessera..."
	}

	parts := []string{
		renderHeader(m, m.width),
		m.theme.Border.Width(m.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("CHAINS"),
			m.table.View(),
		)),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ! %s", m.lastError)))
	} else if m.notice != "" {
		parts = append(parts, m.theme.Dim.Render(" "+m.notice))
	}
	parts = append(parts, m.theme.Dim.Render(" [r] run  [c] cancel  [n] continue  [+/-] cycle time  [q] quit"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
