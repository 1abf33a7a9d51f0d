package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
	"github.com/Dicklesworthstone/botmaster/internal/automation"
	"github.com/Dicklesworthstone/botmaster/internal/dispatch"
	"github.com/Dicklesworthstone/botmaster/internal/events"
	"github.com/Dicklesworthstone/botmaster/internal/poller"
)

// tickMsg drives the periodic re-read of fleet state.
type tickMsg time.Time

// busMsg wraps one event received from the bus.
type busMsg struct {
	ev events.BusEvent
}

// tickInterval is how often the dashboard re-reads the controller snapshot.
// Polling itself happens on the controller's own cadence; this only refreshes
// what is painted.
const tickInterval = time.Second

// maxLogLines bounds the activity log kept in memory.
const maxLogLines = 100

// KeyMap defines the dashboard keybindings.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Run     key.Binding
	Resume  key.Binding
	Stop    key.Binding
	GoHome  key.Binding
	Timer   key.Binding
	Cancel  key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

var dashKeys = KeyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Run:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "run")),
	Resume:  key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "resume")),
	Stop:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
	GoHome:  key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "go home")),
	Timer:   key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "arm timer")),
	Cancel:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "cancel pending")),
	Refresh: key.NewBinding(key.WithKeys("R", "f5"), key.WithHelp("R", "refresh")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type logLine struct {
	at   time.Time
	text string
}

// Model is the dashboard model. It holds read-only views of the supervision
// loop's state; all mutation goes through the supervisor and dispatcher.
type Model struct {
	opts    Options
	eventCh <-chan events.BusEvent

	agents []agent.Agent
	snap   poller.Snapshot
	runs   map[agent.AgentID]automation.RunInfo

	cursor   int
	width    int
	height   int
	colored  bool
	quitting bool

	log []logLine
}

func newModel(opts Options, ch <-chan events.BusEvent) Model {
	m := Model{
		opts:    opts,
		eventCh: ch,
		width:   80,
		height:  24,
		runs:    make(map[agent.AgentID]automation.RunInfo),
	}
	m.reload()
	return m
}

// reload pulls fresh agent, status, and automation views.
func (m *Model) reload() {
	m.agents = m.opts.Registry.List()
	m.snap = m.opts.Controller.Snapshot()
	runs := make(map[agent.AgentID]automation.RunInfo, len(m.agents))
	for _, a := range m.agents {
		if info, ok := m.opts.Supervisor.Info(a.ID); ok {
			runs[a.ID] = info
		}
	}
	m.runs = runs
	if m.cursor >= len(m.agents) {
		m.cursor = len(m.agents) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.waitForEvent())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) waitForEvent() tea.Cmd {
	ch := m.eventCh
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return busMsg{ev: ev}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.reload()
		return m, m.tick()

	case busMsg:
		m.appendLog(msg.ev)
		m.reload()
		return m, m.waitForEvent()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, dashKeys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, dashKeys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, dashKeys.Down):
		if m.cursor < len(m.agents)-1 {
			m.cursor++
		}

	case key.Matches(msg, dashKeys.Refresh):
		m.opts.Controller.RefreshNow()
		m.note("refresh requested")

	case key.Matches(msg, dashKeys.Run):
		if a, ok := m.selected(); ok {
			if !m.snap[a.ID].CanRun() {
				m.note(a.DisplayName() + " is not runnable right now")
				break
			}
			m.opts.Dispatcher.Dispatch(a, dispatch.KindRun, m.opts.Order())
			m.note("run dispatched to " + a.DisplayName())
		}

	case key.Matches(msg, dashKeys.Resume):
		if a, ok := m.selected(); ok {
			if !m.snap[a.ID].CanResume() {
				m.note(a.DisplayName() + " has nothing to resume")
				break
			}
			m.opts.Dispatcher.Dispatch(a, dispatch.KindResume, m.opts.Order())
			m.note("resume dispatched to " + a.DisplayName())
		}

	case key.Matches(msg, dashKeys.Stop):
		if a, ok := m.selected(); ok {
			if !m.snap[a.ID].CanStop() {
				m.note(a.DisplayName() + " is not executing")
				break
			}
			m.opts.Dispatcher.StopThenHome(a)
			m.note("stop dispatched to " + a.DisplayName())
		}

	case key.Matches(msg, dashKeys.GoHome):
		if a, ok := m.selected(); ok {
			m.opts.Dispatcher.Dispatch(a, dispatch.KindGoHome, m.opts.Order())
			m.note("go-home dispatched to " + a.DisplayName())
		}

	case key.Matches(msg, dashKeys.Timer):
		if a, ok := m.selected(); ok {
			if err := m.opts.Supervisor.ArmTimer(a); err != nil {
				m.note("timer: " + err.Error())
			} else {
				m.note("timer armed for " + a.DisplayName())
			}
		}

	case key.Matches(msg, dashKeys.Cancel):
		if a, ok := m.selected(); ok {
			m.opts.Dispatcher.Cancel(a.ID)
			m.note("canceled pending work for " + a.DisplayName())
		}
	}

	return m, nil
}

func (m Model) selected() (agent.Agent, bool) {
	if m.cursor < 0 || m.cursor >= len(m.agents) {
		return agent.Agent{}, false
	}
	return m.agents[m.cursor], true
}

func (m *Model) note(text string) {
	m.push(logLine{at: time.Now(), text: text})
}

func (m *Model) appendLog(ev events.BusEvent) {
	var text string
	switch e := ev.(type) {
	case events.StatusUpdated:
		// Every poll touches every agent; logging those would bury the
		// interesting lines.
		return
	case events.ActionCompleted:
		mark := "ok"
		if !e.Success {
			mark = "FAILED"
		}
		text = fmt.Sprintf("%s %s on %s: %s", mark, e.Action, e.Name, e.Message)
	case events.TimerArmed:
		text = fmt.Sprintf("timer armed for %s until %s", e.AgentID, e.EndTime.Format("15:04"))
	case events.TimerExpired:
		text = fmt.Sprintf("timer expired for %s", e.AgentID)
	case events.ScheduleActivated:
		text = fmt.Sprintf("schedule %s-%s active for %s", e.Start, e.End, e.AgentID)
	case events.ScheduleTransition:
		text = fmt.Sprintf("schedule %s %s", e.Action, e.AgentID)
	case events.AgentAdded:
		text = fmt.Sprintf("agent added: %s", e.AgentID)
	case events.AgentRemoved:
		text = fmt.Sprintf("agent removed: %s", e.AgentID)
	case events.ConfigReloaded:
		text = fmt.Sprintf("config reloaded (%d agents)", e.AgentCount)
	default:
		text = ev.EventType()
	}
	m.push(logLine{at: time.Now(), text: text})
}

func (m *Model) push(l logLine) {
	m.log = append(m.log, l)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}
