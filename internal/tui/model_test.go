package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
	"github.com/Dicklesworthstone/botmaster/internal/automation"
	"github.com/Dicklesworthstone/botmaster/internal/client"
	"github.com/Dicklesworthstone/botmaster/internal/dispatch"
	"github.com/Dicklesworthstone/botmaster/internal/events"
	"github.com/Dicklesworthstone/botmaster/internal/poller"
	"github.com/Dicklesworthstone/botmaster/internal/registry"
)

type stubClient struct {
	mu      sync.Mutex
	runs    int
	resumes int
	stops   int
}

func (s *stubClient) Status(ctx context.Context, id agent.AgentID) agent.RuntimeStatus {
	return agent.RuntimeStatus{Reachable: true, State: agent.StateIdle}
}

func (s *stubClient) Run(ctx context.Context, id agent.AgentID, order client.OrderRef) (bool, string) {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	return true, "started"
}

func (s *stubClient) Resume(ctx context.Context, id agent.AgentID) (bool, string) {
	s.mu.Lock()
	s.resumes++
	s.mu.Unlock()
	return true, "resumed"
}

func (s *stubClient) StopGently(ctx context.Context, id agent.AgentID) (bool, string) {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	return true, "stopping"
}

func (s *stubClient) GoHome(ctx context.Context, id agent.AgentID) (bool, string) {
	return true, "homing"
}

func (s *stubClient) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *stubClient) counts() (runs, resumes, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.resumes, s.stops
}

func testAgent(port int, name string) agent.Agent {
	return agent.Agent{
		ID:         agent.AgentID{Host: "127.0.0.1", Port: port},
		Name:       name,
		Enabled:    true,
		Automation: agent.DefaultAutomationConfig(),
	}
}

func newTestModel(t *testing.T) (Model, *stubClient, *dispatch.Dispatcher) {
	t.Helper()

	sc := &stubClient{}
	reg := registry.New()
	for _, a := range []agent.Agent{testAgent(7011, "alpha"), testAgent(7012, "beta")} {
		if err := reg.Add(a); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	bus := events.NewEventBus()
	em := events.NewEventEmitter(bus, 64)
	em.Start()
	t.Cleanup(em.Close)

	noDelay := map[dispatch.Kind]time.Duration{}
	disp := dispatch.New(sc, em, dispatch.WithDelays(noDelay))
	t.Cleanup(disp.Shutdown)

	sup := automation.NewSupervisor(disp, em, nil)
	p := poller.New(sc, time.Second, 2)
	ctrl := automation.NewController(reg, p, sup, em, automation.WithInterval(time.Hour))
	ctrl.Pass(context.Background())

	ch, unsub := bus.Subscribe(16)
	t.Cleanup(unsub)

	m := newModel(Options{
		Registry:   reg,
		Controller: ctrl,
		Supervisor: sup,
		Dispatcher: disp,
		Bus:        bus,
		Order:      func() client.OrderRef { return client.OrderRef{Path: "orders/default.json"} },
	}, ch)
	return m, sc, disp
}

func keyMsg(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestCursorMoves(t *testing.T) {
	m, _, _ := newTestModel(t)

	next, _ := m.Update(keyMsg('j'))
	m = next.(Model)
	if m.cursor != 1 {
		t.Fatalf("cursor = %d, want 1", m.cursor)
	}

	// Cannot move past the last agent.
	next, _ = m.Update(keyMsg('j'))
	m = next.(Model)
	if m.cursor != 1 {
		t.Fatalf("cursor = %d, want 1", m.cursor)
	}

	next, _ = m.Update(keyMsg('k'))
	m = next.(Model)
	if m.cursor != 0 {
		t.Fatalf("cursor = %d, want 0", m.cursor)
	}
}

func TestQuitKey(t *testing.T) {
	m, _, _ := newTestModel(t)

	next, cmd := m.Update(keyMsg('q'))
	m = next.(Model)
	if !m.quitting {
		t.Fatal("expected quitting")
	}
	if cmd == nil {
		t.Fatal("expected tea.Quit command")
	}
}

func TestRunKeyDispatches(t *testing.T) {
	m, sc, disp := newTestModel(t)

	next, _ := m.Update(keyMsg('r'))
	_ = next
	disp.Wait()

	if got := sc.runCount(); got != 1 {
		t.Fatalf("run calls = %d, want 1", got)
	}
}

func TestRunKeyRefusedWhileExecuting(t *testing.T) {
	m, sc, disp := newTestModel(t)
	id := agent.AgentID{Host: "127.0.0.1", Port: 7011}
	m.snap[id] = agent.RuntimeStatus{Reachable: true, State: agent.StateExecuting, IsExecuting: true}

	next, _ := m.Update(keyMsg('r'))
	m = next.(Model)
	disp.Wait()

	if runs, _, _ := sc.counts(); runs != 0 {
		t.Fatalf("run dispatched to an executing agent: %d calls", runs)
	}
	if len(m.log) == 0 || !strings.Contains(m.log[len(m.log)-1].text, "not runnable") {
		t.Fatal("expected a not-runnable note in the log")
	}
}

func TestResumeKeyNeedsIncompleteOrders(t *testing.T) {
	m, sc, disp := newTestModel(t)
	id := agent.AgentID{Host: "127.0.0.1", Port: 7011}

	// Idle with nothing to resume: refused.
	next, _ := m.Update(keyMsg('u'))
	m = next.(Model)
	disp.Wait()
	if _, resumes, _ := sc.counts(); resumes != 0 {
		t.Fatalf("resume dispatched with no incomplete orders: %d calls", resumes)
	}

	m.snap[id] = agent.RuntimeStatus{Reachable: true, State: agent.StateIdle, HasIncompleteOrders: true}
	next, _ = m.Update(keyMsg('u'))
	_ = next
	disp.Wait()
	if _, resumes, _ := sc.counts(); resumes != 1 {
		t.Fatalf("resume calls = %d, want 1", resumes)
	}
}

func TestStopKeyOnlyWhileExecuting(t *testing.T) {
	m, sc, disp := newTestModel(t)
	id := agent.AgentID{Host: "127.0.0.1", Port: 7011}

	// Idle agent: nothing to stop.
	next, _ := m.Update(keyMsg('s'))
	m = next.(Model)
	disp.Wait()
	if _, _, stops := sc.counts(); stops != 0 {
		t.Fatalf("stop dispatched to an idle agent: %d calls", stops)
	}

	m.snap[id] = agent.RuntimeStatus{Reachable: true, State: agent.StateExecuting, IsExecuting: true}
	next, _ = m.Update(keyMsg('s'))
	_ = next
	disp.Wait()
	if _, _, stops := sc.counts(); stops != 1 {
		t.Fatalf("stop calls = %d, want 1", stops)
	}
}

func TestRunKeyRefusedWhileUnreachable(t *testing.T) {
	m, sc, disp := newTestModel(t)
	id := agent.AgentID{Host: "127.0.0.1", Port: 7011}
	m.snap[id] = agent.Unreachable(agent.ErrorTimeout, "timeout")

	next, _ := m.Update(keyMsg('r'))
	_ = next
	disp.Wait()

	if runs, _, _ := sc.counts(); runs != 0 {
		t.Fatalf("run dispatched to an unreachable agent: %d calls", runs)
	}
}

func TestViewListsAgents(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.width = 100
	m.height = 30

	view := m.View()
	for _, want := range []string{"alpha", "beta", "idle"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestLogIsBounded(t *testing.T) {
	m, _, _ := newTestModel(t)
	for i := 0; i < maxLogLines*2; i++ {
		m.note("line")
	}
	if len(m.log) != maxLogLines {
		t.Fatalf("log length = %d, want %d", len(m.log), maxLogLines)
	}
}
