// Package automation decides, per managed agent, when to start and stop work
// based on the configured mode: a fixed-duration timer or a daily wall-clock
// window. Decisions are taken once per tick against a complete status
// snapshot; dispatch is asynchronous and never retried within a tick — the
// next tick is the only retry mechanism.
package automation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
	"github.com/Dicklesworthstone/botmaster/internal/client"
	"github.com/Dicklesworthstone/botmaster/internal/events"
	"github.com/Dicklesworthstone/botmaster/internal/poller"
)

// ActionDispatcher is the slice of the dispatcher the supervisor drives.
type ActionDispatcher interface {
	StartRun(a agent.Agent, useResume bool, order client.OrderRef)
	StopThenHome(a agent.Agent)
	Cancel(id agent.AgentID)
}

// lastAction is the schedule dedup guard.
type lastAction int

const (
	actionNone lastAction = iota
	actionStarted
	actionStopped
)

func (a lastAction) String() string {
	switch a {
	case actionStarted:
		return "started"
	case actionStopped:
		return "stopped"
	default:
		return "none"
	}
}

// TimerRun is the ephemeral state of an armed timer. It is destroyed when the
// expiry stop has been dispatched, or when the agent is removed. A failed
// expiry stop is not retried and the timer is not re-armed: the agent may be
// left running after a failed stop, which surfaces to the operator as a
// failed ActionCompleted event.
type TimerRun struct {
	End       time.Time
	UseResume bool
}

// ScheduleRun is the ephemeral state of an active daily schedule.
type ScheduleRun struct {
	cfg  agent.AutomationConfig
	last lastAction
}

// RunInfo describes an agent's automation state for display.
type RunInfo struct {
	Mode agent.AutomationMode
	// Timer mode: absolute end time.
	TimerEnd time.Time
	// Schedule mode: configured window and last transition.
	Start, End agent.TimeOfDay
	LastAction string
}

// Supervisor owns all per-agent automation state. Every mutation and every
// tick decision goes through one mutex; status snapshots are read-only.
type Supervisor struct {
	dispatcher ActionDispatcher
	emitter    *events.EventEmitter

	// order supplies the work-order reference for automated fresh starts;
	// consulted at dispatch time so config reloads take effect.
	order func() client.OrderRef

	// now is replaceable for tests.
	now func() time.Time

	mu        sync.Mutex
	timers    map[agent.AgentID]*TimerRun
	schedules map[agent.AgentID]*ScheduleRun
}

// NewSupervisor creates a supervisor wired to the dispatcher and emitter.
func NewSupervisor(d ActionDispatcher, emitter *events.EventEmitter, order func() client.OrderRef) *Supervisor {
	if order == nil {
		order = func() client.OrderRef { return client.OrderRef{} }
	}
	return &Supervisor{
		dispatcher: d,
		emitter:    emitter,
		order:      order,
		now:        time.Now,
		timers:     make(map[agent.AgentID]*TimerRun),
		schedules:  make(map[agent.AgentID]*ScheduleRun),
	}
}

// SetNow overrides the clock (tests).
func (s *Supervisor) SetNow(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// ArmTimer activates timer mode for the agent: the run starts immediately
// and a gentle stop fires once when the duration elapses. Re-arming replaces
// any existing timer without firing a spurious stop.
func (s *Supervisor) ArmTimer(a agent.Agent) error {
	cfg := a.Automation
	if cfg.Mode != agent.ModeTimer {
		return fmt.Errorf("agent %s: automation mode is %s, not timer", a.ID, cfg.Mode)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	end := s.now().Add(cfg.TimerDuration())
	delete(s.schedules, a.ID) // mode change destroys the other run kind
	s.timers[a.ID] = &TimerRun{End: end, UseResume: cfg.UseResume}
	s.mu.Unlock()

	slog.Info("timer armed", "agent", a.ID, "end", end.Format(time.RFC3339))
	s.emitter.Emit(events.NewTimerArmed(a.ID, end))
	s.dispatcher.StartRun(a, cfg.UseResume, s.order())
	return nil
}

// ActivateSchedule activates schedule mode for the agent. The dedup guard is
// reset so the next tick may act; the first transition happens on the next
// poll-then-supervise cycle.
func (s *Supervisor) ActivateSchedule(a agent.Agent) error {
	cfg := a.Automation
	if cfg.Mode != agent.ModeSchedule {
		return fmt.Errorf("agent %s: automation mode is %s, not schedule", a.ID, cfg.Mode)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.timers, a.ID)
	s.schedules[a.ID] = &ScheduleRun{cfg: cfg}
	s.mu.Unlock()

	slog.Info("schedule activated", "agent", a.ID,
		"start", cfg.ScheduleStart, "end", cfg.ScheduleEnd, "resume", cfg.UseResume)
	s.emitter.Emit(events.NewScheduleActivated(a.ID, cfg.ScheduleStart, cfg.ScheduleEnd))
	return nil
}

// OnConfigChanged reconciles a saved config edit with the live automation
// state. A mode change destroys the stale run; re-saving schedule mode
// replaces the window and resets the dedup guard. Timers are not re-armed by
// a config edit — only ArmTimer starts a timer session.
func (s *Supervisor) OnConfigChanged(a agent.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.Automation.Mode != agent.ModeTimer {
		delete(s.timers, a.ID)
	}
	if a.Automation.Mode != agent.ModeSchedule {
		delete(s.schedules, a.ID)
		return
	}
	if _, active := s.schedules[a.ID]; active {
		s.schedules[a.ID] = &ScheduleRun{cfg: a.Automation}
	}
}

// Deactivate drops all automation state for the agent without dispatching
// anything.
func (s *Supervisor) Deactivate(id agent.AgentID) {
	s.mu.Lock()
	delete(s.timers, id)
	delete(s.schedules, id)
	s.mu.Unlock()
}

// RemoveAgent tears down automation state and cancels pending follow-ups.
// Called from the registry's remove hook, so removal and teardown are one
// indivisible step from the tick loop's point of view.
func (s *Supervisor) RemoveAgent(id agent.AgentID) {
	s.Deactivate(id)
	s.dispatcher.Cancel(id)
}

// Info returns the automation state for one agent, if any.
func (s *Supervisor) Info(id agent.AgentID) (RunInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tr, ok := s.timers[id]; ok {
		return RunInfo{Mode: agent.ModeTimer, TimerEnd: tr.End}, true
	}
	if sr, ok := s.schedules[id]; ok {
		return RunInfo{
			Mode:       agent.ModeSchedule,
			Start:      sr.cfg.ScheduleStart,
			End:        sr.cfg.ScheduleEnd,
			LastAction: sr.last.String(),
		}, true
	}
	return RunInfo{}, false
}

// ActiveCount returns how many agents have live automation state.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers) + len(s.schedules)
}

// decision is an action chosen during a locked tick pass. Decisions are
// dispatched before the lock is released: dispatch only captures a
// cancellable context and spawns a goroutine, so holding the lock is cheap,
// and it means RemoveAgent serializes with the whole tick — removal either
// precedes the pass (no decision is made) or follows dispatch (Cancel kills
// the contexts minted during the pass and the results are discarded).
type decision struct {
	a         agent.Agent
	start     bool // false means stop (then optional go-home)
	useResume bool
	timer     bool // expiry of a timer rather than a schedule edge
}

// Tick evaluates every timer and schedule against the snapshot. Agents that
// are unreachable, disabled, or missing from the snapshot are skipped with no
// state change, so a transient outage cannot cause duplicate or missed
// transitions once connectivity returns.
func (s *Supervisor) Tick(agents []agent.Agent, snap poller.Snapshot) {
	byID := make(map[agent.AgentID]agent.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}

	var decisions []decision

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	for id, tr := range s.timers {
		a, managed := byID[id]
		if !managed || !snap.Reachable(id) {
			continue
		}
		if now.Before(tr.End) {
			continue
		}
		// Fire exactly once: the run is destroyed before dispatch, so no
		// later tick can see it again.
		delete(s.timers, id)
		decisions = append(decisions, decision{a: a, timer: true})
	}

	for id, sr := range s.schedules {
		a, managed := byID[id]
		if !managed || !snap.Reachable(id) {
			continue
		}
		st := snap[id]
		inWindow := agent.InWindow(sr.cfg.ScheduleStart, sr.cfg.ScheduleEnd, now)

		switch {
		case inWindow && sr.last != actionStarted && !st.IsExecuting:
			sr.last = actionStarted
			decisions = append(decisions, decision{a: a, start: true, useResume: sr.cfg.UseResume})
		case !inWindow && sr.last != actionStopped && st.IsExecuting:
			sr.last = actionStopped
			decisions = append(decisions, decision{a: a})
		}
	}

	for _, d := range decisions {
		switch {
		case d.timer:
			slog.Info("timer expired, stopping", "agent", d.a.ID)
			s.emitter.Emit(events.NewTimerExpired(d.a.ID))
			s.dispatcher.StopThenHome(d.a)
		case d.start:
			slog.Info("schedule window opened, starting", "agent", d.a.ID, "resume", d.useResume)
			s.emitter.Emit(events.NewScheduleTransition(d.a.ID, "started"))
			s.dispatcher.StartRun(d.a, d.useResume, s.order())
		default:
			slog.Info("schedule window closed, stopping", "agent", d.a.ID)
			s.emitter.Emit(events.NewScheduleTransition(d.a.ID, "stopped"))
			s.dispatcher.StopThenHome(d.a)
		}
	}
}
