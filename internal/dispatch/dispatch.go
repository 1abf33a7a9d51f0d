// Package dispatch executes start/stop/resume/go-home actions as independent
// units of work. Each dispatch runs in its own goroutine, never blocking the
// poll cycle, and is followed after a short settle delay by a single status
// re-fetch so observers see the effect promptly.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
	"github.com/Dicklesworthstone/botmaster/internal/client"
	"github.com/Dicklesworthstone/botmaster/internal/events"
)

// ActionClient is the slice of the agent client the dispatcher needs.
type ActionClient interface {
	Status(ctx context.Context, id agent.AgentID) agent.RuntimeStatus
	Run(ctx context.Context, id agent.AgentID, order client.OrderRef) (bool, string)
	Resume(ctx context.Context, id agent.AgentID) (bool, string)
	StopGently(ctx context.Context, id agent.AgentID) (bool, string)
	GoHome(ctx context.Context, id agent.AgentID) (bool, string)
}

// Kind identifies a dispatchable action.
type Kind int

const (
	KindRun Kind = iota
	KindResume
	KindStop
	KindGoHome
)

// String returns the action name used in events and logs.
func (k Kind) String() string {
	switch k {
	case KindRun:
		return "run"
	case KindResume:
		return "resume"
	case KindStop:
		return "stop"
	case KindGoHome:
		return "gohome"
	default:
		return "unknown"
	}
}

// Default settle delays before the post-action status re-fetch. Stops take
// longer to converge than starts; go-home waits for the stop to land first.
var defaultDelays = map[Kind]time.Duration{
	KindRun:    1 * time.Second,
	KindResume: 1 * time.Second,
	KindStop:   2 * time.Second,
	KindGoHome: 3 * time.Second,
}

// Dispatcher runs actions asynchronously with per-agent cancellation.
type Dispatcher struct {
	client  ActionClient
	emitter *events.EventEmitter
	delays  map[Kind]time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	agents map[agent.AgentID]context.CancelFunc
	actx   map[agent.AgentID]context.Context

	wg sync.WaitGroup
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithDelays overrides the settle delays (tests).
func WithDelays(d map[Kind]time.Duration) Option {
	return func(disp *Dispatcher) { disp.delays = d }
}

// New creates a dispatcher. Shutdown must be called to release it.
func New(c ActionClient, emitter *events.EventEmitter, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		client:  c,
		emitter: emitter,
		delays:  defaultDelays,
		ctx:     ctx,
		cancel:  cancel,
		agents:  make(map[agent.AgentID]context.CancelFunc),
		actx:    make(map[agent.AgentID]context.Context),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// agentContext returns the live context for an agent, creating one if needed.
// Cancel(id) kills it; the next dispatch gets a fresh one.
func (d *Dispatcher) agentContext(id agent.AgentID) context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ctx, ok := d.actx[id]; ok && ctx.Err() == nil {
		return ctx
	}
	ctx, cancel := context.WithCancel(d.ctx)
	d.actx[id] = ctx
	d.agents[id] = cancel
	return ctx
}

// Cancel aborts pending follow-ups (settle sleeps, re-fetches) for one agent.
// In-flight HTTP calls complete but their results are discarded.
func (d *Dispatcher) Cancel(id agent.AgentID) {
	d.mu.Lock()
	if cancel, ok := d.agents[id]; ok {
		cancel()
		delete(d.agents, id)
		delete(d.actx, id)
	}
	d.mu.Unlock()
}

// Shutdown cancels everything and waits for dispatch goroutines to exit.
func (d *Dispatcher) Shutdown() {
	d.cancel()
	d.wg.Wait()
}

// Wait blocks until all in-flight dispatches have finished (tests).
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dispatch executes a single action for the agent, asynchronously. The result
// is emitted as an ActionCompleted event; after the settle delay a single
// status re-fetch is emitted as StatusUpdated.
func (d *Dispatcher) Dispatch(a agent.Agent, kind Kind, order client.OrderRef) {
	ctx := d.agentContext(a.ID)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.perform(ctx, a, kind, order)
		d.settleAndRefetch(ctx, a, kind)
	}()
}

// StartRun dispatches the initial run-or-resume action of an automation run.
func (d *Dispatcher) StartRun(a agent.Agent, useResume bool, order client.OrderRef) {
	if useResume {
		d.Dispatch(a, KindResume, client.OrderRef{})
		return
	}
	d.Dispatch(a, KindRun, order)
}

// StopThenHome dispatches a gentle stop and, when the agent is configured to
// go home after a session, follows up with a go-home once the stop has had
// time to land. No other order is dispatched during the settle window.
func (d *Dispatcher) StopThenHome(a agent.Agent) {
	ctx := d.agentContext(a.ID)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.perform(ctx, a, KindStop, client.OrderRef{})
		d.settleAndRefetch(ctx, a, KindStop)
		if !a.GoHomeAfterSession {
			return
		}
		if !sleepCtx(ctx, d.delays[KindGoHome]) {
			return
		}
		d.perform(ctx, a, KindGoHome, client.OrderRef{})
	}()
}

// perform runs the HTTP call and emits the outcome, unless the agent was
// canceled while the call was in flight.
func (d *Dispatcher) perform(ctx context.Context, a agent.Agent, kind Kind, order client.OrderRef) {
	var ok bool
	var msg string
	switch kind {
	case KindRun:
		ok, msg = d.client.Run(ctx, a.ID, order)
	case KindResume:
		ok, msg = d.client.Resume(ctx, a.ID)
	case KindStop:
		ok, msg = d.client.StopGently(ctx, a.ID)
	case KindGoHome:
		ok, msg = d.client.GoHome(ctx, a.ID)
	}

	if ctx.Err() != nil {
		// Agent was removed or canceled mid-call; discard the result.
		return
	}
	if !ok {
		slog.Warn("dispatch failed", "agent", a.ID, "action", kind, "message", msg)
	} else {
		slog.Info("dispatched", "agent", a.ID, "action", kind, "message", msg)
	}
	d.emitter.Emit(events.NewActionCompleted(a.ID, a.DisplayName(), kind.String(), ok, msg))
}

// settleAndRefetch waits the action's settle delay then re-fetches status
// once so the presenter converges quickly.
func (d *Dispatcher) settleAndRefetch(ctx context.Context, a agent.Agent, kind Kind) {
	if !sleepCtx(ctx, d.delays[kind]) {
		return
	}
	st := d.client.Status(ctx, a.ID)
	if ctx.Err() != nil {
		return
	}
	d.emitter.Emit(events.NewStatusUpdated(a.ID, a.DisplayName(), st))
}

// sleepCtx sleeps for dur or until ctx is done; reports whether it slept the
// whole duration.
func sleepCtx(ctx context.Context, dur time.Duration) bool {
	if dur <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
