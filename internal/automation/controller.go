package automation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
	"github.com/Dicklesworthstone/botmaster/internal/events"
	"github.com/Dicklesworthstone/botmaster/internal/poller"
	"github.com/Dicklesworthstone/botmaster/internal/registry"
)

// DefaultInterval is the poll-then-supervise cadence.
const DefaultInterval = 10 * time.Second

// Controller runs the periodic cycle: poll every enabled agent, publish the
// fresh statuses, then hand the complete snapshot to the supervisor. Ticks
// never overlap; if a pass is still running when the next tick arrives, the
// tick is skipped rather than queued.
type Controller struct {
	reg      *registry.Registry
	poller   *poller.Poller
	sup      *Supervisor
	emitter  *events.EventEmitter
	interval time.Duration

	passMu  sync.Mutex // held for the duration of one pass
	refresh chan struct{}

	snapMu sync.RWMutex
	snap   poller.Snapshot
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithInterval overrides the tick cadence.
func WithInterval(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// NewController wires the tick loop together.
func NewController(reg *registry.Registry, p *poller.Poller, sup *Supervisor, emitter *events.EventEmitter, opts ...ControllerOption) *Controller {
	c := &Controller{
		reg:      reg,
		poller:   p,
		sup:      sup,
		emitter:  emitter,
		interval: DefaultInterval,
		refresh:  make(chan struct{}, 1),
		snap:     poller.Snapshot{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run blocks until ctx is cancelled, executing one pass immediately and then
// one per interval. RefreshNow requests run on the same goroutine, so passes
// are serialized.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Pass(ctx)
		case <-c.refresh:
			c.Pass(ctx)
		}
	}
}

// RefreshNow asks the loop for an immediate pass. Non-blocking; if a refresh
// is already queued the request is coalesced.
func (c *Controller) RefreshNow() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// Pass runs one poll-then-supervise cycle. If another pass is in flight the
// call is a no-op.
func (c *Controller) Pass(ctx context.Context) {
	if !c.passMu.TryLock() {
		slog.Debug("previous pass still running, skipping tick")
		return
	}
	defer c.passMu.Unlock()

	agents := c.reg.Enabled()
	snap := c.poller.PollAll(ctx, agents)

	c.snapMu.Lock()
	c.snap = snap
	c.snapMu.Unlock()

	for _, a := range agents {
		if st, ok := snap[a.ID]; ok {
			c.emitter.Emit(events.NewStatusUpdated(a.ID, a.DisplayName(), st))
		}
	}

	if ctx.Err() != nil {
		return
	}
	c.sup.Tick(agents, snap)
}

// Snapshot returns the most recent poll results.
func (c *Controller) Snapshot() poller.Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	out := make(poller.Snapshot, len(c.snap))
	for id, st := range c.snap {
		out[id] = st
	}
	return out
}

// Status returns the last polled status for one agent.
func (c *Controller) Status(id agent.AgentID) (agent.RuntimeStatus, bool) {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	st, ok := c.snap[id]
	return st, ok
}
