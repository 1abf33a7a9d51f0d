// Package poller fetches status from every enabled agent once per tick,
// producing an immutable snapshot for the supervisor and presenter.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
)

// StatusFetcher is the slice of the agent client the poller needs.
type StatusFetcher interface {
	Status(ctx context.Context, id agent.AgentID) agent.RuntimeStatus
}

// Snapshot maps agent IDs to the status observed in one polling pass. A
// snapshot is complete when returned and never mutated afterwards.
type Snapshot map[agent.AgentID]agent.RuntimeStatus

// Reachable reports whether the agent was polled and answered.
func (s Snapshot) Reachable(id agent.AgentID) bool {
	st, ok := s[id]
	return ok && st.Reachable
}

// DefaultConcurrency bounds the parallel status fetches per pass.
const DefaultConcurrency = 8

// Poller performs the per-tick status sweep.
type Poller struct {
	fetcher     StatusFetcher
	timeout     time.Duration
	concurrency int
}

// New creates a poller. timeout bounds each individual fetch; zero means the
// client default applies.
func New(fetcher StatusFetcher, timeout time.Duration, concurrency int) *Poller {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Poller{fetcher: fetcher, timeout: timeout, concurrency: concurrency}
}

// PollAll fetches status for every enabled agent and returns the full
// snapshot. Disabled agents are skipped entirely. A failed fetch is still an
// entry (unreachable); the snapshot always covers every polled agent.
func (p *Poller) PollAll(ctx context.Context, agents []agent.Agent) Snapshot {
	snap := make(Snapshot, len(agents))

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.concurrency)

	start := time.Now()
	for _, a := range agents {
		if !a.Enabled {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(a agent.Agent) {
			defer wg.Done()
			defer func() { <-sem }()

			fetchCtx := ctx
			if p.timeout > 0 {
				var cancel context.CancelFunc
				fetchCtx, cancel = context.WithTimeout(ctx, p.timeout)
				defer cancel()
			}
			st := p.fetcher.Status(fetchCtx, a.ID)

			mu.Lock()
			snap[a.ID] = st
			mu.Unlock()
		}(a)
	}
	wg.Wait()

	slog.Debug("poll pass complete",
		"agents", len(snap), "elapsed", time.Since(start).Round(time.Millisecond))
	return snap
}
