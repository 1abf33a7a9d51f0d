// Package registry owns the set of managed agents. All mutation goes through
// the registry's lock; removal fires a hook under that same lock so per-agent
// automation state is torn down in the same indivisible step.
package registry

import (
	"fmt"
	"sync"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
)

// RemoveHook is invoked while the registry lock is held, immediately after an
// agent is deleted. Implementations must not call back into the registry.
type RemoveHook func(agent.AgentID)

// Registry is a mutex-guarded ordered collection of agents.
type Registry struct {
	mu    sync.RWMutex
	order []agent.AgentID
	byID  map[agent.AgentID]agent.Agent

	removeHook RemoveHook
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[agent.AgentID]agent.Agent)}
}

// SetRemoveHook installs the hook run during Remove and ReplaceAll pruning.
func (r *Registry) SetRemoveHook(h RemoveHook) {
	r.mu.Lock()
	r.removeHook = h
	r.mu.Unlock()
}

// Add registers a new agent. Duplicate IDs are rejected.
func (r *Registry) Add(a agent.Agent) error {
	if err := a.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[a.ID]; exists {
		return fmt.Errorf("agent %s already registered", a.ID)
	}
	r.byID[a.ID] = a
	r.order = append(r.order, a.ID)
	return nil
}

// Remove deletes an agent and runs the remove hook atomically. Returns false
// if the agent was not registered.
func (r *Registry) Remove(id agent.AgentID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

func (r *Registry) removeLocked(id agent.AgentID) bool {
	if _, exists := r.byID[id]; !exists {
		return false
	}
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.removeHook != nil {
		r.removeHook(id)
	}
	return true
}

// Get returns a copy of the agent with the given ID.
func (r *Registry) Get(id agent.AgentID) (agent.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

// Update applies fn to the stored agent under the lock. Returns false if the
// agent is not registered. The ID must not be changed by fn.
func (r *Registry) Update(id agent.AgentID, fn func(*agent.Agent)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return false
	}
	fn(&a)
	a.ID = id
	r.byID[id] = a
	return true
}

// List returns all agents in registration order.
func (r *Registry) List() []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agent.Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Enabled returns the agents the poller should visit.
func (r *Registry) Enabled() []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agent.Agent, 0, len(r.order))
	for _, id := range r.order {
		if a := r.byID[id]; a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ReplaceAll swaps the whole fleet (config reload). Agents that disappear are
// removed through the hook so their automation state dies with them; agents
// that persist keep their identity, with config fields refreshed.
func (r *Registry) ReplaceAll(agents []agent.Agent) error {
	incoming := make(map[agent.AgentID]agent.Agent, len(agents))
	order := make([]agent.AgentID, 0, len(agents))
	for _, a := range agents {
		if err := a.Validate(); err != nil {
			return err
		}
		if _, dup := incoming[a.ID]; dup {
			return fmt.Errorf("duplicate agent %s in replacement set", a.ID)
		}
		incoming[a.ID] = a
		order = append(order, a.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		if _, keep := incoming[id]; !keep && r.removeHook != nil {
			r.removeHook(id)
		}
	}
	r.byID = incoming
	r.order = order
	return nil
}
