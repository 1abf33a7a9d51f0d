// Package events carries typed notifications between the automation core and
// its consumers (dashboard, notification sinks). Publishing never blocks:
// slow subscribers drop events rather than stalling the poll cycle.
package events

import (
	"sync"
	"time"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
)

// BusEvent is anything that can travel on the EventBus.
type BusEvent interface {
	EventType() string
}

// BaseEvent supplies the common fields of every event.
type BaseEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType implements BusEvent.
func (e BaseEvent) EventType() string { return e.Type }

func newBase(eventType string) BaseEvent {
	return BaseEvent{Type: eventType, Timestamp: time.Now().UTC()}
}

// Event type names. Sink configs reference these strings.
const (
	TypeStatusUpdated      = "agent.status"
	TypeActionCompleted    = "agent.action"
	TypeTimerArmed         = "timer.armed"
	TypeTimerExpired       = "timer.expired"
	TypeScheduleActivated  = "schedule.activated"
	TypeScheduleTransition = "schedule.transition"
	TypeAgentAdded         = "fleet.agent_added"
	TypeAgentRemoved       = "fleet.agent_removed"
	TypeConfigReloaded     = "fleet.config_reloaded"
)

// StatusUpdated is published after every status fetch for an agent.
type StatusUpdated struct {
	BaseEvent
	AgentID agent.AgentID       `json:"agent_id"`
	Name    string              `json:"name"`
	Status  agent.RuntimeStatus `json:"status"`
}

// NewStatusUpdated builds a status event with a UTC timestamp.
func NewStatusUpdated(id agent.AgentID, name string, st agent.RuntimeStatus) StatusUpdated {
	return StatusUpdated{BaseEvent: newBase(TypeStatusUpdated), AgentID: id, Name: name, Status: st}
}

// ActionCompleted is published once per dispatched action.
type ActionCompleted struct {
	BaseEvent
	AgentID agent.AgentID `json:"agent_id"`
	Name    string        `json:"name"`
	Action  string        `json:"action"`
	Success bool          `json:"success"`
	Message string        `json:"message"`
}

// NewActionCompleted builds an action result event.
func NewActionCompleted(id agent.AgentID, name, action string, success bool, message string) ActionCompleted {
	return ActionCompleted{
		BaseEvent: newBase(TypeActionCompleted),
		AgentID:   id, Name: name, Action: action, Success: success, Message: message,
	}
}

// TimerArmed is published when timer mode starts for an agent.
type TimerArmed struct {
	BaseEvent
	AgentID agent.AgentID `json:"agent_id"`
	EndTime time.Time     `json:"end_time"`
}

// NewTimerArmed builds a timer-armed event.
func NewTimerArmed(id agent.AgentID, end time.Time) TimerArmed {
	return TimerArmed{BaseEvent: newBase(TypeTimerArmed), AgentID: id, EndTime: end}
}

// TimerExpired is published when a timer fires and its stop is dispatched.
type TimerExpired struct {
	BaseEvent
	AgentID agent.AgentID `json:"agent_id"`
}

// NewTimerExpired builds a timer-expired event.
func NewTimerExpired(id agent.AgentID) TimerExpired {
	return TimerExpired{BaseEvent: newBase(TypeTimerExpired), AgentID: id}
}

// ScheduleActivated is published when schedule mode starts for an agent.
type ScheduleActivated struct {
	BaseEvent
	AgentID agent.AgentID `json:"agent_id"`
	Start   string        `json:"start"`
	End     string        `json:"end"`
}

// NewScheduleActivated builds a schedule-activated event.
func NewScheduleActivated(id agent.AgentID, start, end agent.TimeOfDay) ScheduleActivated {
	return ScheduleActivated{
		BaseEvent: newBase(TypeScheduleActivated),
		AgentID:   id, Start: start.String(), End: end.String(),
	}
}

// ScheduleTransition is published when the supervisor crosses a window edge.
type ScheduleTransition struct {
	BaseEvent
	AgentID agent.AgentID `json:"agent_id"`
	// Action is "started" or "stopped".
	Action string `json:"action"`
}

// NewScheduleTransition builds a transition event.
func NewScheduleTransition(id agent.AgentID, action string) ScheduleTransition {
	return ScheduleTransition{BaseEvent: newBase(TypeScheduleTransition), AgentID: id, Action: action}
}

// AgentAdded is published when an agent joins the registry.
type AgentAdded struct {
	BaseEvent
	AgentID agent.AgentID `json:"agent_id"`
	Name    string        `json:"name"`
}

// NewAgentAdded builds an agent-added event.
func NewAgentAdded(id agent.AgentID, name string) AgentAdded {
	return AgentAdded{BaseEvent: newBase(TypeAgentAdded), AgentID: id, Name: name}
}

// AgentRemoved is published when an agent leaves the registry.
type AgentRemoved struct {
	BaseEvent
	AgentID agent.AgentID `json:"agent_id"`
	Name    string        `json:"name"`
}

// NewAgentRemoved builds an agent-removed event.
func NewAgentRemoved(id agent.AgentID, name string) AgentRemoved {
	return AgentRemoved{BaseEvent: newBase(TypeAgentRemoved), AgentID: id, Name: name}
}

// ConfigReloaded is published when the fleet config is re-read from disk.
type ConfigReloaded struct {
	BaseEvent
	AgentCount int `json:"agent_count"`
}

// NewConfigReloaded builds a config-reloaded event.
func NewConfigReloaded(agentCount int) ConfigReloaded {
	return ConfigReloaded{BaseEvent: newBase(TypeConfigReloaded), AgentCount: agentCount}
}

// EventBus fans events out to subscribers. Each subscriber gets a buffered
// channel; a full channel drops the event for that subscriber only.
type EventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan BusEvent
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan BusEvent)}
}

// Subscribe registers a subscriber with the given channel buffer. The
// returned cancel func closes the channel and removes the subscription.
func (b *EventBus) Subscribe(buffer int) (<-chan BusEvent, func()) {
	if buffer < 1 {
		buffer = 64
	}
	ch := make(chan BusEvent, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber without blocking.
func (b *EventBus) Publish(ev BusEvent) {
	if ev == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// DefaultBus is the process-wide bus used when none is injected.
var DefaultBus = NewEventBus()
