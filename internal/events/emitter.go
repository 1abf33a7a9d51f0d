package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// EventEmitter provides non-blocking emission of BusEvents to an EventBus.
//
// Emit never blocks callers: events queue onto a buffered channel and a
// single worker goroutine publishes them in order. When the buffer is full
// the event is dropped and counted.
type EventEmitter struct {
	bus *EventBus
	ch  chan BusEvent

	dropped atomic.Int64

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// NewEventEmitter creates an emitter for the given bus. If bus is nil,
// DefaultBus is used.
func NewEventEmitter(bus *EventBus, buffer int) *EventEmitter {
	if bus == nil {
		bus = DefaultBus
	}
	if buffer < 1 {
		buffer = 256
	}
	return &EventEmitter{
		bus:  bus,
		ch:   make(chan BusEvent, buffer),
		done: make(chan struct{}),
	}
}

// Bus returns the bus this emitter publishes to.
func (e *EventEmitter) Bus() *EventBus { return e.bus }

// Start launches the background publisher loop (idempotent).
func (e *EventEmitter) Start() {
	e.startOnce.Do(func() {
		go func() {
			for ev := range e.ch {
				e.bus.Publish(ev)
			}
			close(e.done)
		}()
	})
}

// Emit enqueues an event for async publish. If the buffer is full, the event
// is dropped.
func (e *EventEmitter) Emit(ev BusEvent) {
	if ev == nil {
		return
	}
	e.Start()
	select {
	case e.ch <- ev:
	default:
		n := e.dropped.Add(1)
		// Avoid log spam: log the first drop and then every 1000 drops.
		if n == 1 || n%1000 == 0 {
			slog.Default().Debug("event emitter dropped events (buffer full)",
				"dropped", n, "event_type", ev.EventType())
		}
	}
}

// Close drains queued events and stops the worker. Callers must stop
// emitting before closing.
func (e *EventEmitter) Close() {
	e.closeOnce.Do(func() {
		e.Start()
		close(e.ch)
		<-e.done
	})
}

// Dropped returns the number of dropped events.
func (e *EventEmitter) Dropped() int64 {
	return e.dropped.Load()
}
