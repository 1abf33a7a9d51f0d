package notify

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Dicklesworthstone/botmaster/internal/config"
	"github.com/Dicklesworthstone/botmaster/internal/events"
)

// Bridge subscribes to an event bus and forwards matching events to webhook
// sinks. Delivery is best-effort and happens off the bus goroutine, so a slow
// endpoint can never stall the tick loop.
type Bridge struct {
	client *http.Client

	mu    sync.RWMutex
	sinks []*Sink

	cancel func()
	wg     sync.WaitGroup
	done   chan struct{}
}

// StartBridge subscribes to bus and delivers to the given sinks. It returns
// nil when no sinks are configured.
func StartBridge(bus *events.EventBus, cfgs []config.WebhookConfig) *Bridge {
	if len(cfgs) == 0 {
		return nil
	}

	b := &Bridge{
		client: &http.Client{},
		done:   make(chan struct{}),
	}
	b.UpdateSinks(cfgs)

	ch, cancel := bus.Subscribe(256)
	b.cancel = cancel

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.done:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				b.dispatch(ev)
			}
		}
	}()
	return b
}

// UpdateSinks swaps the sink set, used for webhooks.yaml hot reload.
func (b *Bridge) UpdateSinks(cfgs []config.WebhookConfig) {
	sinks := make([]*Sink, 0, len(cfgs))
	for _, c := range cfgs {
		sinks = append(sinks, NewSink(c))
	}
	b.mu.Lock()
	b.sinks = sinks
	b.mu.Unlock()
}

// Close unsubscribes and waits for in-flight deliveries.
func (b *Bridge) Close() {
	if b == nil {
		return
	}
	if b.cancel != nil {
		b.cancel()
	}
	close(b.done)
	b.wg.Wait()
}

func (b *Bridge) dispatch(ev events.BusEvent) {
	n, ok := toNotification(ev)
	if !ok {
		return
	}

	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		if !s.Matches(n) {
			continue
		}
		s := s
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := s.Deliver(b.client, n); err != nil {
				slog.Warn("webhook delivery failed", "sink", s.Name(), "event", n.Type, "error", err)
			}
		}()
	}
}

// toNotification flattens bus events into the wire payload. Status updates
// are intentionally summarized; sinks wanting full detail should use the
// default JSON formatter on agent.action and the automation events.
func toNotification(ev events.BusEvent) (Notification, bool) {
	switch v := ev.(type) {
	case events.StatusUpdated:
		msg := "reachable"
		if !v.Status.Reachable {
			msg = fmt.Sprintf("unreachable: %s", v.Status.ErrorMsg)
		}
		return Notification{
			Type:      v.EventType(),
			Timestamp: v.Timestamp,
			Agent:     v.AgentID.String(),
			Name:      v.Name,
			Message:   msg,
			Details: map[string]string{
				"state":     v.Status.State,
				"executing": fmt.Sprintf("%t", v.Status.IsExecuting),
			},
		}, true
	case events.ActionCompleted:
		msg := fmt.Sprintf("%s succeeded", v.Action)
		if !v.Success {
			msg = fmt.Sprintf("%s failed: %s", v.Action, v.Message)
		}
		return Notification{
			Type:      v.EventType(),
			Timestamp: v.Timestamp,
			Agent:     v.AgentID.String(),
			Name:      v.Name,
			Message:   msg,
			Details:   map[string]string{"action": v.Action, "success": fmt.Sprintf("%t", v.Success)},
		}, true
	case events.TimerArmed:
		return Notification{
			Type:      v.EventType(),
			Timestamp: v.Timestamp,
			Agent:     v.AgentID.String(),
			Message:   fmt.Sprintf("timer armed until %s", v.EndTime.Format("15:04:05")),
		}, true
	case events.TimerExpired:
		return Notification{
			Type:      v.EventType(),
			Timestamp: v.Timestamp,
			Agent:     v.AgentID.String(),
			Message:   "timer expired, stopping",
		}, true
	case events.ScheduleActivated:
		return Notification{
			Type:      v.EventType(),
			Timestamp: v.Timestamp,
			Agent:     v.AgentID.String(),
			Message:   fmt.Sprintf("schedule active %s-%s", v.Start, v.End),
		}, true
	case events.ScheduleTransition:
		return Notification{
			Type:      v.EventType(),
			Timestamp: v.Timestamp,
			Agent:     v.AgentID.String(),
			Message:   fmt.Sprintf("schedule %s", v.Action),
			Details:   map[string]string{"action": v.Action},
		}, true
	case events.AgentAdded:
		return Notification{
			Type:      v.EventType(),
			Timestamp: v.Timestamp,
			Agent:     v.AgentID.String(),
			Name:      v.Name,
			Message:   "agent added",
		}, true
	case events.AgentRemoved:
		return Notification{
			Type:      v.EventType(),
			Timestamp: v.Timestamp,
			Agent:     v.AgentID.String(),
			Name:      v.Name,
			Message:   "agent removed",
		}, true
	case events.ConfigReloaded:
		return Notification{
			Type:      v.EventType(),
			Timestamp: v.Timestamp,
			Message:   fmt.Sprintf("config reloaded, %d agents", v.AgentCount),
		}, true
	default:
		return Notification{}, false
	}
}
