package events

import (
	"testing"
	"time"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
)

var testID = agent.AgentID{Host: "10.0.0.1", Port: 8472}

func TestBusPublishDeliversToAllSubscribers(t *testing.T) {
	bus := NewEventBus()
	ch1, cancel1 := bus.Subscribe(4)
	ch2, cancel2 := bus.Subscribe(4)
	defer cancel1()
	defer cancel2()

	bus.Publish(NewAgentAdded(testID, "alpha"))

	for i, ch := range []<-chan BusEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			added, ok := ev.(AgentAdded)
			if !ok {
				t.Fatalf("subscriber %d: wrong type %T", i, ev)
			}
			if added.AgentID != testID || added.Name != "alpha" {
				t.Errorf("subscriber %d: %+v", i, added)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no event", i)
		}
	}
}

func TestBusFullSubscriberDropsWithoutBlocking(t *testing.T) {
	bus := NewEventBus()
	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(NewTimerExpired(testID))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	bus := NewEventBus()
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel() // second cancel is a no-op

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d", bus.SubscriberCount())
	}
}

func TestEmitterDeliversInOrder(t *testing.T) {
	bus := NewEventBus()
	ch, cancel := bus.Subscribe(16)
	defer cancel()

	em := NewEventEmitter(bus, 16)
	em.Emit(NewScheduleTransition(testID, "started"))
	em.Emit(NewScheduleTransition(testID, "stopped"))
	em.Close()

	want := []string{"started", "stopped"}
	for _, action := range want {
		select {
		case ev := <-ch:
			tr := ev.(ScheduleTransition)
			if tr.Action != action {
				t.Errorf("Action = %q, want %q", tr.Action, action)
			}
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	if em.Dropped() != 0 {
		t.Errorf("Dropped = %d", em.Dropped())
	}
}

func TestEmitterCloseDrainsQueue(t *testing.T) {
	bus := NewEventBus()
	ch, cancel := bus.Subscribe(64)
	defer cancel()

	em := NewEventEmitter(bus, 64)
	const n = 20
	for i := 0; i < n; i++ {
		em.Emit(NewStatusUpdated(testID, "alpha", agent.RuntimeStatus{Reachable: true}))
	}
	em.Close()

	received := 0
	for received < n {
		select {
		case <-ch:
			received++
		case <-time.After(time.Second):
			t.Fatalf("received %d of %d events after Close", received, n)
		}
	}
}
