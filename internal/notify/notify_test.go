package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
	"github.com/Dicklesworthstone/botmaster/internal/config"
	"github.com/Dicklesworthstone/botmaster/internal/events"
)

func sinkConfig(name, url string, mutate func(*config.WebhookConfig)) config.WebhookConfig {
	cfg := config.WebhookConfig{
		Name:      name,
		URL:       url,
		Formatter: "json",
		Timeout:   "2s",
		Retry:     config.WebhookRetryConfig{MaxAttempts: 1},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return cfg
}

func TestSinkMatches(t *testing.T) {
	n := Notification{Type: "timer.expired", Agent: "10.0.0.5:7011"}

	all := NewSink(sinkConfig("all", "http://example.com", nil))
	if !all.Matches(n) {
		t.Error("sink with no filters should match everything")
	}

	filtered := NewSink(sinkConfig("filtered", "http://example.com", func(c *config.WebhookConfig) {
		c.Events = []string{"schedule.transition"}
	}))
	if filtered.Matches(n) {
		t.Error("event filter should exclude timer.expired")
	}

	glob := NewSink(sinkConfig("glob", "http://example.com", func(c *config.WebhookConfig) {
		c.Filter.Agent = "10.0.0.*"
	}))
	if !glob.Matches(n) {
		t.Error("agent glob should match 10.0.0.5:7011")
	}
	if glob.Matches(Notification{Type: "timer.expired", Agent: "192.168.1.2:7011"}) {
		t.Error("agent glob should exclude 192.168.1.2")
	}
}

func TestSinkPayloadFormatters(t *testing.T) {
	n := Notification{Type: "timer.expired", Agent: "10.0.0.5:7011", Name: "miner", Message: "timer expired, stopping"}

	jsonSink := NewSink(sinkConfig("j", "http://example.com", nil))
	raw, err := jsonSink.Payload(n)
	if err != nil {
		t.Fatalf("json payload: %v", err)
	}
	var decoded Notification
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("json payload not valid JSON: %v", err)
	}
	if decoded.Type != "timer.expired" || decoded.Agent != "10.0.0.5:7011" {
		t.Errorf("decoded = %+v", decoded)
	}

	slackSink := NewSink(sinkConfig("s", "http://example.com", func(c *config.WebhookConfig) {
		c.Formatter = "slack"
	}))
	raw, err = slackSink.Payload(n)
	if err != nil {
		t.Fatalf("slack payload: %v", err)
	}
	var slack map[string]string
	if err := json.Unmarshal(raw, &slack); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(slack["text"], "timer.expired") || !strings.Contains(slack["text"], "miner") {
		t.Errorf("slack text = %q", slack["text"])
	}
}

func TestDeliverRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSink(sinkConfig("retry", srv.URL, func(c *config.WebhookConfig) {
		c.Retry.MaxAttempts = 5
	}))
	if err := s.Deliver(srv.Client(), Notification{Type: "agent.action"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestDeliverDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewSink(sinkConfig("noretry", srv.URL, func(c *config.WebhookConfig) {
		c.Retry.MaxAttempts = 5
	}))
	if err := s.Deliver(srv.Client(), Notification{Type: "agent.action"}); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1", got)
	}
}

func TestDeliverSignsPayload(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Botmaster-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSink(sinkConfig("signed", srv.URL, func(c *config.WebhookConfig) {
		c.Secret = "hunter2"
	}))
	if err := s.Deliver(srv.Client(), Notification{Type: "timer.armed"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	mac := hmac.New(sha256.New, []byte("hunter2"))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
}

func TestBridgeDeliversBusEvents(t *testing.T) {
	received := make(chan Notification, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n Notification
		if err := json.NewDecoder(r.Body).Decode(&n); err == nil {
			received <- n
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus := events.NewEventBus()
	b := StartBridge(bus, []config.WebhookConfig{
		sinkConfig("test", srv.URL, func(c *config.WebhookConfig) {
			c.Events = []string{"timer.expired"}
		}),
	})
	if b == nil {
		t.Fatal("StartBridge returned nil with sinks configured")
	}
	defer b.Close()

	id := agent.AgentID{Host: "10.0.0.5", Port: 7011}
	bus.Publish(events.NewScheduleTransition(id, "started")) // filtered out
	bus.Publish(events.NewTimerExpired(id))

	select {
	case n := <-received:
		if n.Type != "timer.expired" || n.Agent != "10.0.0.5:7011" {
			t.Errorf("got %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no webhook delivered")
	}

	select {
	case n := <-received:
		t.Fatalf("unexpected extra delivery: %+v", n)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStartBridgeNilWithoutSinks(t *testing.T) {
	if b := StartBridge(events.NewEventBus(), nil); b != nil {
		t.Error("expected nil bridge for empty config")
	}
	// Close on a nil bridge is a no-op.
	var b *Bridge
	b.Close()
}
