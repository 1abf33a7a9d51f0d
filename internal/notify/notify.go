// Package notify delivers fleet events to configured webhook sinks.
// Sinks come from webhooks.yaml; each one has an event allowlist, an
// optional agent glob, a payload formatter, and a retry policy.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/Dicklesworthstone/botmaster/internal/config"
	"github.com/Dicklesworthstone/botmaster/internal/util"
)

// Notification is the flattened payload sent to sinks.
type Notification struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Agent     string            `json:"agent,omitempty"` // host:port
	Name      string            `json:"name,omitempty"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
}

// Sink is one configured webhook destination.
type Sink struct {
	cfg     config.WebhookConfig
	timeout time.Duration
	events  map[string]bool // empty means all events
}

// NewSink builds a sink from its validated config entry.
func NewSink(cfg config.WebhookConfig) *Sink {
	timeout := 10 * time.Second
	if d, err := time.ParseDuration(strings.TrimSpace(cfg.Timeout)); err == nil && d > 0 {
		timeout = d
	}
	events := make(map[string]bool, len(cfg.Events))
	for _, ev := range cfg.Events {
		ev = strings.ToLower(strings.TrimSpace(ev))
		if ev != "" {
			events[ev] = true
		}
	}
	return &Sink{cfg: cfg, timeout: timeout, events: events}
}

// Name returns the sink's configured name.
func (s *Sink) Name() string { return s.cfg.Name }

// Matches reports whether the sink wants this notification.
func (s *Sink) Matches(n Notification) bool {
	if len(s.events) > 0 && !s.events[strings.ToLower(n.Type)] {
		return false
	}
	if glob := strings.TrimSpace(s.cfg.Filter.Agent); glob != "" && n.Agent != "" {
		ok, err := path.Match(glob, n.Agent)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// Payload renders the notification for the sink's formatter.
func (s *Sink) Payload(n Notification) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(s.cfg.Formatter)) {
	case "", "json":
		return json.Marshal(n)
	case "slack":
		return json.Marshal(map[string]string{"text": summaryLine(n)})
	case "discord":
		return json.Marshal(map[string]string{"content": summaryLine(n)})
	case "teams", "msteams", "ms-teams", "microsoft-teams", "microsoft_teams":
		return json.Marshal(map[string]string{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"summary":    n.Type,
			"title":      n.Type,
			"text":       summaryLine(n),
			"themeColor": "0076D7",
		})
	default:
		return nil, fmt.Errorf("unknown formatter %q", s.cfg.Formatter)
	}
}

func summaryLine(n Notification) string {
	var b strings.Builder
	b.WriteString("botmaster: ")
	b.WriteString(n.Type)
	if n.Agent != "" {
		b.WriteString(" [")
		if n.Name != "" {
			b.WriteString(n.Name)
			b.WriteString(" ")
		}
		b.WriteString(n.Agent)
		b.WriteString("]")
	}
	if n.Message != "" {
		b.WriteString(" - ")
		b.WriteString(n.Message)
	}
	// Chat sinks reject very long messages.
	return util.Truncate(b.String(), 400)
}

// Deliver posts the notification, retrying with exponential backoff up to the
// configured attempt count. A 4xx response is not retried; the request is
// either malformed or rejected, and repeating it cannot help.
func (s *Sink) Deliver(client *http.Client, n Notification) error {
	payload, err := s.Payload(n)
	if err != nil {
		return err
	}

	attempts := s.cfg.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := time.Second
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(backoff)
			backoff *= 2
		}

		retryable, err := s.post(client, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func (s *Sink) post(client *http.Client, payload []byte) (retryable bool, err error) {
	req, err := http.NewRequest(http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "botmaster")
	if secret := strings.TrimSpace(s.cfg.Secret); secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		req.Header.Set("X-Botmaster-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("%s returned %d: %s", s.cfg.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, err
}
