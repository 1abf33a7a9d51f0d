// Package client is the HTTP client for the bot control API. Every call is a
// single attempt with a bounded timeout; retry is the caller's concern (the
// periodic poll cycle re-tries naturally).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
)

// DefaultTimeout bounds every request to an agent.
const DefaultTimeout = 5 * time.Second

// OrderRef names the work order to run: a path the agent resolves locally,
// or inline JSON content. Exactly one should be set.
type OrderRef struct {
	Path   string
	Inline string
}

// IsZero reports whether no order was provided.
func (o OrderRef) IsZero() bool {
	return o.Path == "" && o.Inline == ""
}

// Client talks to bot instances. The zero value is not usable; use New.
type Client struct {
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client with the default timeout.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// statusResponse mirrors the agent's /status JSON body.
type statusResponse struct {
	State               string `json:"state"`
	IsExecuting         bool   `json:"isExecuting"`
	HasPendingOrder     bool   `json:"hasPendingOrder"`
	HasIncompleteOrders bool   `json:"hasIncompleteOrders"`
	CurrentFile         string `json:"currentFile"`
	APIStatus           string `json:"apiStatus"`
	BotRunning          bool   `json:"botRunning"`
	CharacterName       string `json:"characterName"`
	WorldName           string `json:"worldName"`
	RuntimeSeconds      int    `json:"runtimeSeconds"`
}

// actionResponse mirrors the agent's action endpoint JSON bodies.
type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (r actionResponse) text() string {
	if r.Message != "" {
		return r.Message
	}
	if r.Error != "" {
		return r.Error
	}
	return "unknown response"
}

func baseURL(id agent.AgentID) string {
	return "http://" + id.String()
}

// Status fetches the agent's current status. It never returns an error: any
// failure, HTTP error status, or malformed body yields an unreachable
// RuntimeStatus carrying the classification.
func (c *Client) Status(ctx context.Context, id agent.AgentID) agent.RuntimeStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(id)+"/status", nil)
	if err != nil {
		return agent.Unreachable(agent.ErrorOther, err.Error())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return agent.Unreachable(classify(err), shortError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return agent.Unreachable(agent.ErrorOther, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return agent.Unreachable(agent.ErrorOther, fmt.Sprintf("malformed status: %v", err))
	}

	return agent.RuntimeStatus{
		Reachable:           true,
		State:               body.State,
		IsExecuting:         body.IsExecuting,
		HasPendingOrder:     body.HasPendingOrder,
		HasIncompleteOrders: body.HasIncompleteOrders,
		CurrentFile:         body.CurrentFile,
		APIStatus:           body.APIStatus,
		BotRunning:          body.BotRunning,
		CharacterName:       body.CharacterName,
		WorldName:           body.WorldName,
		RuntimeSeconds:      body.RuntimeSeconds,
	}
}

// Health probes GET /health. Healthy means 200 with body "ok".
func (c *Client) Health(ctx context.Context, id agent.AgentID) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(id)+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return false
	}
	return resp.StatusCode == http.StatusOK && strings.TrimSpace(string(body)) == "ok"
}

// Run starts a work order on the agent.
func (c *Client) Run(ctx context.Context, id agent.AgentID, order OrderRef) (bool, string) {
	if order.IsZero() {
		return false, "must provide an order path or inline order JSON"
	}
	payload := map[string]string{}
	if order.Path != "" {
		payload["jsonPath"] = order.Path
	} else {
		payload["json"] = order.Inline
	}
	return c.postAction(ctx, id, "/run", payload)
}

// Resume resumes incomplete orders.
func (c *Client) Resume(ctx context.Context, id agent.AgentID) (bool, string) {
	return c.postAction(ctx, id, "/resume", nil)
}

// StopGently asks the agent to wind down current work and stop.
func (c *Client) StopGently(ctx context.Context, id agent.AgentID) (bool, string) {
	return c.postAction(ctx, id, "/stop", nil)
}

// GoHome sends the agent to its configured home location.
func (c *Client) GoHome(ctx context.Context, id agent.AgentID) (bool, string) {
	return c.postAction(ctx, id, "/gohome", nil)
}

func (c *Client) postAction(ctx context.Context, id agent.AgentID, path string, payload map[string]string) (bool, string) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return false, fmt.Sprintf("marshal request: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(id)+path, body)
	if err != nil {
		return false, err.Error()
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, shortError(err)
	}
	defer resp.Body.Close()

	var parsed actionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Sprintf("malformed response: %v", err)
	}
	return parsed.Success, parsed.text()
}

// classify maps a transport error to its ErrorKind.
func classify(err error) agent.ErrorKind {
	if err == nil {
		return agent.ErrorNone
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return agent.ErrorTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return agent.ErrorTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return agent.ErrorConnectionRefused
	}
	return agent.ErrorOther
}

// shortError strips the noisy url.Error wrapping for display.
func shortError(err error) string {
	switch classify(err) {
	case agent.ErrorTimeout:
		return "timeout"
	case agent.ErrorConnectionRefused:
		return "connection refused"
	default:
		return err.Error()
	}
}
