// Package agent defines the domain types shared across botmaster: agent
// identity and configuration, automation modes, and the runtime status
// reported by a bot's HTTP surface.
package agent

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// AgentID identifies a bot instance by its network address. It is the map key
// for registry lookups and all per-agent automation state.
type AgentID struct {
	Host string
	Port int
}

// String renders the canonical "host:port" form.
func (id AgentID) String() string {
	return net.JoinHostPort(id.Host, strconv.Itoa(id.Port))
}

// IsZero reports whether the ID is unset.
func (id AgentID) IsZero() bool {
	return id.Host == "" && id.Port == 0
}

// ParseAgentID parses a "host:port" string into an AgentID.
func ParseAgentID(s string) (AgentID, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return AgentID{}, fmt.Errorf("invalid agent address %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return AgentID{}, fmt.Errorf("invalid agent port %q", portStr)
	}
	if host == "" {
		return AgentID{}, fmt.Errorf("invalid agent address %q: missing host", s)
	}
	return AgentID{Host: host, Port: port}, nil
}

// Agent is one managed bot instance. Agents are owned by the registry;
// everything else references them by ID.
type Agent struct {
	ID                 AgentID
	Name               string
	Enabled            bool
	GoHomeAfterSession bool
	Automation         AutomationConfig
}

// BaseURL returns the root of the agent's HTTP API.
func (a Agent) BaseURL() string {
	return "http://" + a.ID.String()
}

// DisplayName returns the configured name, falling back to the address.
func (a Agent) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID.String()
}

// Validate checks that the agent is well formed enough to manage.
func (a Agent) Validate() error {
	if a.ID.IsZero() {
		return fmt.Errorf("agent %q: address is required", a.Name)
	}
	if a.ID.Host == "" {
		return fmt.Errorf("agent %q: host is required", a.Name)
	}
	if a.ID.Port < 1 || a.ID.Port > 65535 {
		return fmt.Errorf("agent %q: port %d out of range", a.Name, a.ID.Port)
	}
	if err := a.Automation.Validate(); err != nil {
		return fmt.Errorf("agent %q: %w", a.Name, err)
	}
	return nil
}
