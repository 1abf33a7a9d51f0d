// Package config loads and persists the fleet configuration.
//
// The main file is TOML at ~/.config/botmaster/config.toml (overridable via
// BOTMASTER_CONFIG or XDG_CONFIG_HOME). Notification sinks live in a separate
// YAML file, see webhooks.go.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
	"github.com/Dicklesworthstone/botmaster/internal/util"
)

// Config is the root of config.toml.
type Config struct {
	PollIntervalSec   int    `toml:"poll_interval_sec"`   // Seconds between poll-then-supervise passes
	RequestTimeoutSec int    `toml:"request_timeout_sec"` // Per-request HTTP timeout (seconds)
	DefaultOrderPath  string `toml:"default_order_path"`  // Work order file sent on automated fresh starts
	LogLevel          string `toml:"log_level"`           // debug, info, warn, or error

	Agents []AgentEntry `toml:"agents"`
}

// AgentEntry is one [[agents]] block.
type AgentEntry struct {
	Host               string `toml:"host"`
	Port               int    `toml:"port"`
	Name               string `toml:"name"`
	Enabled            bool   `toml:"enabled"`
	GoHomeAfterSession bool   `toml:"go_home_after_session"`

	Automation AutomationEntry `toml:"automation"`
}

// AutomationEntry is the [agents.automation] sub-table. Times are "HH:MM"
// strings in the file; mode "none" is accepted as a legacy spelling of
// "manual".
type AutomationEntry struct {
	Mode          string `toml:"mode"`
	TimerHours    int    `toml:"timer_hours"`
	TimerMinutes  int    `toml:"timer_minutes"`
	ScheduleStart string `toml:"schedule_start"`
	ScheduleEnd   string `toml:"schedule_end"`
	UseResume     bool   `toml:"use_resume"`
}

// Default returns the built-in configuration with no agents.
func Default() *Config {
	return &Config{
		PollIntervalSec:   10,
		RequestTimeoutSec: 5,
		LogLevel:          "info",
	}
}

// DefaultPath returns the config file path honoring BOTMASTER_CONFIG and
// XDG_CONFIG_HOME.
func DefaultPath() string {
	if env := os.Getenv("BOTMASTER_CONFIG"); env != "" {
		return ExpandHome(env)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "botmaster", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		// Fallback to /tmp when home directory is unavailable (e.g., containers)
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "botmaster", "config.toml")
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Load reads the config at path, or DefaultPath when path is empty. A missing
// file yields defaults, not an error; a malformed or invalid file is an
// error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if level := os.Getenv("BOTMASTER_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path (DefaultPath when empty) atomically, creating
// parent directories as needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return util.AtomicWriteFile(path, []byte(buf.String()), 0644)
}

// Validate checks the whole file, including every agent entry.
func (c *Config) Validate() error {
	if c.PollIntervalSec < 1 {
		return fmt.Errorf("poll_interval_sec must be at least 1, got %d", c.PollIntervalSec)
	}
	if c.RequestTimeoutSec < 1 {
		return fmt.Errorf("request_timeout_sec must be at least 1, got %d", c.RequestTimeoutSec)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error; got %q", c.LogLevel)
	}

	seen := make(map[string]bool, len(c.Agents))
	for i := range c.Agents {
		a, err := c.Agents[i].ToAgent()
		if err != nil {
			return fmt.Errorf("agents[%d]: %w", i, err)
		}
		key := a.ID.String()
		if seen[key] {
			return fmt.Errorf("agents[%d]: duplicate agent %s", i, key)
		}
		seen[key] = true
	}
	return nil
}

// ToAgent converts a file entry into the runtime type.
func (e AgentEntry) ToAgent() (agent.Agent, error) {
	id, err := agent.ParseAgentID(fmt.Sprintf("%s:%d", e.Host, e.Port))
	if err != nil {
		return agent.Agent{}, err
	}

	mode, err := agent.ParseMode(e.Automation.Mode)
	if err != nil {
		return agent.Agent{}, err
	}
	auto := agent.DefaultAutomationConfig()
	auto.Mode = mode
	auto.UseResume = e.Automation.UseResume
	if e.Automation.TimerHours != 0 || e.Automation.TimerMinutes != 0 {
		auto.TimerHours = e.Automation.TimerHours
		auto.TimerMinutes = e.Automation.TimerMinutes
	}
	if e.Automation.ScheduleStart != "" {
		t, err := agent.ParseTimeOfDay(e.Automation.ScheduleStart)
		if err != nil {
			return agent.Agent{}, fmt.Errorf("schedule_start: %w", err)
		}
		auto.ScheduleStart = t
	}
	if e.Automation.ScheduleEnd != "" {
		t, err := agent.ParseTimeOfDay(e.Automation.ScheduleEnd)
		if err != nil {
			return agent.Agent{}, fmt.Errorf("schedule_end: %w", err)
		}
		auto.ScheduleEnd = t
	}

	a := agent.Agent{
		ID:                 id,
		Name:               e.Name,
		Enabled:            e.Enabled,
		GoHomeAfterSession: e.GoHomeAfterSession,
		Automation:         auto,
	}
	if err := a.Validate(); err != nil {
		return agent.Agent{}, err
	}
	return a, nil
}

// FromAgent converts the runtime type back into a file entry.
func FromAgent(a agent.Agent) AgentEntry {
	return AgentEntry{
		Host:               a.ID.Host,
		Port:               a.ID.Port,
		Name:               a.Name,
		Enabled:            a.Enabled,
		GoHomeAfterSession: a.GoHomeAfterSession,
		Automation: AutomationEntry{
			Mode:          a.Automation.Mode.String(),
			TimerHours:    a.Automation.TimerHours,
			TimerMinutes:  a.Automation.TimerMinutes,
			ScheduleStart: a.Automation.ScheduleStart.String(),
			ScheduleEnd:   a.Automation.ScheduleEnd.String(),
			UseResume:     a.Automation.UseResume,
		},
	}
}

// ToAgents converts every entry; the error names the offending entry.
func (c *Config) ToAgents() ([]agent.Agent, error) {
	out := make([]agent.Agent, 0, len(c.Agents))
	for i := range c.Agents {
		a, err := c.Agents[i].ToAgent()
		if err != nil {
			return nil, fmt.Errorf("agents[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// SetAgents replaces the agent list from runtime values.
func (c *Config) SetAgents(agents []agent.Agent) {
	entries := make([]AgentEntry, 0, len(agents))
	for _, a := range agents {
		entries = append(entries, FromAgent(a))
	}
	c.Agents = entries
}

// PollInterval returns the configured cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}
