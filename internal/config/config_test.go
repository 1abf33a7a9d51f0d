package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollIntervalSec != 10 || cfg.RequestTimeoutSec != 5 {
		t.Errorf("defaults = %d/%d, want 10/5", cfg.PollIntervalSec, cfg.RequestTimeoutSec)
	}
	if len(cfg.Agents) != 0 {
		t.Errorf("expected no agents, got %d", len(cfg.Agents))
	}
}

func TestLoadParsesAgents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
poll_interval_sec = 15
default_order_path = "orders/farm.json"

[[agents]]
host = "10.0.0.5"
port = 7011
name = "miner"
enabled = true
go_home_after_session = true

[agents.automation]
mode = "schedule"
schedule_start = "08:00"
schedule_end = "22:00"
use_resume = true

[[agents]]
host = "10.0.0.6"
port = 7011
enabled = false

[agents.automation]
mode = "none"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollIntervalSec != 15 {
		t.Errorf("PollIntervalSec = %d, want 15", cfg.PollIntervalSec)
	}
	agents, err := cfg.ToAgents()
	if err != nil {
		t.Fatalf("ToAgents: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("got %d agents, want 2", len(agents))
	}

	a := agents[0]
	if a.ID.Host != "10.0.0.5" || a.ID.Port != 7011 || a.Name != "miner" {
		t.Errorf("agent[0] = %+v", a)
	}
	if !a.GoHomeAfterSession {
		t.Error("go_home_after_session not parsed")
	}
	if a.Automation.Mode != agent.ModeSchedule || !a.Automation.UseResume {
		t.Errorf("automation = %+v", a.Automation)
	}
	if a.Automation.ScheduleStart.String() != "08:00" || a.Automation.ScheduleEnd.String() != "22:00" {
		t.Errorf("window = %s-%s", a.Automation.ScheduleStart, a.Automation.ScheduleEnd)
	}

	// Legacy "none" spelling maps to manual.
	if agents[1].Automation.Mode != agent.ModeManual {
		t.Errorf("agent[1] mode = %v, want manual", agents[1].Automation.Mode)
	}
	if agents[1].Enabled {
		t.Error("agent[1] should be disabled")
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"bad toml", `poll_interval_sec = [`},
		{"zero interval", `poll_interval_sec = 0`},
		{"bad log level", `log_level = "loud"`},
		{"bad port", "[[agents]]\nhost = \"x\"\nport = 99999"},
		{"bad schedule time", "[[agents]]\nhost = \"x\"\nport = 7011\n[agents.automation]\nmode = \"schedule\"\nschedule_start = \"25:00\""},
		{"duplicate agents", "[[agents]]\nhost = \"x\"\nport = 7011\n[[agents]]\nhost = \"x\"\nport = 7011"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.toml), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.DefaultOrderPath = "orders/default.json"
	cfg.SetAgents([]agent.Agent{
		{
			ID:      agent.AgentID{Host: "192.168.1.20", Port: 7011},
			Name:    "archer",
			Enabled: true,
			Automation: agent.AutomationConfig{
				Mode:         agent.ModeTimer,
				TimerHours:   1,
				TimerMinutes: 30,
			},
		},
	})

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if got.DefaultOrderPath != "orders/default.json" {
		t.Errorf("DefaultOrderPath = %q", got.DefaultOrderPath)
	}
	agents, err := got.ToAgents()
	if err != nil {
		t.Fatalf("ToAgents: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("got %d agents", len(agents))
	}
	a := agents[0]
	if a.Name != "archer" || a.Automation.Mode != agent.ModeTimer {
		t.Errorf("agent = %+v", a)
	}
	if d := a.Automation.TimerDuration(); d.Minutes() != 90 {
		t.Errorf("timer duration = %v, want 90m", d)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.PollIntervalSec = 0
	if err := Save(filepath.Join(t.TempDir(), "config.toml"), cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestDefaultPathHonorsEnv(t *testing.T) {
	t.Setenv("BOTMASTER_CONFIG", "/etc/botmaster/fleet.toml")
	if got := DefaultPath(); got != "/etc/botmaster/fleet.toml" {
		t.Errorf("DefaultPath = %q", got)
	}

	t.Setenv("BOTMASTER_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	want := filepath.Join("/xdg", "botmaster", "config.toml")
	if got := DefaultPath(); got != want {
		t.Errorf("DefaultPath = %q, want %q", got, want)
	}
}

func TestLogLevelEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`log_level = "info"`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOTMASTER_LOG_LEVEL", "debug")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.EqualFold(cfg.LogLevel, "debug") {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}
