package agent

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AutomationMode selects how the supervisor drives an agent.
type AutomationMode int

const (
	// ModeManual takes no autonomous action; starts and stops come only
	// from explicit user commands.
	ModeManual AutomationMode = iota
	// ModeTimer starts the agent immediately and stops it after a fixed
	// duration.
	ModeTimer
	// ModeSchedule keeps the agent running inside a daily wall-clock
	// window and stopped outside it.
	ModeSchedule
)

var modeNames = map[AutomationMode]string{
	ModeManual:   "manual",
	ModeTimer:    "timer",
	ModeSchedule: "schedule",
}

// String returns the serialized mode name.
func (m AutomationMode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses a serialized mode name.
func ParseMode(s string) (AutomationMode, error) {
	switch s {
	case "manual", "none", "":
		// "none" is the legacy on-disk name for manual mode.
		return ModeManual, nil
	case "timer":
		return ModeTimer, nil
	case "schedule":
		return ModeSchedule, nil
	}
	return ModeManual, fmt.Errorf("unknown automation mode %q", s)
}

// MarshalText implements encoding.TextMarshaler so modes serialize by name.
func (m AutomationMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *AutomationMode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// TimeOfDay is a wall-clock time without a date, local timezone implied.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Minutes returns the minutes-of-day value in [0, 1439].
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// String renders "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Validate checks the hour and minute ranges.
func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("hour %d out of range 0-23", t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("minute %d out of range 0-59", t.Minute)
	}
	return nil
}

// ParseTimeOfDay parses "HH:MM". Both fields must be bare decimal digits;
// signs, spaces, and trailing text are rejected.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || !allDigits(hh) || !allDigits(mm) {
		return TimeOfDay{}, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	hour, _ := strconv.Atoi(hh)
	minute, _ := strconv.Atoi(mm)
	t := TimeOfDay{Hour: hour, Minute: minute}
	if err := t.Validate(); err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t, nil
}

func allDigits(s string) bool {
	if s == "" || len(s) > 2 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// InWindow reports whether now falls inside the daily [start, end) window.
// A start later than end denotes an overnight window that wraps past
// midnight (e.g. 22:00-06:00).
func InWindow(start, end TimeOfDay, now time.Time) bool {
	cur := now.Hour()*60 + now.Minute()
	s, e := start.Minutes(), end.Minutes()
	if s <= e {
		return s <= cur && cur < e
	}
	return cur >= s || cur < e
}

// AutomationConfig is the persisted per-agent automation setup. Timer and
// schedule fields are both kept regardless of mode so switching modes does
// not lose the previous values.
type AutomationConfig struct {
	Mode          AutomationMode
	TimerHours    int
	TimerMinutes  int
	ScheduleStart TimeOfDay
	ScheduleEnd   TimeOfDay
	// UseResume makes automated starts resume incomplete orders instead
	// of running fresh ones.
	UseResume bool
}

// DefaultAutomationConfig mirrors the defaults offered to a new agent.
func DefaultAutomationConfig() AutomationConfig {
	return AutomationConfig{
		Mode:          ModeManual,
		TimerMinutes:  30,
		ScheduleStart: TimeOfDay{Hour: 8},
		ScheduleEnd:   TimeOfDay{Hour: 22},
	}
}

// TimerDuration returns the configured timer length.
func (c AutomationConfig) TimerDuration() time.Duration {
	return time.Duration(c.TimerHours)*time.Hour + time.Duration(c.TimerMinutes)*time.Minute
}

// Validate rejects configurations the supervisor must never see. Only the
// fields of the active mode are checked; inactive-mode fields are carried
// as-is for persistence.
func (c AutomationConfig) Validate() error {
	switch c.Mode {
	case ModeManual:
		return nil
	case ModeTimer:
		if c.TimerHours < 0 || c.TimerMinutes < 0 {
			return fmt.Errorf("timer duration cannot be negative")
		}
		if c.TimerHours == 0 && c.TimerMinutes == 0 {
			return fmt.Errorf("timer must be at least 1 minute")
		}
		return nil
	case ModeSchedule:
		if err := c.ScheduleStart.Validate(); err != nil {
			return fmt.Errorf("schedule start: %w", err)
		}
		if err := c.ScheduleEnd.Validate(); err != nil {
			return fmt.Errorf("schedule end: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown automation mode %d", int(c.Mode))
}
