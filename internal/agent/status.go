package agent

import "fmt"

// ErrorKind classifies why an agent could not be reached.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorTimeout
	ErrorConnectionRefused
	ErrorOther
)

// String returns a short human-readable label.
func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "none"
	case ErrorTimeout:
		return "timeout"
	case ErrorConnectionRefused:
		return "connection refused"
	default:
		return "error"
	}
}

// Known agent states as reported by /status. The agent may report other
// strings; they are displayed as-is and treated as not-runnable.
const (
	StateIdle      = "idle"
	StatePending   = "pending"
	StateExecuting = "executing"
	StateStopped   = "stopped"
)

// RuntimeStatus is one agent's state as of the last poll. Values are
// immutable once produced; a new poll builds a new RuntimeStatus.
type RuntimeStatus struct {
	Reachable bool
	Error     ErrorKind
	ErrorMsg  string

	State               string
	IsExecuting         bool
	HasPendingOrder     bool
	HasIncompleteOrders bool
	CurrentFile         string
	APIStatus           string
	BotRunning          bool
	CharacterName       string
	WorldName           string
	RuntimeSeconds      int
}

// Unreachable builds the status for a failed poll.
func Unreachable(kind ErrorKind, msg string) RuntimeStatus {
	return RuntimeStatus{Error: kind, ErrorMsg: msg}
}

// CanRun reports whether a fresh run may be dispatched.
func (s RuntimeStatus) CanRun() bool {
	return s.Reachable && (s.State == StateIdle || s.State == StateStopped)
}

// CanResume reports whether incomplete orders can be resumed.
func (s RuntimeStatus) CanResume() bool {
	return s.CanRun() && s.HasIncompleteOrders
}

// CanStop reports whether a gentle stop makes sense right now.
func (s RuntimeStatus) CanStop() bool {
	return s.Reachable && s.IsExecuting
}

// StateLabel returns the display label for the agent's state.
func (s RuntimeStatus) StateLabel() string {
	if !s.Reachable {
		return "unreachable"
	}
	if s.State == "" {
		return "unknown"
	}
	return s.State
}

// FormatRuntime renders elapsed seconds as "2h 5m 10s", dropping leading
// zero units.
func FormatRuntime(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	sec := seconds % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, sec)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}
