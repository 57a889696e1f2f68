package core

// Status is the lifecycle state of a session.
type Status int

const (
	// StatusRunning is the only non-terminal state.
	StatusRunning Status = iota
	// StatusTerminated means a completion condition fired.
	StatusTerminated
	// StatusBudgetExceeded means the message budget ran out first.
	StatusBudgetExceeded
	// StatusCancelled means the caller cancelled the session.
	StatusCancelled
	// StatusFailed means a model invocation failed.
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusTerminated:
		return "terminated"
	case StatusBudgetExceeded:
		return "budget_exceeded"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the status name in JSON and YAML output.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a status name written by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	*s = ParseStatus(string(b))
	return nil
}

// Terminal reports whether s is absorbing.
func (s Status) Terminal() bool { return s != StatusRunning }

// CanTransition reports whether moving from s to next is allowed. Only
// Running may move, and only forward into a terminal state.
func (s Status) CanTransition(next Status) bool {
	return s == StatusRunning && next.Terminal()
}

// ParseStatus is the inverse of String. Unknown names map to StatusFailed.
func ParseStatus(name string) Status {
	switch name {
	case "running":
		return StatusRunning
	case "terminated":
		return StatusTerminated
	case "budget_exceeded":
		return StatusBudgetExceeded
	case "cancelled":
		return StatusCancelled
	default:
		return StatusFailed
	}
}
