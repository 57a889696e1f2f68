package core

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyRegistry is returned when a pipeline declares no participants.
	ErrEmptyRegistry = errors.New("participant registry is empty")
	// ErrUnknownParticipant is returned when an id is not registered.
	ErrUnknownParticipant = errors.New("unknown participant")
	// ErrNoDefaultParticipant is returned when dynamic selection has no valid fallback.
	ErrNoDefaultParticipant = errors.New("no default participant configured")
)

// ModelInvocationError reports a transport failure or timeout talking to the
// model binding. It aborts the current session.
type ModelInvocationError struct {
	Participant string
	Err         error
}

func (e *ModelInvocationError) Error() string {
	if e.Participant == "" {
		return fmt.Sprintf("model invocation failed: %v", e.Err)
	}
	return fmt.Sprintf("model invocation failed for %s: %v", e.Participant, e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// ToolExecutionError reports a failed or timed out tool call. The executor
// always recovers it into a tool-result message.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// ExtractionError reports a terminated session whose payload could not be
// located, parsed or validated.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return "extraction failed: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// BudgetExceededError reports that no completion condition fired within the
// message budget.
type BudgetExceededError struct {
	MaxTurns int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("no termination within %d messages", e.MaxTurns)
}

// CancellationError reports a caller-requested stop.
type CancellationError struct {
	Err error
}

func (e *CancellationError) Error() string {
	if e.Err == nil {
		return "session cancelled"
	}
	return fmt.Sprintf("session cancelled: %v", e.Err)
}

func (e *CancellationError) Unwrap() error { return e.Err }
