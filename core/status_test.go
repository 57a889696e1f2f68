package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	terminal := []Status{StatusTerminated, StatusBudgetExceeded, StatusCancelled, StatusFailed}

	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusRunning.CanTransition(StatusRunning))

	for _, s := range terminal {
		t.Run(s.String(), func(t *testing.T) {
			assert.True(t, s.Terminal())
			assert.True(t, StatusRunning.CanTransition(s))
			for _, next := range append(terminal, StatusRunning) {
				assert.False(t, s.CanTransition(next), "%s -> %s must be rejected", s, next)
			}
			assert.Equal(t, s, ParseStatus(s.String()))
		})
	}
}

func TestTurnBudget(t *testing.T) {
	b := NewTurnBudget(2)
	assert.Equal(t, 2, b.Remaining())
	assert.True(t, b.Take())
	assert.True(t, b.Take())
	assert.True(t, b.Exhausted())
	assert.False(t, b.Take())
	assert.Equal(t, 2, b.Count())

	b.Reset()
	assert.Equal(t, 0, b.Count())
	assert.False(t, b.Exhausted())

	unlimited := NewTurnBudget(0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Take())
	}
	assert.Equal(t, -1, unlimited.Remaining())
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection reset")

	var mie *ModelInvocationError
	err := fmt.Errorf("turn: %w", &ModelInvocationError{Participant: "a", Err: cause})
	assert.True(t, errors.As(err, &mie))
	assert.Equal(t, "a", mie.Participant)
	assert.True(t, errors.Is(err, cause))

	tee := &ToolExecutionError{Tool: "ssh", Err: cause}
	assert.Equal(t, "tool ssh failed: connection reset", tee.Error())

	assert.Equal(t, "extraction failed: no payload", (&ExtractionError{Reason: "no payload"}).Error())
	assert.Contains(t, (&BudgetExceededError{MaxTurns: 6}).Error(), "6")
	assert.Equal(t, "session cancelled", (&CancellationError{}).Error())
}
