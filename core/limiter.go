package core

import (
	"sync"
)

// TurnBudget enforces the maximum number of messages a session may append.
type TurnBudget struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewTurnBudget creates a budget of max messages. max <= 0 means unlimited,
// which the orchestrator never uses but tests and the fallback path do.
func NewTurnBudget(max int) *TurnBudget {
	return &TurnBudget{max: max}
}

// Take consumes one message slot. It returns false when the budget is already
// exhausted; the counter is not advanced in that case.
func (b *TurnBudget) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && b.count >= b.max {
		return false
	}
	b.count++
	return true
}

// Exhausted reports whether no slot is left.
func (b *TurnBudget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.max > 0 && b.count >= b.max
}

// Count returns the number of slots used.
func (b *TurnBudget) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Remaining returns how many slots are left, or -1 when unlimited.
func (b *TurnBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max <= 0 {
		return -1
	}
	return b.max - b.count
}

// Max returns the configured bound.
func (b *TurnBudget) Max() int { return b.max }

// Reset clears the counter.
func (b *TurnBudget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count = 0
}
