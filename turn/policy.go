// Package turn decides which participant speaks next. Two policies exist:
// RoundRobin (fixed rotation over the registry order) and Selector (a model
// picks the next speaker, validated against the registry with a default
// participant as fallback).
package turn

import (
	"context"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// Policy selects the next speaker. Next always returns a registered id; the
// only error it may return is a *core.CancellationError.
type Policy interface {
	Next(ctx context.Context, task string, log core.LogView) (string, error)
	// Reset clears any per-session state (rotation cursor).
	Reset()
}

// RoundRobinOptions configure a RoundRobin policy.
type RoundRobinOptions struct {
	// AllowRepeat lets the same participant speak twice in a row.
	AllowRepeat bool
}

// RoundRobin cycles through participants in registration order.
type RoundRobin struct {
	registry *core.Registry
	opts     RoundRobinOptions

	mu     sync.Mutex
	cursor int
}

// NewRoundRobin creates a fixed-rotation policy over registry.
func NewRoundRobin(registry *core.Registry, optFns ...func(o *RoundRobinOptions)) *RoundRobin {
	opts := RoundRobinOptions{AllowRepeat: true}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RoundRobin{registry: registry, opts: opts}
}

// Next returns the participant at the cursor and advances it. With
// AllowRepeat disabled a candidate equal to the previous speaker is skipped
// unless it is the only participant.
func (r *RoundRobin) Next(ctx context.Context, _ string, log core.LogView) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &core.CancellationError{Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.registry.IDs()
	id := ids[r.cursor%len(ids)]
	r.cursor++

	if !r.opts.AllowRepeat && len(ids) > 1 && log != nil && id == core.LastSpeaker(log) {
		id = ids[r.cursor%len(ids)]
		r.cursor++
	}

	return id, nil
}

// Reset moves the cursor back to the first participant.
func (r *RoundRobin) Reset() {
	r.mu.Lock()
	r.cursor = 0
	r.mu.Unlock()
}
