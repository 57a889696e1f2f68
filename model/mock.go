package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// Step is one scripted model reply.
type Step struct {
	Text      string
	ToolCalls []core.FunctionCall
	Err       error
	// Delay blocks the reply; the call honours ctx while waiting.
	Delay time.Duration
}

// ScriptedModel is a lightweight in‑memory Model useful for tests, examples
// and dry runs. Replies are served from an ordered script; once the script is
// exhausted the Fallback function (or an echo of the last user text) is used.
// Every request is recorded.
type ScriptedModel struct {
	info     Info
	mu       sync.Mutex
	steps    []Step
	requests []Request
	Fallback func(req Request) Step
}

// NewScriptedModel constructs a ScriptedModel with tool support enabled.
func NewScriptedModel(name string, steps ...Step) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: name, Provider: "mock", SupportsTools: true},
		steps: steps,
	}
}

// Push appends steps to the script.
func (m *ScriptedModel) Push(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

// Requests returns a copy of every request seen so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Calls returns the number of Generate invocations.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *ScriptedModel) next(req Request) Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.steps) > 0 {
		s := m.steps[0]
		m.steps = m.steps[1:]
		return s
	}
	if m.Fallback != nil {
		return m.Fallback(req)
	}
	var last string
	if n := len(req.Contents); n > 0 {
		last = req.Contents[n-1].Text()
	}
	return Step{Text: fmt.Sprintf("Mock response to: %s", last)}
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	step := m.next(req)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if step.Delay > 0 {
			timer := time.NewTimer(step.Delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-timer.C:
			}
		}
		if step.Err != nil {
			errCh <- step.Err
			return
		}

		parts := make([]core.Part, 0, len(step.ToolCalls)+1)
		if step.Text != "" {
			parts = append(parts, core.TextPart{Text: step.Text})
		}
		finish := "stop"
		for _, fc := range step.ToolCalls {
			parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
			finish = "tool_calls"
		}
		respCh <- Response{
			Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
			FinishReason: finish,
		}
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
