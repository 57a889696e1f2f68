package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/model"
)

// Registry maps tool names to implementations. It is populated at startup
// and read concurrently by every session afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools. Duplicate names are rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t to the registry.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return errors.New("tool: name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.tools[t.Name()]; dup {
		return fmt.Errorf("tool: duplicate tool %q", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definitions builds the model-facing declarations for the named tools, in
// the given order. An unknown name is a configuration error.
func (r *Registry) Definitions(names []string) ([]model.ToolDefinition, error) {
	defs := make([]model.ToolDefinition, 0, len(names))
	for _, n := range names {
		t, ok := r.Get(n)
		if !ok {
			return nil, NewToolError(n, "tool is not registered", CodeNotFound)
		}
		defs = append(defs, model.Define(t.Name(), t.Description(), t.Parameters()))
	}
	return defs, nil
}

// Invoke executes one function call and renders its result as text. Every
// failure (unknown tool, bad arguments, tool error, timeout, panic) is
// returned as a *core.ToolExecutionError wrapping a *ToolError; the caller
// decides how to surface it. A positive timeout bounds the call.
func (r *Registry) Invoke(ctx context.Context, fc core.FunctionCall, timeout time.Duration) (string, error) {
	t, ok := r.Get(fc.Name)
	if !ok {
		return "", &core.ToolExecutionError{Tool: fc.Name, Err: NewToolError(fc.Name, "tool not found", CodeNotFound)}
	}

	args := map[string]any{}
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
			return "", &core.ToolExecutionError{Tool: fc.Name, Err: &ToolError{
				Tool:    fc.Name,
				Message: fmt.Sprintf("failed to unmarshal args: %v", err),
				Code:    CodeValidation,
			}}
		}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		var o outcome
		defer func() {
			if rec := recover(); rec != nil {
				o = outcome{err: &ToolError{
					Tool:    fc.Name,
					Message: fmt.Sprintf("panic recovered: %v", rec),
					Code:    CodePanic,
					Details: string(debug.Stack()),
				}}
			}
			done <- o
		}()
		o.result, o.err = t.Call(ctx, args)
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		o.err = &ToolError{Tool: fc.Name, Message: ctx.Err().Error(), Code: CodeTimeout}
	}

	if o.err != nil {
		var toolErr *ToolError
		if ctx.Err() != nil {
			toolErr = &ToolError{Tool: fc.Name, Message: ctx.Err().Error(), Code: CodeTimeout}
		} else if !errors.As(o.err, &toolErr) {
			toolErr = &ToolError{Tool: fc.Name, Message: o.err.Error(), Code: CodeExecution}
		}
		return "", &core.ToolExecutionError{Tool: fc.Name, Err: toolErr}
	}

	return Render(o.result)
}

// Render converts a tool result into transcript text.
func Render(result any) (string, error) {
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("tool: render result: %w", err)
		}
		return string(b), nil
	}
}
