package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/taskmesh/pipeline"
	"github.com/hupe1980/taskmesh/transcript"
)

// CallbackType names the engine lifecycle point a callback runs at.
type CallbackType string

const (
	// CallbackBeforeSession runs after a concurrency slot was acquired and
	// before the pipeline starts. An error aborts the run.
	CallbackBeforeSession CallbackType = "before_session"

	// CallbackAfterSession runs once the pipeline produced its Result.
	// Errors are logged and never change the Result.
	CallbackAfterSession CallbackType = "after_session"
)

// CallbackContext carries what a callback may inspect.
type CallbackContext struct {
	SessionID string
	Pipeline  string
	Task      string
	// Result is nil for CallbackBeforeSession.
	Result *pipeline.Result
}

// Callback is a lifecycle hook.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cc *CallbackContext) error
}

// FunctionCallback adapts a plain function to Callback.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cc *CallbackContext) error
}

// NewFunctionCallback wraps fn as a callback of the given type.
func NewFunctionCallback(t CallbackType, fn func(ctx context.Context, cc *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: t, fn: fn}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, cc *CallbackContext) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, cc)
}

// CallbackManager keeps callbacks per type and runs them in registration
// order.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager returns an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds cb.
func (cm *CallbackManager) RegisterCallback(cb Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks[cb.Type()] = append(cm.callbacks[cb.Type()], cb)
}

// ExecuteCallbacks runs every callback of type t, stopping at the first
// error.
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, t CallbackType, cc *CallbackContext) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[t]...)
	cm.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb.Execute(ctx, cc); err != nil {
			return err
		}
	}
	return nil
}

// TranscriptCallback saves every finished session into a transcript store.
type TranscriptCallback struct {
	store transcript.Store
}

// NewTranscriptCallback returns an after-session callback writing to store.
func NewTranscriptCallback(store transcript.Store) *TranscriptCallback {
	return &TranscriptCallback{store: store}
}

// Type implements Callback.
func (c *TranscriptCallback) Type() CallbackType { return CallbackAfterSession }

// Execute implements Callback. Saving is detached from ctx so cancelled
// sessions are still recorded.
func (c *TranscriptCallback) Execute(ctx context.Context, cc *CallbackContext) error {
	if cc.Result == nil {
		return nil
	}
	res := cc.Result
	rec := transcript.Record{
		SessionID: res.SessionID,
		Pipeline:  res.Pipeline,
		Task:      cc.Task,
		Result:    res.ResultText,
		Status:    res.Status,
		Degraded:  res.Degraded,
		Reason:    res.Reason,
		Messages:  res.Messages,
	}
	if err := c.store.Save(context.WithoutCancel(ctx), rec); err != nil {
		return fmt.Errorf("record transcript of %s: %w", res.SessionID, err)
	}
	return nil
}
