package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// ErrEmptyCompletion is returned when the model produced neither text nor a tool call.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Completion is the outcome of one model call: either plain text or one or
// more tool calls (text may accompany tool calls and is kept for context).
type Completion struct {
	Text         string
	ToolCalls    []core.FunctionCall
	FinishReason string
	Usage        *TokenUsage
}

// HasToolCalls reports whether the model asked for tools.
func (c Completion) HasToolCalls() bool { return len(c.ToolCalls) > 0 }

// Content converts the completion back into an assistant content block for
// the follow-up request in a tool loop.
func (c Completion) Content() core.Content {
	parts := make([]core.Part, 0, len(c.ToolCalls)+1)
	if c.Text != "" {
		parts = append(parts, core.TextPart{Text: c.Text})
	}
	for _, fc := range c.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
	}
	return core.Content{Role: core.RoleAssistant, Parts: parts}
}

// Complete drives m.Generate to completion and folds the stream into a
// Completion. A positive timeout bounds the call; expiry surfaces as an
// error wrapping context.DeadlineExceeded. Partial chunks are ignored in
// favour of the final response; if no final response arrives, partial text
// is concatenated.
func Complete(ctx context.Context, m Model, req Request, timeout time.Duration) (Completion, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	respCh, errCh := m.Generate(ctx, req)

	var (
		final   *Response
		partial strings.Builder
	)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Completion{}, fmt.Errorf("model %s: %w", m.Info().Name, ctx.Err())
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Partial {
				partial.WriteString(r.Content.Text())
				continue
			}
			rc := r
			final = &rc
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Completion{}, err
			}
		}
	}

	if final == nil {
		if partial.Len() == 0 {
			return Completion{}, ErrEmptyCompletion
		}
		return Completion{Text: partial.String(), FinishReason: "stop"}, nil
	}

	c := Completion{
		Text:         final.Content.Text(),
		ToolCalls:    final.Content.FunctionCalls(),
		FinishReason: final.FinishReason,
		Usage:        final.Usage,
	}
	if c.Text == "" && len(c.ToolCalls) == 0 {
		return Completion{}, ErrEmptyCompletion
	}
	return c, nil
}
