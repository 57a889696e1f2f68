// Package tool implements the tool-calling subsystem that lets participants
// invoke structured capabilities (knowledge search, remote commands, ticket
// filing) with schema validated arguments and uniform error handling.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/taskmesh/internal/util"
)

// Tool is a named capability a participant may call during its turn. One
// instance serves every session, so implementations must be safe for
// concurrent use and honour ctx.
type Tool interface {
	// Name is the snake_case identifier the model calls.
	Name() string
	Description() string
	// Parameters is the JSON schema of the arguments.
	Parameters() map[string]any
	// Call runs the tool. Strings are rendered verbatim into the
	// transcript, anything else as JSON.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError is the first schema violation found in a call's arguments.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeTimeout    = "TIMEOUT"
	CodePanic      = "PANIC"
)

// ToolError is the typed failure of one tool call. The participant renders
// it into the transcript instead of aborting the session.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
