package model

import (
	"context"

	"github.com/hupe1980/taskmesh/core"
)

// Model is the binding every participant and the dynamic selector talk to.
//
// Generate streams zero or more partial responses followed by one final
// response, then closes both channels. Implementations honour ctx and do not
// retry; a failed call is reported once on the error channel.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)
	Info() Info
}

// Request is the provider-neutral input of one model call.
type Request struct {
	// Instructions carries the participant's role directive.
	Instructions string           `json:"instructions"`
	Contents     []core.Content   `json:"contents"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// ToolDefinition exposes one callable tool to the model.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition names a tool and its JSON schema parameters.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Define builds a function tool definition.
func Define(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{
		Type:     "function",
		Function: FunctionDefinition{Name: name, Description: description, Parameters: parameters},
	}
}

// Response is one streamed chunk. Exactly one non-partial response ends a
// successful call.
type Response struct {
	ID      string       `json:"id"`
	Partial bool         `json:"partial"`
	Content core.Content `json:"content"`
	// FinishReason is the provider's stop reason ("stop", "length",
	// "tool_calls").
	FinishReason string      `json:"finish_reason"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// TokenUsage is the token accounting of one call, when the provider reports it.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Info identifies a binding in logs and errors.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}
