package tool

import (
	"context"
	"errors"

	"github.com/hupe1980/taskmesh/internal/util"
)

// Func is the body of a FunctionTool. args have already passed schema
// validation.
type Func func(ctx context.Context, args map[string]any) (any, error)

// FunctionTool turns a Go function into a Tool. It is immutable and safe for
// concurrent use by every session.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          Func
}

// NewFunctionTool uses parameters as the JSON schema verbatim.
func NewFunctionTool(name, description string, parameters map[string]any, fn Func) *FunctionTool {
	return &FunctionTool{name: name, description: description, parameters: parameters, fn: fn}
}

// NewFunctionToolFromStruct derives the schema from argsStruct's json,
// description, enum, minimum and maximum tags:
//
//	type searchArgs struct {
//		Query    string `json:"query" description:"What to look up"`
//		NResults int    `json:"n_results,omitempty"`
//	}
//	NewFunctionToolFromStruct("search_knowledge_base", "...", searchArgs{}, fn)
func NewFunctionToolFromStruct(name, description string, argsStruct any, fn Func) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(argsStruct), fn)
}

func (t *FunctionTool) Name() string               { return t.name }
func (t *FunctionTool) Description() string        { return t.description }
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args and runs the function. Validation failures carry
// VALIDATION_ERROR; other errors become EXECUTION_ERROR unless the function
// already returned a *ToolError.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		te := NewToolError(t.name, "parameter validation failed: "+err.Error(), CodeValidation)
		te.Details = err
		return nil, te
	}

	out, err := t.fn(ctx, args)
	if err == nil {
		return out, nil
	}
	if te := (*ToolError)(nil); errors.As(err, &te) {
		return nil, te
	}
	return nil, NewToolError(t.name, err.Error(), CodeExecution)
}
