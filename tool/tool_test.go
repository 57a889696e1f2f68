package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.ElementsMatch(t, []string{"a"}, schema["required"])
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		"required": []any{"x"},
	}

	assert.NoError(t, util.ValidateParameters(map[string]any{"x": 5}, schema))

	err := util.ValidateParameters(map[string]any{}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "x", vErr.Field)

	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type integer")
}

func TestValidateParametersStringRequired(t *testing.T) {
	schema := map[string]any{"type": "object", "required": []string{"query"}}
	assert.Error(t, util.ValidateParameters(map[string]any{}, schema))
}

// -------------------- FunctionTool Tests --------------------

func sumTool() *FunctionTool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}
	return NewFunctionTool("sum", "Add numbers", params, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

func TestFunctionTool_Success(t *testing.T) {
	result, err := sumTool().Call(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	_, err := sumTool().Call(context.Background(), map[string]any{"a": 1.0})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	_, err := execTool.Call(context.Background(), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
}

// -------------------- Registry Tests --------------------

func TestRegistryDuplicate(t *testing.T) {
	_, err := NewRegistry(sumTool(), sumTool())
	assert.Error(t, err)
}

func TestRegistryDefinitions(t *testing.T) {
	r, err := NewRegistry(sumTool())
	require.NoError(t, err)

	defs, err := r.Definitions([]string{"sum"})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "sum", defs[0].Function.Name)
	assert.Equal(t, "function", defs[0].Type)

	_, err = r.Definitions([]string{"missing"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)
}

func TestRegistryInvoke(t *testing.T) {
	slow := NewFunctionTool("slow", "Sleeps", nil, func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-time.After(time.Second):
			return "late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	panicky := NewFunctionTool("panicky", "Panics", nil, func(context.Context, map[string]any) (any, error) {
		panic("kaboom")
	})
	structured := NewFunctionTool("structured", "Returns a map", nil, func(context.Context, map[string]any) (any, error) {
		return map[string]any{"ok": true}, nil
	})

	r, err := NewRegistry(sumTool(), slow, panicky, structured)
	require.NoError(t, err)

	tests := []struct {
		name     string
		call     core.FunctionCall
		want     string
		wantCode string
	}{
		{name: "number result", call: core.FunctionCall{Name: "sum", Arguments: `{"a":1,"b":2}`}, want: "3"},
		{name: "map result", call: core.FunctionCall{Name: "structured"}, want: `{"ok":true}`},
		{name: "unknown tool", call: core.FunctionCall{Name: "nope"}, wantCode: CodeNotFound},
		{name: "malformed args", call: core.FunctionCall{Name: "sum", Arguments: `{`}, wantCode: CodeValidation},
		{name: "timeout", call: core.FunctionCall{Name: "slow"}, wantCode: CodeTimeout},
		{name: "panic", call: core.FunctionCall{Name: "panicky"}, wantCode: CodePanic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Invoke(context.Background(), tt.call, 50*time.Millisecond)
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, out)
				return
			}

			var execErr *core.ToolExecutionError
			require.ErrorAs(t, err, &execErr)
			assert.Equal(t, tt.call.Name, execErr.Tool)

			var toolErr *ToolError
			require.ErrorAs(t, err, &toolErr)
			assert.Equal(t, tt.wantCode, toolErr.Code)
		})
	}
}

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}

func TestArgs(t *testing.T) {
	args := map[string]any{"query": "  vpn  ", "n": float64(4), "s": "7", "bad": true}
	assert.Equal(t, "vpn", StringArg(args, "query"))
	assert.Equal(t, "", StringArg(args, "missing"))
	assert.Equal(t, 4, IntArg(args, "n", 3))
	assert.Equal(t, 7, IntArg(args, "s", 3))
	assert.Equal(t, 3, IntArg(args, "bad", 3))
	assert.Equal(t, 3, IntArg(args, "missing", 3))
}
