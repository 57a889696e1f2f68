package openai

import (
	"testing"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages(t *testing.T) {
	req := model.Request{
		Instructions: "You extract tickets.",
		Contents: []core.Content{
			core.NewTextContent(core.RoleUser, "file a ticket"),
			{Role: core.RoleAssistant, Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "search", Arguments: `{}`}}}},
			{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "search", Response: "nothing"}}}},
			core.NewTextContent(core.RoleAssistant, "done"),
		},
	}

	msgs := buildMessages(req)
	require.Len(t, msgs, 5)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	assert.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
	assert.NotNil(t, msgs[4].OfAssistant)
}

func TestBuildParamsTools(t *testing.T) {
	m := NewModel(func(o *Options) {
		o.Model = "qwen-turbo-latest"
		o.APIKey = "test"
		o.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	})
	params := m.buildParams(model.Request{Tools: []model.ToolDefinition{{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        "search_knowledge_base",
			Description: "search",
			Parameters:  map[string]any{"type": "object"},
		},
	}}})

	require.Len(t, params.Tools, 1)
	assert.Equal(t, "search_knowledge_base", params.Tools[0].Function.Name)
	assert.Equal(t, "qwen-turbo-latest", m.Info().Name)
	assert.Equal(t, "openai", m.Info().Provider)
}
