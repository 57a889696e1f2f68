// Package anthropic binds model.Model to the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/model"
)

// Options configure the binding.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	// APIKey empty falls back to ANTHROPIC_API_KEY.
	APIKey  string
	BaseURL string
	// MaxRetries is handed to the SDK. Negative leaves the SDK default.
	MaxRetries int
}

// Model is a Messages API binding.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func applyOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
		MaxRetries:  2,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// NewModel builds its own client from APIKey, BaseURL and MaxRetries.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := applyOptions(optFns)

	var reqOpts []option.RequestOption
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.MaxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(opts.MaxRetries))
	}
	client := anthropic.NewClient(reqOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient reuses client; connection options are ignored.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: applyOptions(optFns)}
}

func (m *Model) Info() model.Info {
	return model.Info{Name: string(m.opts.Model), Provider: "anthropic", SupportsTools: true}
}

// Generate sends one non-streaming message request.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       m.opts.Model,
			System:      systemBlocks(req),
			Messages:    buildMessages(req.Contents),
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}
		if len(req.Tools) > 0 {
			params.Tools = buildTools(req.Tools)
		}

		msg, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic %s: %w", m.opts.Model, err)
			return
		}
		out <- toResponse(msg)
	}()

	return out, errCh
}

func toResponse(msg *anthropic.Message) model.Response {
	content := core.Content{Role: core.RoleAssistant}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if text := block.AsText().Text; text != "" {
				content.Parts = append(content.Parts, core.TextPart{Text: text})
			}
		case "tool_use":
			use := block.AsToolUse()
			content.Parts = append(content.Parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        use.ID,
				Name:      use.Name,
				Arguments: string(use.Input),
			}})
		}
	}

	finish := string(msg.StopReason)
	if finish == "" {
		finish = "stop"
	}
	in, outTokens := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return model.Response{
		ID:           msg.ID,
		Content:      content,
		FinishReason: finish,
		Usage:        &model.TokenUsage{PromptTokens: in, CompletionTokens: outTokens, TotalTokens: in + outTokens},
	}
}

// systemBlocks collects the directive and any system contents; the Messages
// API takes them outside the message list.
func systemBlocks(req model.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}
	for _, c := range req.Contents {
		if text := c.Text(); c.Role == core.RoleSystem && text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: text})
		}
	}
	return blocks
}

// buildMessages maps contents to user and assistant turns. tool_result
// blocks travel in a user turn right after the assistant turn holding the
// matching tool_use blocks.
func buildMessages(contents []core.Content) []anthropic.MessageParam {
	var msgs []anthropic.MessageParam
	for _, c := range contents {
		switch c.Role {
		case core.RoleSystem:
		case core.RoleAssistant:
			if blocks := assistantBlocks(c); len(blocks) > 0 {
				msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, p := range c.Parts {
				if fr, ok := p.(core.FunctionResponsePart); ok {
					blocks = append(blocks, anthropic.NewToolResultBlock(fr.FunctionResponse.ID, fr.FunctionResponse.Response, false))
				}
			}
			if len(blocks) > 0 {
				msgs = append(msgs, anthropic.NewUserMessage(blocks...))
			}
		default:
			if text := c.Text(); text != "" {
				msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		}
	}
	return msgs
}

func assistantBlocks(c core.Content) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range c.Parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case core.FunctionCallPart:
			fc := part.FunctionCall
			blocks = append(blocks, anthropic.NewToolUseBlock(fc.ID, toolInput(fc.Arguments), fc.Name))
		}
	}
	return blocks
}

// toolInput decodes the JSON arguments; undecodable arguments are passed on
// as the raw string.
func toolInput(args string) any {
	if args == "" {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(args), &v); err != nil {
		return args
	}
	return v
}

func buildTools(defs []model.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if p := d.Function.Parameters; p != nil {
			schema.Properties = p["properties"]
			schema.Required = requiredNames(p["required"])
		}

		t := anthropic.ToolUnionParamOfTool(schema, d.Function.Name)
		if t.OfTool != nil && d.Function.Description != "" {
			t.OfTool.Description = anthropic.String(d.Function.Description)
		}
		tools = append(tools, t)
	}
	return tools
}

func requiredNames(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		names := make([]string, 0, len(r))
		for _, item := range r {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
		return names
	}
	return nil
}
