// Package openai binds model.Model to the Chat Completions API. Any
// compatible endpoint (DashScope compatible mode, vLLM, Ollama) is reached
// through BaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/model"
)

// Options configure the binding.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	// APIKey empty falls back to OPENAI_API_KEY.
	APIKey  string
	BaseURL string
	// MaxRetries is handed to the SDK, which retries transport failures and
	// 429/5xx responses with backoff. Negative leaves the SDK default.
	MaxRetries int
}

// Model is a Chat Completions binding.
type Model struct {
	client *openai.Client
	opts   Options
}

func applyOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		MaxRetries:          2,
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
	client := openai.NewClient(reqOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient reuses client; connection options are ignored.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: applyOptions(optFns)}
}

func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai", SupportsTools: true}
}

// Generate sends one non-streaming completion and delivers it as the final
// response.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		completion, err := m.client.Chat.Completions.New(ctx, m.buildParams(req))
		if err != nil {
			errCh <- fmt.Errorf("openai %s: %w", m.opts.Model, err)
			return
		}
		resp, err := toResponse(completion)
		if err != nil {
			errCh <- fmt.Errorf("openai %s: %w", m.opts.Model, err)
			return
		}
		out <- resp
	}()

	return out, errCh
}

func toResponse(c *openai.ChatCompletion) (model.Response, error) {
	if len(c.Choices) == 0 {
		return model.Response{}, errors.New("no choices returned")
	}
	choice := c.Choices[0]

	content := core.Content{Role: core.RoleAssistant}
	if choice.Message.Content != "" {
		content.Parts = append(content.Parts, core.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		content.Parts = append(content.Parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}

	return model.Response{
		ID:           c.ID,
		Content:      content,
		FinishReason: choice.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(c.Usage.PromptTokens),
			CompletionTokens: int(c.Usage.CompletionTokens),
			TotalTokens:      int(c.Usage.TotalTokens),
		},
	}, nil
}

func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:               m.opts.Model,
		Messages:            buildMessages(req),
		Tools:               toolParams(req.Tools),
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
}

func toolParams(defs []model.ToolDefinition) []openai.ChatCompletionToolParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        d.Function.Name,
				Description: openai.String(d.Function.Description),
				Parameters:  d.Function.Parameters,
			},
		})
	}
	return tools
}

// buildMessages keeps the order of req.Contents. Tool responses become tool
// messages right where they appear, which is directly after the assistant
// turn that requested them.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Contents)+1)
	if req.Instructions != "" {
		msgs = append(msgs, openai.SystemMessage(req.Instructions))
	}

	for _, c := range req.Contents {
		switch c.Role {
		case core.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(c.Text()))
		case core.RoleAssistant:
			msgs = append(msgs, assistantMessage(c))
		case core.RoleTool:
			for _, p := range c.Parts {
				if fr, ok := p.(core.FunctionResponsePart); ok {
					msgs = append(msgs, openai.ToolMessage(fr.FunctionResponse.Response, fr.FunctionResponse.ID))
				}
			}
		default:
			if text := c.Text(); text != "" {
				msgs = append(msgs, openai.UserMessage(text))
			}
		}
	}
	return msgs
}

func assistantMessage(c core.Content) openai.ChatCompletionMessageParamUnion {
	calls := c.FunctionCalls()
	if len(calls) == 0 {
		return openai.AssistantMessage(c.Text())
	}

	params := &openai.ChatCompletionAssistantMessageParam{Role: "assistant"}
	for _, fc := range calls {
		params.ToolCalls = append(params.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   fc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.Name,
				Arguments: fc.Arguments,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: params}
}
