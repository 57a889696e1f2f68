// Package participant runs one participant turn: it renders the participant's
// view of the transcript, calls the model and drives the tool invocation loop
// until the participant produces a plain-text answer.
package participant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/tool"
)

// Emit appends msg to the session transcript and reports whether the session
// must stop (termination met or budget exhausted).
type Emit func(msg core.Message) (stop bool)

// Options configure an Executor.
type Options struct {
	// ModelTimeout bounds each model call. Zero disables the bound.
	ModelTimeout time.Duration
	// ToolTimeout bounds each tool call. Zero disables the bound.
	ToolTimeout time.Duration
	// Window limits how many trailing transcript messages a participant sees.
	// Zero means the full transcript.
	Window int
	// Models holds alternative bindings selected by ParticipantSpec.Model.
	Models map[string]model.Model
	Logger logging.Logger
}

// Executor is the single generic participant runner. Behaviour differs per
// participant only through the core.ParticipantSpec passed to Execute.
type Executor struct {
	model model.Model
	tools *tool.Registry
	opts  Options
	log   *logging.MeshLogger
}

// NewExecutor creates an executor bound to one model and tool registry.
// tools may be nil when no participant declares tools.
func NewExecutor(m model.Model, tools *tool.Registry, optFns ...func(o *Options)) *Executor {
	opts := Options{
		ModelTimeout: 60 * time.Second,
		ToolTimeout:  30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if tools == nil {
		tools, _ = tool.NewRegistry()
	}

	return &Executor{
		model: m,
		tools: tools,
		opts:  opts,
		log:   logging.NewMeshLogger(opts.Logger).WithComponent("participant"),
	}
}

// Model returns the default model.
func (e *Executor) Model() model.Model { return e.model }

// ModelFor resolves the binding for spec, falling back to the default model
// when spec.Model is empty or unknown.
func (e *Executor) ModelFor(spec core.ParticipantSpec) model.Model {
	if m, ok := e.opts.Models[spec.Model]; ok && spec.Model != "" {
		return m
	}
	return e.model
}

// Execute runs one turn for spec. Every message the turn produces (tool
// results and the final text) is passed to emit in order. Tool failures are
// recorded as tool-result text and never abort the turn. A model transport
// failure returns *core.ModelInvocationError; cancellation of ctx returns
// *core.CancellationError.
func (e *Executor) Execute(ctx context.Context, spec core.ParticipantSpec, task string, log core.LogView, emit Emit) error {
	defs, err := e.tools.Definitions(spec.Tools)
	if err != nil {
		return fmt.Errorf("participant %s: %w", spec.ID, err)
	}

	req := model.Request{
		Instructions: spec.RoleDirective,
		Contents:     BuildContext(spec.ID, task, log, e.opts.Window),
		Tools:        defs,
	}

	maxIter := spec.ToolIterations()
	for iter := 0; ; iter++ {
		c, err := e.complete(ctx, e.ModelFor(spec), spec.ID, req)
		if err != nil {
			return err
		}

		if !c.HasToolCalls() {
			emit(core.Message{Speaker: spec.ID, Content: c.Text, Kind: core.KindText})
			return nil
		}

		if iter >= maxIter {
			e.log.Warn("participant.tool_loop.exhausted", "participant", spec.ID, "iterations", maxIter)
			emit(core.Message{Speaker: spec.ID, Content: ExhaustedMessage(spec.ID, maxIter), Kind: core.KindText})
			return nil
		}

		responses := make([]core.Part, 0, len(c.ToolCalls))
		for _, fc := range c.ToolCalls {
			out := e.invoke(ctx, spec.ID, fc)
			responses = append(responses, core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
				ID:       fc.ID,
				Name:     fc.Name,
				Response: out,
			}})
			if stop := emit(core.Message{Speaker: spec.ID, Content: out, Kind: core.KindToolResult}); stop {
				return nil
			}
		}

		req.Contents = append(req.Contents, c.Content(), core.Content{Role: core.RoleTool, Parts: responses})
	}
}

func (e *Executor) complete(ctx context.Context, m model.Model, participantID string, req model.Request) (model.Completion, error) {
	start := time.Now()
	c, err := model.Complete(ctx, m, req, e.opts.ModelTimeout)
	if errors.Is(err, model.ErrEmptyCompletion) {
		return model.Completion{FinishReason: "stop"}, nil
	}
	e.log.LogModelCall(m.Info().Name, participantID, time.Since(start), err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Completion{}, &core.CancellationError{Err: ctxErr}
		}
		return model.Completion{}, &core.ModelInvocationError{Participant: participantID, Err: err}
	}
	return c, nil
}

func (e *Executor) invoke(ctx context.Context, participantID string, fc core.FunctionCall) string {
	start := time.Now()
	out, err := e.tools.Invoke(ctx, fc, e.opts.ToolTimeout)
	e.log.With("participant", participantID).LogToolCall(fc.Name, time.Since(start), err)
	if err != nil {
		return err.Error()
	}
	return out
}

// ExhaustedMessage is the synthetic text emitted when a participant keeps
// requesting tools past its iteration bound.
func ExhaustedMessage(participantID string, iterations int) string {
	return fmt.Sprintf("%s stopped after %d tool iterations without a final answer.", participantID, iterations)
}
