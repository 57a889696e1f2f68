// Package pipeline turns a declarative Config into a runnable pipeline and
// implements the single entry point used by transports: Run a task through
// an orchestrated session, extract the result and degrade to a generalist
// answer when anything goes wrong.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/extract"
	"github.com/hupe1980/taskmesh/internal/util"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/orchestrator"
	"github.com/hupe1980/taskmesh/participant"
	"github.com/hupe1980/taskmesh/termination"
	"github.com/hupe1980/taskmesh/tool"
	"github.com/hupe1980/taskmesh/turn"
)

// Deps are the collaborators a pipeline runs against. They are built once
// per process and shared by every pipeline.
type Deps struct {
	Model model.Model
	// SelectorModel drives dynamic selection; nil uses Model.
	SelectorModel model.Model
	// Models are alternative bindings referenced by ParticipantSpec.Model.
	Models map[string]model.Model
	Tools  *tool.Registry
	Logger logging.Logger

	ModelTimeout time.Duration
	ToolTimeout  time.Duration
}

// Result is what a caller of Run receives.
type Result struct {
	SessionID  string           `json:"session_id"`
	Pipeline   string           `json:"pipeline"`
	ResultText string           `json:"result_text"`
	Structured any              `json:"structured,omitempty"`
	Records    []map[string]any `json:"records,omitempty"`
	Status     core.Status      `json:"status"`
	Degraded   bool             `json:"degraded"`
	// Reason explains a degraded or empty result.
	Reason   string         `json:"reason,omitempty"`
	Messages []core.Message `json:"messages,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Pipeline is a validated Config bound to its dependencies. Run may be
// called concurrently; every call gets its own session and policy state.
type Pipeline struct {
	cfg       Config
	registry  *core.Registry
	condition termination.AnyOf
	executor  *participant.Executor
	fallback  *orchestrator.Fallback
	deps      Deps
	log       *logging.MeshLogger
}

// New validates cfg against deps and builds a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Model == nil {
		return nil, fmt.Errorf("pipeline %q: model is required", cfg.Name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Tools == nil {
		deps.Tools, _ = tool.NewRegistry()
	}

	registry, err := core.NewRegistry(cfg.Participants...)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", cfg.Name, err)
	}
	for _, p := range cfg.Participants {
		if _, err := deps.Tools.Definitions(p.Tools); err != nil {
			return nil, fmt.Errorf("pipeline %q: participant %s: %w", cfg.Name, p.ID, err)
		}
	}
	if cfg.TurnPolicy.Kind == PolicySelector && !registry.Has(cfg.TurnPolicy.Default) {
		return nil, fmt.Errorf("pipeline %q: %w: %q", cfg.Name, core.ErrNoDefaultParticipant, cfg.TurnPolicy.Default)
	}

	condition, err := cfg.Termination.Build()
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", cfg.Name, err)
	}

	executor := participant.NewExecutor(deps.Model, deps.Tools, func(o *participant.Options) {
		if deps.ModelTimeout > 0 {
			o.ModelTimeout = deps.ModelTimeout
		}
		if deps.ToolTimeout > 0 {
			o.ToolTimeout = deps.ToolTimeout
		}
		o.Models = deps.Models
		o.Logger = deps.Logger
	})

	fallback := orchestrator.NewFallback(executor, cfg.generalist(), func(o *orchestrator.FallbackOptions) {
		if cfg.Apology != "" {
			o.Apology = cfg.Apology
		}
		o.Logger = deps.Logger
	})

	return &Pipeline{
		cfg:       cfg,
		registry:  registry,
		condition: condition,
		executor:  executor,
		fallback:  fallback,
		deps:      deps,
		log:       logging.NewMeshLogger(deps.Logger).WithComponent("pipeline").With("pipeline", cfg.Name),
	}, nil
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.cfg.Name }

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

func (p *Pipeline) policy() (turn.Policy, error) {
	if p.cfg.TurnPolicy.Kind == PolicySelector {
		m := p.deps.SelectorModel
		if m == nil {
			m = p.deps.Model
		}
		return turn.NewSelector(p.registry, m, p.cfg.TurnPolicy.Default, func(o *turn.SelectorOptions) {
			o.AllowRepeat = p.cfg.TurnPolicy.allowRepeat()
			if p.cfg.TurnPolicy.Window > 0 {
				o.Window = p.cfg.TurnPolicy.Window
			}
			if p.deps.ModelTimeout > 0 {
				o.Timeout = p.deps.ModelTimeout
			}
			o.Logger = p.deps.Logger
		})
	}
	return turn.NewRoundRobin(p.registry, func(o *turn.RoundRobinOptions) {
		o.AllowRepeat = p.cfg.TurnPolicy.allowRepeat()
	}), nil
}

// Run executes task and never fails: the worst outcome is the apology text.
// A cancelled session returns no result text.
func (p *Pipeline) Run(ctx context.Context, task string) Result {
	return p.RunWithID(ctx, util.NewID("sess-"), task)
}

// RunWithID is Run with a caller-chosen session id.
func (p *Pipeline) RunWithID(ctx context.Context, id, task string) (res Result) {
	start := time.Now()
	res = Result{SessionID: id, Pipeline: p.cfg.Name, Status: core.StatusFailed}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pipeline.panic", "session_id", id, "recover", fmt.Sprint(r))
			res.Status = core.StatusFailed
			res.ResultText = p.fallback.Apology()
			res.Degraded = true
			res.Reason = fmt.Sprintf("panic: %v", r)
		}
		res.Duration = time.Since(start)
	}()

	policy, err := p.policy()
	if err != nil {
		return p.degrade(ctx, task, res, err.Error())
	}
	orch, err := orchestrator.New(p.registry, policy, p.executor, p.condition, func(o *orchestrator.Options) {
		o.MaxTurns = p.cfg.MaxTurns
		o.Pipeline = p.cfg.Name
		o.Logger = p.deps.Logger
	})
	if err != nil {
		return p.degrade(ctx, task, res, err.Error())
	}

	sess := orch.RunWithID(ctx, id, task)
	res.Status = sess.Status()
	res.Messages = sess.Log.Messages()

	switch sess.Status() {
	case core.StatusCancelled:
		res.Reason = "cancelled"
		return res
	case core.StatusTerminated:
		r := p.cfg.Extraction.Extract(sess.Log)
		if !r.Valid && p.cfg.EmptyResultText != "" && r.Err != nil && r.Err.Reason == "empty payload" {
			res.ResultText = p.cfg.EmptyResultText
			return res
		}
		if r.Valid {
			if !p.cfg.Extraction.Structured && p.cfg.EmptyResultText != "" && isNone(r.Text) {
				r.Text = p.cfg.EmptyResultText
			}
			res.ResultText = r.Text
			res.Structured = r.Payload
			res.Records = r.Records
			return res
		}
		return p.degrade(ctx, task, res, r.Reason)
	default:
		reason := res.Status.String()
		if err := sess.Err(); err != nil {
			reason = err.Error()
		}
		return p.degrade(ctx, task, res, reason)
	}
}

func (p *Pipeline) degrade(ctx context.Context, task string, res Result, reason string) Result {
	p.log.Warn("pipeline.degraded", "session_id", res.SessionID, "status", res.Status.String(), "reason", reason)

	text, err := p.fallback.Degrade(ctx, task)
	if err == nil {
		// Only the termination token is removed; fences and layout stay.
		text = extract.Extractor{Sentinel: p.cfg.Extraction.Sentinel}.Strip(text)
		if text == "" {
			text = p.fallback.Apology()
		}
	}

	res.ResultText = text
	res.Degraded = true
	res.Reason = reason
	return res
}

// Run is the one-shot form: it builds a pipeline from cfg and deps and runs
// task. Configuration errors are reported as a degraded apology result.
func Run(ctx context.Context, task string, cfg Config, deps Deps) Result {
	p, err := New(cfg, deps)
	if err != nil {
		apology := cfg.Apology
		if apology == "" {
			apology = orchestrator.DefaultApology
		}
		return Result{
			SessionID:  util.NewID("sess-"),
			Pipeline:   cfg.Name,
			ResultText: apology,
			Status:     core.StatusFailed,
			Degraded:   true,
			Reason:     err.Error(),
		}
	}
	return p.Run(ctx, task)
}

// Extractor exposes the configured extractor, for callers that re-extract
// from stored transcripts.
func (p *Pipeline) Extractor() extract.Extractor { return p.cfg.Extraction }
