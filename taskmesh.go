// Package taskmesh wires a loaded configuration into a running system:
// model bindings, the tool registry (knowledge search, remote commands,
// ticket creation, weather), the transcript store and an engine with every
// configured pipeline registered. Most applications interact with this
// package by:
//  1. Loading a config.Config via config.Load
//  2. Creating a TaskMesh via New (optionally overriding collaborators)
//  3. Running tasks through Run or the Engine directly
//
// Transports (the HTTP server and the CLI) only ever talk to a TaskMesh.
package taskmesh

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/taskmesh/config"
	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/model/anthropic"
	"github.com/hupe1980/taskmesh/model/gemini"
	"github.com/hupe1980/taskmesh/model/openai"
	"github.com/hupe1980/taskmesh/pipeline"
	"github.com/hupe1980/taskmesh/tool"
	"github.com/hupe1980/taskmesh/tools/jira"
	"github.com/hupe1980/taskmesh/tools/knowledge"
	"github.com/hupe1980/taskmesh/tools/ssh"
	"github.com/hupe1980/taskmesh/tools/weather"
	"github.com/hupe1980/taskmesh/transcript"
	"github.com/hupe1980/taskmesh/transcript/badger"
	"github.com/hupe1980/taskmesh/transcript/sqlite"
)

// Options override collaborators that New would otherwise build from the
// configuration. Tests use them to run against doubles.
type Options struct {
	Logger logging.Logger
	// Model replaces the default binding; Models replaces named bindings.
	Model  model.Model
	Models map[string]model.Model

	Transcripts transcript.Store
	Knowledge   knowledge.Index
	Runner      ssh.Runner
	Creator     jira.Creator
	Forecaster  weather.Forecaster

	// ExtraTools are registered next to the built-in tools.
	ExtraTools []tool.Tool
	// Pipelines are registered after presets and pipeline files.
	Pipelines []pipeline.Config
}

// TaskMesh is the assembled system.
type TaskMesh struct {
	cfg       *config.Config
	engine    *engine.Engine
	logger    logging.Logger
	knowledge knowledge.Index
	creator   jira.Creator
	closers   []func() error
}

// New builds every collaborator from cfg. On error everything opened so
// far is closed again.
func New(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (_ *TaskMesh, err error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	m := &TaskMesh{cfg: cfg}
	defer func() {
		if err != nil {
			_ = m.Close()
		}
	}()

	m.logger = opts.Logger
	if m.logger == nil {
		logger, closeLog, lerr := logging.New(cfg.Log)
		if lerr != nil {
			return nil, fmt.Errorf("logging: %w", lerr)
		}
		m.logger = logger
		m.closers = append(m.closers, closeLog)
	}

	deps, err := m.buildDeps(ctx, opts)
	if err != nil {
		return nil, err
	}

	store := opts.Transcripts
	if store == nil {
		if store, err = OpenTranscripts(cfg.Transcript); err != nil {
			return nil, err
		}
		if store != nil {
			m.closers = append(m.closers, store.Close)
		}
	}

	m.engine = engine.New(func(o *engine.Options) {
		o.MaxConcurrentTasks = cfg.Engine.MaxConcurrentTasks
		o.Transcripts = store
		o.Logger = m.logger
	})

	defs, err := m.pipelineConfigs(opts.Pipelines)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		p, perr := pipeline.New(def, deps)
		if perr != nil {
			return nil, perr
		}
		m.engine.Register(p)
	}
	m.logger.Info("taskmesh.ready", "pipelines", m.engine.Pipelines(), "max_concurrent_tasks", m.engine.MaxConcurrentTasks())
	return m, nil
}

func (m *TaskMesh) buildDeps(ctx context.Context, opts Options) (pipeline.Deps, error) {
	deps := pipeline.Deps{
		Model:        opts.Model,
		Models:       opts.Models,
		Logger:       m.logger,
		ModelTimeout: m.cfg.Engine.ModelTimeout,
		ToolTimeout:  m.cfg.Engine.ToolTimeout,
	}

	if deps.Model == nil {
		mdl, err := NewModel(ctx, m.cfg.Model)
		if err != nil {
			return deps, err
		}
		deps.Model = mdl
	}
	if deps.Models == nil {
		deps.Models = make(map[string]model.Model, len(m.cfg.Models))
		for name, mc := range m.cfg.Models {
			mdl, err := NewModel(ctx, mc)
			if err != nil {
				return deps, fmt.Errorf("model %q: %w", name, err)
			}
			deps.Models[name] = mdl
		}
	}
	if m.cfg.SelectorModel != "" {
		deps.SelectorModel = deps.Models[m.cfg.SelectorModel]
	}

	tools, err := m.buildTools(ctx, opts)
	if err != nil {
		return deps, err
	}
	deps.Tools = tools
	return deps, nil
}

func (m *TaskMesh) buildTools(ctx context.Context, opts Options) (*tool.Registry, error) {
	m.knowledge = opts.Knowledge
	if m.knowledge == nil {
		idx, closeIdx, err := OpenKnowledge(ctx, m.cfg.Knowledge)
		if err != nil {
			return nil, err
		}
		if closeIdx != nil {
			m.closers = append(m.closers, closeIdx)
		}
		m.knowledge = idx
	}

	runner := opts.Runner
	if runner == nil && m.cfg.SSH.Host != "" {
		c, err := ssh.NewClient(m.cfg.SSH)
		if err != nil {
			return nil, err
		}
		runner = c
	}

	m.creator = opts.Creator
	if m.creator == nil && m.cfg.Jira.BaseURL != "" {
		c, err := jira.NewClient(m.cfg.Jira, nil)
		if err != nil {
			return nil, err
		}
		m.creator = c
	}

	forecaster := opts.Forecaster
	if forecaster == nil && m.cfg.Weather.APIKey != "" {
		c, err := weather.NewClient(m.cfg.Weather, nil)
		if err != nil {
			return nil, err
		}
		forecaster = c
	}

	var searcher knowledge.Searcher
	if m.knowledge != nil {
		searcher = m.knowledge
	}
	builtin := []tool.Tool{
		knowledge.NewTool(searcher, func(o *knowledge.ToolOptions) {
			o.DefaultResults = m.cfg.Knowledge.DefaultResults
			o.Threshold = m.cfg.Knowledge.Threshold
			o.Logger = m.logger
		}),
		ssh.NewTool(runner, func(o *ssh.ToolOptions) { o.Logger = m.logger }),
		jira.NewTool(m.creator, m.logger),
		weather.NewTool(forecaster, m.logger),
	}
	return tool.NewRegistry(append(builtin, opts.ExtraTools...)...)
}

func (m *TaskMesh) pipelineConfigs(extra []pipeline.Config) ([]pipeline.Config, error) {
	defs := map[string]pipeline.Config{}
	if m.cfg.Pipelines.Presets {
		defs = pipeline.Presets()
	}
	for _, f := range m.cfg.Pipelines.Files {
		cfgs, err := pipeline.LoadFile(f)
		if err != nil {
			return nil, err
		}
		defs = pipeline.Merge(defs, cfgs...)
	}
	defs = pipeline.Merge(defs, extra...)
	if len(defs) == 0 {
		return nil, errors.New("no pipelines configured")
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]pipeline.Config, 0, len(names))
	for _, name := range names {
		out = append(out, defs[name])
	}
	return out, nil
}

// Engine returns the session engine.
func (m *TaskMesh) Engine() *engine.Engine { return m.engine }

// Logger returns the process logger.
func (m *TaskMesh) Logger() logging.Logger { return m.logger }

// Config returns the configuration the mesh was built from.
func (m *TaskMesh) Config() *config.Config { return m.cfg }

// Knowledge returns the knowledge index, or nil when search is disabled.
func (m *TaskMesh) Knowledge() knowledge.Index { return m.knowledge }

// Run executes task on the named pipeline.
func (m *TaskMesh) Run(ctx context.Context, pipelineName, task string) (pipeline.Result, error) {
	return m.engine.Run(ctx, pipelineName, task)
}

// ErrNoTracker is returned by CreateTickets without a configured tracker.
var ErrNoTracker = errors.New("ticket tracker is not configured")

// CreateTickets files the records of a tickets pipeline result in the
// tracker and returns one outcome per record.
func (m *TaskMesh) CreateTickets(ctx context.Context, res pipeline.Result) ([]jira.Outcome, error) {
	if m.creator == nil {
		return nil, ErrNoTracker
	}
	tickets := jira.TicketsFromRecords(res.Records)
	outcomes := jira.BulkCreate(ctx, m.creator, tickets, m.cfg.Jira.Concurrency)
	m.logger.Info("taskmesh.tickets.created", "session_id", res.SessionID, "tickets", len(tickets))
	return outcomes, nil
}

// PruneTranscripts drops records older than the configured retention.
func (m *TaskMesh) PruneTranscripts(ctx context.Context) (int, error) {
	store := m.engine.Transcripts()
	if store == nil || m.cfg.Transcript.Retention <= 0 {
		return 0, nil
	}
	n, err := store.Prune(ctx, time.Now().Add(-m.cfg.Transcript.Retention))
	if err != nil {
		return 0, err
	}
	m.logger.Info("transcript.prune.done", "removed", n, "retention", m.cfg.Transcript.Retention.String())
	return n, nil
}

// Close releases stores, indexes and the log output in reverse order of
// creation.
func (m *TaskMesh) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}

// NewModel binds a provider model from mc.
func NewModel(ctx context.Context, mc config.ModelConfig) (model.Model, error) {
	switch mc.Provider {
	case "", "openai":
		return openai.NewModel(func(o *openai.Options) {
			o.Model = mc.Model
			o.BaseURL = mc.BaseURL
			o.APIKey = mc.APIKey
			o.Temperature = mc.Temperature
			if mc.MaxTokens > 0 {
				o.MaxCompletionTokens = mc.MaxTokens
			}
			if mc.MaxRetries > 0 {
				o.MaxRetries = mc.MaxRetries
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(mc.Model)
			o.APIKey = mc.APIKey
			// The DashScope default only applies to OpenAI-compatible bindings.
			if mc.BaseURL != config.DefaultBaseURL {
				o.BaseURL = mc.BaseURL
			}
			if mc.MaxRetries > 0 {
				o.MaxRetries = mc.MaxRetries
			}
			o.Temperature = mc.Temperature
			if mc.MaxTokens > 0 {
				o.MaxTokens = mc.MaxTokens
			}
		}), nil
	case "gemini":
		return gemini.NewModel(ctx, func(o *gemini.Options) {
			o.Model = mc.Model
			o.APIKey = mc.APIKey
			o.Temperature = float32(mc.Temperature)
			if mc.MaxTokens > 0 {
				o.MaxOutputTokens = int32(min(mc.MaxTokens, 1<<31-1))
			}
		})
	default:
		return nil, fmt.Errorf("unknown model provider %q", mc.Provider)
	}
}

// OpenTranscripts opens the configured transcript store. The "none"
// driver returns a nil store.
func OpenTranscripts(tc config.TranscriptConfig) (transcript.Store, error) {
	switch tc.Driver {
	case "none":
		return nil, nil
	case "", "memory":
		return transcript.NewInMemoryStore(), nil
	case "sqlite":
		return sqlite.New(tc.Path)
	case "badger":
		return badger.Open(tc.Path)
	default:
		return nil, fmt.Errorf("unknown transcript driver %q", tc.Driver)
	}
}

// OpenKnowledge opens the configured knowledge index and loads kc.Dir
// into it. The returned close function may be nil.
func OpenKnowledge(ctx context.Context, kc config.KnowledgeConfig) (knowledge.Index, func() error, error) {
	var (
		idx     knowledge.Index
		closeFn func() error
	)
	switch kc.Backend {
	case "none":
		return nil, nil, nil
	case "", "memory":
		idx = knowledge.NewInMemoryIndex()
	case "bluge":
		b, err := knowledge.OpenBlugeIndex(kc.IndexPath)
		if err != nil {
			return nil, nil, err
		}
		idx, closeFn = b, b.Close
	default:
		return nil, nil, fmt.Errorf("unknown knowledge backend %q", kc.Backend)
	}

	if kc.Dir != "" {
		docs, err := knowledge.LoadDir(kc.Dir, func(o *knowledge.LoadOptions) {
			if kc.ChunkSize > 0 {
				o.ChunkSize = kc.ChunkSize
			}
		})
		if err == nil {
			err = idx.Index(ctx, docs...)
		}
		if err != nil {
			if closeFn != nil {
				_ = closeFn()
			}
			return nil, nil, fmt.Errorf("load knowledge: %w", err)
		}
	}
	return idx, closeFn, nil
}
