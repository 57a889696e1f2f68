package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/pipeline"
	"github.com/hupe1980/taskmesh/transcript"
)

// DefaultMaxConcurrentTasks bounds concurrent sessions when Options leave
// it unset.
const DefaultMaxConcurrentTasks = 10

var (
	// ErrUnknownPipeline is returned for a pipeline name that was never
	// registered.
	ErrUnknownPipeline = errors.New("unknown pipeline")
	// ErrUnknownSession is returned by Cancel for an id that is not running.
	ErrUnknownSession = errors.New("session not running")
	// ErrDuplicateSession is returned when a session id is already running.
	ErrDuplicateSession = errors.New("session already running")
)

// Options configure an Engine.
type Options struct {
	// MaxConcurrentTasks is the number of sessions allowed to run at once.
	// Further calls wait for a slot (or their context).
	MaxConcurrentTasks int

	// Transcripts, when set, receives every finished session.
	Transcripts transcript.Store

	// Callbacks are registered in order on construction.
	Callbacks []Callback

	Logger logging.Logger
}

// Engine runs pipelines concurrently. Each Run is an independent session:
// sessions share only the immutable pipeline definitions and the
// collaborators those were built with.
type Engine struct {
	sem         *semaphore.Weighted
	maxTasks    int
	transcripts transcript.Store
	callbacks   *CallbackManager
	log         *logging.MeshLogger

	mu        sync.RWMutex
	pipelines map[string]*pipeline.Pipeline

	activeMu sync.Mutex
	active   map[string]context.CancelFunc
}

// New creates an engine with no pipelines registered.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		MaxConcurrentTasks: DefaultMaxConcurrentTasks,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrentTasks <= 0 {
		opts.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}

	e := &Engine{
		sem:         semaphore.NewWeighted(int64(opts.MaxConcurrentTasks)),
		maxTasks:    opts.MaxConcurrentTasks,
		transcripts: opts.Transcripts,
		callbacks:   NewCallbackManager(),
		log:         logging.NewMeshLogger(logging.OrNoOp(opts.Logger)).WithComponent("engine"),
		pipelines:   make(map[string]*pipeline.Pipeline),
		active:      make(map[string]context.CancelFunc),
	}
	if opts.Transcripts != nil {
		e.callbacks.RegisterCallback(NewTranscriptCallback(opts.Transcripts))
	}
	for _, cb := range opts.Callbacks {
		e.callbacks.RegisterCallback(cb)
	}
	return e
}

// Register makes p available under p.Name(), replacing an earlier
// pipeline of the same name.
func (e *Engine) Register(p *pipeline.Pipeline) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pipelines[p.Name()] = p
}

// Pipeline looks up a registered pipeline.
func (e *Engine) Pipeline(name string) (*pipeline.Pipeline, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.pipelines[name]
	return p, ok
}

// Pipelines returns the registered names, sorted.
func (e *Engine) Pipelines() []string {
	e.mu.RLock()
	names := lo.Keys(e.pipelines)
	e.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Transcripts returns the configured transcript store, or nil.
func (e *Engine) Transcripts() transcript.Store { return e.transcripts }

// OnSession registers an additional lifecycle callback.
func (e *Engine) OnSession(cb Callback) { e.callbacks.RegisterCallback(cb) }

// MaxConcurrentTasks returns the concurrency bound.
func (e *Engine) MaxConcurrentTasks() int { return e.maxTasks }

// Run executes task on the named pipeline under a fresh session id.
func (e *Engine) Run(ctx context.Context, pipelineName, task string) (pipeline.Result, error) {
	return e.RunWithID(ctx, util.NewID("sess-"), pipelineName, task)
}

// RunWithID executes task with a caller-chosen session id. The error is
// non-nil only when the session could not start: unknown pipeline, a
// duplicate running id, ctx done while waiting for a slot, or a
// before-session callback refusing. Everything that happens inside the
// session is reported through the Result.
func (e *Engine) RunWithID(ctx context.Context, id, pipelineName, task string) (pipeline.Result, error) {
	p, ok := e.Pipeline(pipelineName)
	if !ok {
		return pipeline.Result{}, fmt.Errorf("%w: %q", ErrUnknownPipeline, pipelineName)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return pipeline.Result{}, &core.CancellationError{Err: err}
	}
	defer e.sem.Release(1)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := e.track(id, cancel); err != nil {
		return pipeline.Result{}, err
	}
	defer e.untrack(id)

	cc := &CallbackContext{SessionID: id, Pipeline: pipelineName, Task: task}
	if err := e.callbacks.ExecuteCallbacks(runCtx, CallbackBeforeSession, cc); err != nil {
		return pipeline.Result{}, fmt.Errorf("before session %s: %w", id, err)
	}

	log := e.log.WithSession(pipelineName, id)
	log.Debug("engine.session.start")
	start := time.Now()

	res := p.RunWithID(runCtx, id, task)

	log.Info("engine.session.done",
		"status", res.Status.String(),
		"degraded", res.Degraded,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	cc.Result = &res
	if err := e.callbacks.ExecuteCallbacks(runCtx, CallbackAfterSession, cc); err != nil {
		log.Warn("engine.callback.failed", "error", err)
	}
	return res, nil
}

// Cancel stops a running session. The session finishes with status
// cancelled and its Run call returns.
func (e *Engine) Cancel(id string) error {
	e.activeMu.Lock()
	cancel, ok := e.active[id]
	e.activeMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	cancel()
	return nil
}

// Active returns the ids of running sessions, sorted.
func (e *Engine) Active() []string {
	e.activeMu.Lock()
	ids := lo.Keys(e.active)
	e.activeMu.Unlock()
	slices.Sort(ids)
	return ids
}

func (e *Engine) track(id string, cancel context.CancelFunc) error {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	if _, dup := e.active[id]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}
	e.active[id] = cancel
	return nil
}

func (e *Engine) untrack(id string) {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	delete(e.active, id)
}

// Job is one entry of a batch.
type Job struct {
	// ID is optional; an empty id gets a generated one.
	ID       string `json:"id,omitempty"`
	Pipeline string `json:"pipeline" validate:"required"`
	Task     string `json:"task" validate:"required"`
}

// RunBatch runs jobs concurrently (still bounded by MaxConcurrentTasks)
// and returns results in job order. Pipeline names are checked before any
// job starts. A job that cannot start leaves a zero Result at its index;
// the first such error is returned after every job has finished.
func (e *Engine) RunBatch(ctx context.Context, jobs []Job) ([]pipeline.Result, error) {
	for i, job := range jobs {
		if _, ok := e.Pipeline(job.Pipeline); !ok {
			return nil, fmt.Errorf("job %d: %w: %q", i, ErrUnknownPipeline, job.Pipeline)
		}
	}

	results := make([]pipeline.Result, len(jobs))
	var g errgroup.Group

	for i, job := range jobs {
		g.Go(func() error {
			id := job.ID
			if id == "" {
				id = util.NewID("sess-")
			}
			res, err := e.RunWithID(ctx, id, job.Pipeline, job.Task)
			if err != nil {
				return fmt.Errorf("job %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	err := g.Wait()
	return results, err
}
