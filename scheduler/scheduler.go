// Package scheduler runs recurring jobs, such as scheduled pipeline tasks
// and transcript pruning, on cron specs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"

	"github.com/hupe1980/taskmesh/logging"
)

// ErrDuplicateJob is returned when a job name is registered twice.
var ErrDuplicateJob = errors.New("job already scheduled")

// Job is one recurring unit of work.
type Job struct {
	Name string
	// Spec is a standard five field cron expression or a descriptor such
	// as "@daily" or "@every 1h".
	Spec string
	Run  func(ctx context.Context) error
}

// Options tune a Scheduler.
type Options struct {
	Location *time.Location
	// JobTimeout bounds a single run; zero means no bound.
	JobTimeout time.Duration
	Logger     logging.Logger
}

// Scheduler wraps a cron runner. Runs of the same job never overlap: a
// tick that arrives while the previous run is still busy is skipped.
type Scheduler struct {
	cron   *cron.Cron
	opts   Options
	log    *logging.MeshLogger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a stopped scheduler.
func New(optFns ...func(o *Options)) *Scheduler {
	opts := Options{
		Location: time.Local,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	log := logging.NewMeshLogger(logging.OrNoOp(opts.Logger)).WithComponent("scheduler")
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		opts:    opts,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers job. It may be called before or after Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("scheduler: job needs a name and a run function")
	}
	sched, err := cron.ParseStandard(job.Spec)
	if err != nil {
		return fmt.Errorf("scheduler: job %q: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[job.Name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}
	s.entries[job.Name] = s.cron.Schedule(sched, cron.FuncJob(func() { s.execute(job) }))
	s.log.Info("scheduler.job.added", "job", job.Name, "spec", job.Spec)
	return nil
}

func (s *Scheduler) execute(job Job) {
	ctx := s.ctx
	if s.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	s.log.Info("scheduler.job.start", "job", job.Name)
	if err := job.Run(ctx); err != nil {
		s.log.Error("scheduler.job.failed", "job", job.Name, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	s.log.Info("scheduler.job.done", "job", job.Name, "duration_ms", time.Since(start).Milliseconds())
}

// Names returns the registered job names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	names := lo.Keys(s.entries)
	s.mu.Unlock()
	slices.Sort(names)
	return names
}

// Next returns the next activation of the named job. It is zero before
// Start.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new runs, cancels the context of running ones and waits
// for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger feeds cron's own diagnostics into the process logger.
type cronLogger struct {
	log *logging.MeshLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("scheduler.cron."+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("scheduler.cron."+msg, append(keysAndValues, "error", err)...)
}
