// Package orchestrator runs a session: it asks the turn policy for the next
// speaker, lets the participant executor produce messages, and evaluates
// termination and the turn budget after every appended message.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/participant"
	"github.com/hupe1980/taskmesh/termination"
	"github.com/hupe1980/taskmesh/turn"
)

// DefaultMaxTurns bounds a session when no budget is configured.
const DefaultMaxTurns = 50

// Options configure an Orchestrator.
type Options struct {
	// MaxTurns is the hard message budget. Values <= 0 use DefaultMaxTurns.
	MaxTurns int
	// Pipeline names the pipeline in log lines.
	Pipeline string
	Logger   logging.Logger
}

// Orchestrator owns one session at a time. Build one per concurrent run;
// the registry, executor and condition are safe to share between them.
type Orchestrator struct {
	registry  *core.Registry
	policy    turn.Policy
	executor  *participant.Executor
	condition termination.Condition
	opts      Options
	log       *logging.MeshLogger

	mu      sync.Mutex
	current *Session
}

// New creates an orchestrator.
func New(registry *core.Registry, policy turn.Policy, executor *participant.Executor, condition termination.Condition, optFns ...func(o *Options)) (*Orchestrator, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, core.ErrEmptyRegistry
	}
	if policy == nil || executor == nil || condition == nil {
		return nil, errors.New("orchestrator: policy, executor and termination condition are required")
	}

	opts := Options{MaxTurns: DefaultMaxTurns}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}

	return &Orchestrator{
		registry:  registry,
		policy:    policy,
		executor:  executor,
		condition: condition,
		opts:      opts,
		log:       logging.NewMeshLogger(opts.Logger).WithComponent("orchestrator"),
	}, nil
}

// Current returns the most recent session, or nil before the first Run.
func (o *Orchestrator) Current() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Reset clears the current transcript, turn count and policy state. Run
// starts every session with fresh state, so Reset is only needed to drop a
// finished session explicitly.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		o.current.Log.Reset()
		o.current.budget.Reset()
	}
	o.current = nil
	o.policy.Reset()
}

// Run executes a session for task until a termination condition is met,
// the budget is exhausted, ctx is cancelled or a participant fails. The
// returned session is always in a terminal status; Run never returns nil.
func (o *Orchestrator) Run(ctx context.Context, task string) *Session {
	return o.RunWithID(ctx, util.NewID("sess-"), task)
}

// RunWithID is Run with a caller-chosen session id.
func (o *Orchestrator) RunWithID(ctx context.Context, id, task string) *Session {
	sess := newSession(id, task, o.opts.MaxTurns)
	o.mu.Lock()
	o.policy.Reset()
	o.current = sess
	o.mu.Unlock()

	log := o.log.WithSession(o.opts.Pipeline, sess.ID)
	log.Info("session.start", "participants", o.registry.Len(), "max_turns", o.opts.MaxTurns)

	condition := termination.Any(o.condition, termination.External(ctx))

	emit := func(m core.Message) bool {
		if sess.Status().Terminal() {
			return true
		}
		if !sess.append(m) {
			sess.finish(core.StatusBudgetExceeded, termination.Verdict{Met: true, Reason: termination.ReasonBudget}, &core.BudgetExceededError{MaxTurns: sess.MaxTurns()})
			return true
		}
		log.Debug("session.message", "speaker", m.Speaker, "kind", m.Kind.String(), "turn", sess.TurnCount())

		if v := condition.Check(sess.Log); v.Met {
			sess.finish(v.Reason.Status(), v, verdictError(v, sess))
			return true
		}
		if sess.budget.Exhausted() {
			sess.finish(core.StatusBudgetExceeded, termination.Verdict{Met: true, Reason: termination.ReasonBudget}, &core.BudgetExceededError{MaxTurns: sess.MaxTurns()})
			return true
		}
		return false
	}

	for !sess.Status().Terminal() {
		if err := ctx.Err(); err != nil {
			sess.finish(core.StatusCancelled, termination.Verdict{Met: true, Reason: termination.ReasonCancelled}, &core.CancellationError{Err: err})
			break
		}

		id, err := o.policy.Next(ctx, task, sess.Log)
		if err != nil {
			o.fail(sess, err)
			break
		}
		spec, ok := o.registry.Get(id)
		if !ok {
			o.fail(sess, fmt.Errorf("%w: %q", core.ErrUnknownParticipant, id))
			break
		}
		log.Debug("turn.selected", "participant", id, "turn", sess.TurnCount())

		if err := o.executor.Execute(ctx, spec, task, sess.Log, emit); err != nil {
			o.fail(sess, err)
		}
	}

	log.LogSession(sess.Status().String(), sess.Log.Len(), sess.Duration(), sess.Err())
	return sess
}

func (o *Orchestrator) fail(sess *Session, err error) {
	var ce *core.CancellationError
	if errors.As(err, &ce) {
		sess.finish(core.StatusCancelled, termination.Verdict{Met: true, Reason: termination.ReasonCancelled}, err)
		return
	}
	sess.finish(core.StatusFailed, termination.Verdict{}, err)
}

func verdictError(v termination.Verdict, sess *Session) error {
	switch v.Reason {
	case termination.ReasonBudget:
		return &core.BudgetExceededError{MaxTurns: sess.Log.Len()}
	case termination.ReasonCancelled:
		return &core.CancellationError{Err: context.Canceled}
	default:
		return nil
	}
}
