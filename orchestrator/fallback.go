package orchestrator

import (
	"context"
	"strings"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/participant"
)

// DefaultApology is returned when even the generalist cannot answer.
const DefaultApology = "Sorry, I could not process your request right now. Please try again later."

// FallbackOptions configure a Fallback.
type FallbackOptions struct {
	Apology string
	Logger  logging.Logger
}

// Fallback answers a task with a single non-collaborative call to a
// generalist participant when the orchestrated session did not produce a
// usable result.
type Fallback struct {
	executor   *participant.Executor
	generalist core.ParticipantSpec
	opts       FallbackOptions
	log        *logging.MeshLogger
}

// NewFallback creates a fallback controller around a generalist spec.
func NewFallback(executor *participant.Executor, generalist core.ParticipantSpec, optFns ...func(o *FallbackOptions)) *Fallback {
	opts := FallbackOptions{Apology: DefaultApology}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Fallback{
		executor:   executor,
		generalist: generalist,
		opts:       opts,
		log:        logging.NewMeshLogger(opts.Logger).WithComponent("fallback"),
	}
}

// Apology returns the fixed last-resort text.
func (f *Fallback) Apology() string { return f.opts.Apology }

// Degrade asks the generalist to answer task directly. The returned text is
// always usable: if the generalist fails or answers with nothing, it is the
// apology and err reports why.
func (f *Fallback) Degrade(ctx context.Context, task string) (string, error) {
	f.log.Info("fallback.degrade", "participant", f.generalist.ID)

	var answer string
	err := f.executor.Execute(ctx, f.generalist, task, core.NewLog(), func(m core.Message) bool {
		if m.Kind == core.KindText {
			answer = m.Content
		}
		return false
	})
	if err != nil {
		f.log.Warn("fallback.failed", "participant", f.generalist.ID, "error", err.Error())
		return f.opts.Apology, err
	}

	if strings.TrimSpace(answer) == "" {
		return f.opts.Apology, nil
	}
	return answer, nil
}
