package orchestrator

import (
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/termination"
)

// Session is one bounded conversation. The task text is kept beside the
// log; the log holds participant messages only, so TurnCount always equals
// Log.Len().
type Session struct {
	ID        string
	Task      string
	Log       *core.Log
	StartedAt time.Time

	mu         sync.RWMutex
	status     core.Status
	err        error
	verdict    termination.Verdict
	finishedAt time.Time
	budget     *core.TurnBudget
}

func newSession(id, task string, maxTurns int) *Session {
	return &Session{
		ID:        id,
		Task:      task,
		Log:       core.NewLog(),
		StartedAt: time.Now(),
		status:    core.StatusRunning,
		budget:    core.NewTurnBudget(maxTurns),
	}
}

// Status returns the current status.
func (s *Session) Status() core.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Verdict returns the termination verdict that ended the session.
func (s *Session) Verdict() termination.Verdict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verdict
}

// TurnCount is the number of messages appended so far.
func (s *Session) TurnCount() int { return s.budget.Count() }

// MaxTurns is the session's message budget.
func (s *Session) MaxTurns() int { return s.budget.Max() }

// Duration is the wall time from start to finish (or now while running).
func (s *Session) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.finishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.finishedAt.Sub(s.StartedAt)
}

// finish moves the session to a terminal status. Terminal states are
// absorbing: the first call wins.
func (s *Session) finish(status core.Status, v termination.Verdict, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.CanTransition(status) {
		return false
	}
	s.status = status
	s.verdict = v
	s.err = err
	s.finishedAt = time.Now()
	return true
}

func (s *Session) append(m core.Message) bool {
	if !s.budget.Take() {
		return false
	}
	s.Log.Append(m.Speaker, m.Content, m.Kind)
	return true
}
