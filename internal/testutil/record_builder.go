package testutil

import (
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/transcript"
)

// RecordBuilder constructs transcript records with sensible defaults:
// status terminated and a creation time of now.
type RecordBuilder struct {
	rec transcript.Record
}

// NewRecordBuilder starts a record for pipeline.
func NewRecordBuilder(pipeline string) *RecordBuilder {
	return &RecordBuilder{rec: transcript.Record{
		Pipeline:  pipeline,
		Status:    core.StatusTerminated,
		CreatedAt: time.Now().UTC(),
	}}
}

// ID sets the record id (chainable).
func (b *RecordBuilder) ID(id string) *RecordBuilder { b.rec.ID = id; return b }

// Session sets the session id (chainable).
func (b *RecordBuilder) Session(id string) *RecordBuilder { b.rec.SessionID = id; return b }

// Task sets the task text (chainable).
func (b *RecordBuilder) Task(t string) *RecordBuilder { b.rec.Task = t; return b }

// Result sets the result text (chainable).
func (b *RecordBuilder) Result(r string) *RecordBuilder { b.rec.Result = r; return b }

// Status overrides the final status (chainable).
func (b *RecordBuilder) Status(s core.Status) *RecordBuilder { b.rec.Status = s; return b }

// Degraded marks the record as degraded with reason (chainable).
func (b *RecordBuilder) Degraded(reason string) *RecordBuilder {
	b.rec.Degraded = true
	b.rec.Reason = reason
	return b
}

// Age moves the creation time d into the past (chainable).
func (b *RecordBuilder) Age(d time.Duration) *RecordBuilder {
	b.rec.CreatedAt = b.rec.CreatedAt.Add(-d)
	return b
}

// Messages sets the session log (chainable).
func (b *RecordBuilder) Messages(l *core.Log) *RecordBuilder {
	b.rec.Messages = l.Messages()
	return b
}

// Build returns the record.
func (b *RecordBuilder) Build() transcript.Record { return b.rec }
