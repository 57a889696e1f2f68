// Package transcript persists the outcome of finished sessions: the task,
// the final answer and the full message log. Stores are append-mostly; the
// only mutation besides Save is Prune, which drops records by age.
package transcript

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
)

// ErrNotFound is returned by Get for an unknown record id.
var ErrNotFound = errors.New("transcript not found")

// Record is one finished session.
type Record struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Pipeline  string         `json:"pipeline"`
	Task      string         `json:"task"`
	Result    string         `json:"result"`
	Status    core.Status    `json:"status"`
	Degraded  bool           `json:"degraded"`
	Reason    string         `json:"reason,omitempty"`
	Messages  []core.Message `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store is implemented by every transcript backend.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	// List returns the newest records first. An empty pipeline lists all;
	// limit <= 0 means no limit.
	List(ctx context.Context, pipeline string, limit int) ([]Record, error)
	// Prune deletes records created before olderThan and reports how many.
	Prune(ctx context.Context, olderThan time.Time) (int, error)
	Close() error
}

// Normalize fills the id and timestamp of a record about to be saved.
func Normalize(rec Record) Record {
	if rec.ID == "" {
		rec.ID = util.NewID("tr-")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Messages == nil {
		rec.Messages = []core.Message{}
	}
	return rec
}
