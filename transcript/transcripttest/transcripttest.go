// Package transcripttest holds the behavior every transcript.Store must
// share, run by each backend's tests.
package transcripttest

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/testutil"
	"github.com/hupe1980/taskmesh/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a fresh store returned by newStore. The store is closed
// at the end of each subtest.
func Run(t *testing.T, newStore func(t *testing.T) transcript.Store) {
	t.Helper()
	base := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

	record := func(id, pipeline string, at time.Time) transcript.Record {
		rec := testutil.NewRecordBuilder(pipeline).
			ID(id).
			Session("sess-" + id).
			Task("restart nginx on web-1").
			Result("nginx restarted").
			Messages(testutil.NewLogBuilder().
				Say("command_generator", "systemctl restart nginx").
				Tool("command_executor", "exit code: 0").
				Build()).
			Build()
		rec.CreatedAt = at
		return rec
	}

	t.Run("save and get", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		rec := record("a", "command", base)
		rec.Degraded, rec.Reason = true, "budget_exceeded"
		require.NoError(t, s.Save(ctx, rec))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "command", got.Pipeline)
		assert.Equal(t, core.StatusTerminated, got.Status)
		assert.True(t, got.Degraded)
		assert.Equal(t, "budget_exceeded", got.Reason)
		assert.True(t, base.Equal(got.CreatedAt))
		require.Len(t, got.Messages, 2)
		assert.Equal(t, core.KindToolResult, got.Messages[1].Kind)

		_, err = s.Get(ctx, "missing")
		assert.ErrorIs(t, err, transcript.ErrNotFound)
	})

	t.Run("save assigns id", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, transcript.Record{Pipeline: "router", Task: "hi"}))
		recs, err := s.List(ctx, "router", 0)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.NotEmpty(t, recs[0].ID)
		assert.False(t, recs[0].CreatedAt.IsZero())
	})

	t.Run("replace keeps one copy", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		rec := record("a", "command", base)
		require.NoError(t, s.Save(ctx, rec))
		rec.Result = "second"
		rec.CreatedAt = base.Add(time.Minute)
		require.NoError(t, s.Save(ctx, rec))

		recs, err := s.List(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "second", recs[0].Result)
	})

	t.Run("list filters and orders", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, record("old", "tickets", base)))
		require.NoError(t, s.Save(ctx, record("mid", "router", base.Add(time.Hour))))
		require.NoError(t, s.Save(ctx, record("new", "tickets", base.Add(2*time.Hour))))

		all, err := s.List(ctx, "", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"new", "mid", "old"}, ids(all))

		tickets, err := s.List(ctx, "tickets", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"new", "old"}, ids(tickets))

		limited, err := s.List(ctx, "", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"new", "mid"}, ids(limited))
	})

	t.Run("prune", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, record("old", "report", base)))
		require.NoError(t, s.Save(ctx, record("new", "report", base.Add(48*time.Hour))))

		n, err := s.Prune(ctx, base.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		recs, err := s.List(ctx, "report", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"new"}, ids(recs))

		_, err = s.Get(ctx, "old")
		assert.ErrorIs(t, err, transcript.ErrNotFound)
	})
}

func ids(recs []transcript.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
