package transcript_test

import (
	"context"
	"testing"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/transcript"
	"github.com/hupe1980/taskmesh/transcript/transcripttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore(t *testing.T) {
	transcripttest.Run(t, func(t *testing.T) transcript.Store {
		return transcript.NewInMemoryStore()
	})
}

func TestInMemoryStoreReturnsCopies(t *testing.T) {
	s := transcript.NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, transcript.Record{
		ID:       "a",
		Messages: []core.Message{{Speaker: "x", Content: "original"}},
	}))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	got.Messages[0].Content = "mutated"

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "original", again.Messages[0].Content)
}
