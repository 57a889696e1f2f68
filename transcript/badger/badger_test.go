package badger

import (
	"context"
	"testing"

	"github.com/hupe1980/taskmesh/transcript"
	"github.com/hupe1980/taskmesh/transcript/transcripttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	transcripttest.Run(t, func(t *testing.T) transcript.Store {
		s, err := Open(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestInMemoryStore(t *testing.T) {
	transcripttest.Run(t, func(t *testing.T) transcript.Store {
		s, err := Open("")
		require.NoError(t, err)
		return s
	})
}

func TestPipelineWithColonRejected(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	err = s.Save(context.Background(), transcript.Record{Pipeline: "a:b"})
	assert.Error(t, err)
}
