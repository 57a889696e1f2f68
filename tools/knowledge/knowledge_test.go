package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk(t *testing.T) {
	text := "alpha one\n\nbeta two\r\n\r\ngamma three\n\n\n\ndelta"
	assert.Equal(t, []string{"alpha one\n\nbeta two", "gamma three\n\ndelta"}, Chunk(text, 20))
	assert.Equal(t, []string{"alpha one\n\nbeta two\n\ngamma three\n\ndelta"}, Chunk(text, 1000))
	assert.Empty(t, Chunk("  \n\n ", 10))
}

func TestLoadDir(t *testing.T) {
	docs, err := LoadDir("testdata/kb")
	require.NoError(t, err)

	sources := map[string]int{}
	for _, d := range docs {
		sources[d.Source]++
		assert.True(t, strings.HasPrefix(d.ID, d.Source+"#"))
	}
	if diff := cmp.Diff(map[string]int{"vpn.md": 1, "network/printers.txt": 1}, sources); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}

	small, err := LoadDir("testdata/kb", func(o *LoadOptions) { o.ChunkSize = 40 })
	require.NoError(t, err)
	assert.Greater(t, len(small), len(docs))

	_, err = LoadDir("testdata/missing")
	assert.Error(t, err)
}

var corpus = []Document{
	{ID: "vpn#0", Source: "vpn.md", Content: "To reset your VPN token open the self-service portal."},
	{ID: "vpn#1", Source: "vpn.md", Content: "VPN error 809 means UDP port 500 is blocked."},
	{ID: "print#0", Source: "printers.txt", Content: "Printers on floor 3 use the queue PRN-3F."},
}

func TestInMemoryIndex(t *testing.T) {
	idx := NewInMemoryIndex(corpus...)
	assert.Equal(t, 3, idx.Len())
	ctx := context.Background()

	res, err := idx.Search(ctx, "reset VPN token", 3, 0)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "To reset your VPN token open the self-service portal.", res[0].Content)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	assert.Greater(t, res[0].Score, res[1].Score)

	res, err = idx.Search(ctx, "reset VPN token", 3, 0.9)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	res, err = idx.Search(ctx, "vpn", 1, 0)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	res, err = idx.Search(ctx, "kubernetes", 3, 0)
	require.NoError(t, err)
	assert.Empty(t, res)

	require.NoError(t, idx.Index(ctx, Document{ID: "print#0", Source: "printers.txt", Content: "Printers moved to floor 4."}))
	assert.Equal(t, 3, idx.Len())
	res, err = idx.Search(ctx, "floor 4", 3, 0)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Contains(t, res[0].Content, "floor 4")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = idx.Search(cancelled, "vpn", 3, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBlugeIndex(t *testing.T) {
	for name, dir := range map[string]string{"memory": "", "disk": t.TempDir()} {
		t.Run(name, func(t *testing.T) {
			idx, err := OpenBlugeIndex(dir)
			require.NoError(t, err)
			defer idx.Close()
			ctx := context.Background()

			require.NoError(t, idx.Index(ctx, corpus...))

			res, err := idx.Search(ctx, "printers queue", 3, 0)
			require.NoError(t, err)
			require.NotEmpty(t, res)
			assert.Equal(t, "printers.txt", res[0].Source)
			assert.Contains(t, res[0].Content, "PRN-3F")

			res, err = idx.Search(ctx, "vpn", 1, 0)
			require.NoError(t, err)
			require.Len(t, res, 1)
			assert.Equal(t, "vpn.md", res[0].Source)

			res, err = idx.Search(ctx, "vpn", 3, 1e9)
			require.NoError(t, err)
			assert.Empty(t, res)
		})
	}
}

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, string, int, float64) ([]Result, error) {
	return nil, errors.New("index offline")
}

func TestSearchTool(t *testing.T) {
	ctx := context.Background()
	tl := NewTool(NewInMemoryIndex(corpus...))
	assert.Equal(t, ToolName, tl.Name())

	out, err := tl.Call(ctx, map[string]any{"query": "VPN token", "n_results": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, "source: vpn.md\ncontent: To reset your VPN token open the self-service portal.", out)

	out, err = tl.Call(ctx, map[string]any{"query": "vpn"})
	require.NoError(t, err)
	assert.Contains(t, out, "\n\n---\n\n")

	out, err = tl.Call(ctx, map[string]any{"query": "kubernetes"})
	require.NoError(t, err)
	assert.Equal(t, NoResultsText, out)

	_, err = tl.Call(ctx, map[string]any{})
	assert.Error(t, err)

	out, err = NewTool(failingSearcher{}).Call(ctx, map[string]any{"query": "vpn"})
	require.NoError(t, err)
	assert.Equal(t, "Knowledge base search failed: index offline", out)

	out, err = NewTool(nil).Call(ctx, map[string]any{"query": "vpn"})
	require.NoError(t, err)
	assert.Equal(t, NotConfiguredText, out)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, NoResultsText, Format(nil))
	assert.Equal(t, "source: unknown source\ncontent: x", Format([]Result{{Content: "x"}}))
}
