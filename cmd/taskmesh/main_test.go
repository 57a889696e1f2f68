package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "taskmesh.yaml")
	cfg := `
log:
  level: error
transcript:
  driver: sqlite
  path: ` + filepath.Join(dir, "transcripts.db") + `
knowledge:
  backend: bluge
  index_path: ` + filepath.Join(dir, "index") + `
`
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPipelinesCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "--config", cfgPath, "pipelines")
	require.NoError(t, err)
	for _, name := range []string{"router", "tickets", "command", "report"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "selector")
	assert.Contains(t, out, "server_admin [execute_command]")
}

func TestKnowledgeIndexAndSearch(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	kb := filepath.Join("..", "..", "tools", "knowledge", "testdata", "kb")

	out, err := execute(t, "--config", cfgPath, "knowledge", "index", kb)
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 2 chunks")

	out, err = execute(t, "--config", cfgPath, "knowledge", "search", "printers", "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "source: network/printers.txt")
}

func TestTranscriptsCommands(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "--config", cfgPath, "transcripts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "PIPELINE")

	out, err = execute(t, "--config", cfgPath, "transcripts", "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 0 records")
}

func TestRunRejectsEmptyTask(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	_, err := execute(t, "--config", cfgPath, "run", "   ")
	assert.Error(t, err)
}
