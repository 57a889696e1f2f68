package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFiles(o *Options) { o.EnvFiles = nil }

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DASHSCOPE_API_KEY", "ds-key")

	cfg, err := Load("", noEnvFiles)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, DefaultModel, cfg.Model.Model)
	assert.Equal(t, DefaultBaseURL, cfg.Model.BaseURL)
	assert.Equal(t, "ds-key", cfg.Model.APIKey)
	assert.Equal(t, 10, cfg.Engine.MaxConcurrentTasks)
	assert.Equal(t, 2*time.Minute, cfg.Engine.ModelTimeout)
	assert.Equal(t, "sqlite", cfg.Transcript.Driver)
	assert.Equal(t, 720*time.Hour, cfg.Transcript.Retention)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.Equal(t, "Task", cfg.Jira.IssueType)
	assert.Equal(t, "metric", cfg.Weather.Units)
	assert.Empty(t, cfg.Weather.APIKey)
	assert.True(t, cfg.Pipelines.Presets)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeFile(t, "taskmesh.yaml", `
log:
  backend: zerolog
  level: debug
model:
  provider: anthropic
  model: claude-3-5-sonnet-latest
models:
  reviewer:
    provider: openai
    model: gpt-4o-mini
    api_key: file-key
selector_model: reviewer
engine:
  max_concurrent_tasks: 3
transcript:
  driver: badger
  path: /var/lib/taskmesh
ssh:
  host: web-1
  insecure_ignore_host_key: true
jira:
  base_url: https://jira.example.com
  project_key: OPS
  labels: [taskmesh]
schedules:
  - name: weekly
    spec: "0 9 * * MON"
    pipeline: report
    task: Summarize last week
`)
	t.Setenv("TASKMESH_ENGINE_MAX_CONCURRENT_TASKS", "7")
	t.Setenv("TASKMESH_SERVER_ADDR", "127.0.0.1:9090")
	t.Setenv("ANTHROPIC_API_KEY", "ant-key")
	t.Setenv("SSH_PASSWORD", "hunter2")
	t.Setenv("JIRA_API_TOKEN", "jira-token")
	t.Setenv("OPENWEATHER_API_KEY", "owm-key")

	cfg, err := Load(path, noEnvFiles)
	require.NoError(t, err)

	assert.Equal(t, "zerolog", cfg.Log.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "ant-key", cfg.Model.APIKey)
	require.Contains(t, cfg.Models, "reviewer")
	assert.Equal(t, "file-key", cfg.Models["reviewer"].APIKey)
	assert.Equal(t, 7, cfg.Engine.MaxConcurrentTasks)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, "badger", cfg.Transcript.Driver)
	assert.Equal(t, "hunter2", cfg.SSH.Password)
	assert.True(t, cfg.SSH.InsecureIgnoreHostKey)
	assert.Equal(t, "jira-token", cfg.Jira.APIToken)
	assert.Equal(t, []string{"taskmesh"}, cfg.Jira.Labels)
	assert.Equal(t, "owm-key", cfg.Weather.APIKey)
	require.Len(t, cfg.Schedules, 1)
	assert.Equal(t, "report", cfg.Schedules[0].Pipeline)
}

func TestLoadDotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "TASKMESH_KNOWLEDGE_BACKEND=bluge\n")
	t.Setenv("TASKMESH_KNOWLEDGE_BACKEND", "")
	require.NoError(t, os.Unsetenv("TASKMESH_KNOWLEDGE_BACKEND"))

	cfg, err := Load("", func(o *Options) { o.EnvFiles = []string{envFile, "missing.env"} })
	require.NoError(t, err)
	assert.Equal(t, "bluge", cfg.Knowledge.Backend)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), noEnvFiles)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Knowledge.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown provider", "model:\n  provider: llama\n"},
		{"unknown transcript driver", "transcript:\n  driver: postgres\n"},
		{"zero concurrency", "engine:\n  max_concurrent_tasks: 0\n"},
		{"undefined selector model", "selector_model: judge\n"},
		{"schedule without pipeline", "schedules:\n  - spec: \"@daily\"\n    task: x\n"},
		{"bad base url", "model:\n  base_url: not a url\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", tt.yaml), noEnvFiles)
			assert.Error(t, err)
		})
	}
}
