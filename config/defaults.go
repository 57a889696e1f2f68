package config

import (
	"github.com/spf13/viper"
)

// Default model binding: qwen over DashScope's OpenAI compatible endpoint.
const (
	DefaultProvider = "openai"
	DefaultModel    = "qwen-turbo-latest"
	DefaultBaseURL  = "https://dashscope.aliyuncs.com/compatible-mode/v1"
)

// SetDefaults registers every known key on v. Keys without a default are
// invisible to environment overrides, so each field is listed here.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.backend", "slog")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	v.SetDefault("model.provider", DefaultProvider)
	v.SetDefault("model.model", DefaultModel)
	v.SetDefault("model.base_url", DefaultBaseURL)
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("model.max_tokens", 0)
	v.SetDefault("model.max_retries", 2)
	v.SetDefault("selector_model", "")

	v.SetDefault("engine.max_concurrent_tasks", 10)
	v.SetDefault("engine.model_timeout", "2m")
	v.SetDefault("engine.tool_timeout", "10m")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "15m")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("transcript.driver", "sqlite")
	v.SetDefault("transcript.path", "data/transcripts.db")
	v.SetDefault("transcript.retention", "720h")
	v.SetDefault("transcript.prune_schedule", "@daily")

	v.SetDefault("knowledge.backend", "memory")
	v.SetDefault("knowledge.dir", "")
	v.SetDefault("knowledge.index_path", "")
	v.SetDefault("knowledge.chunk_size", 1200)
	v.SetDefault("knowledge.default_results", 3)
	v.SetDefault("knowledge.threshold", 0.0)

	v.SetDefault("ssh.host", "")
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.user", "root")
	v.SetDefault("ssh.password", "")
	v.SetDefault("ssh.key_path", "")
	v.SetDefault("ssh.known_hosts_path", "")
	v.SetDefault("ssh.insecure_ignore_host_key", false)
	v.SetDefault("ssh.dial_timeout", "10s")
	v.SetDefault("ssh.max_output_bytes", 64<<10)

	v.SetDefault("jira.base_url", "")
	v.SetDefault("jira.user", "")
	v.SetDefault("jira.api_token", "")
	v.SetDefault("jira.project_key", "")
	v.SetDefault("jira.issue_type", "Task")
	v.SetDefault("jira.labels", []string{})
	v.SetDefault("jira.timeout", "30s")
	v.SetDefault("jira.concurrency", 4)

	v.SetDefault("weather.api_key", "")
	v.SetDefault("weather.base_url", "https://api.openweathermap.org")
	v.SetDefault("weather.country", "")
	v.SetDefault("weather.units", "metric")
	v.SetDefault("weather.lang", "en")
	v.SetDefault("weather.timeout", "10s")

	v.SetDefault("pipelines.presets", true)
	v.SetDefault("pipelines.files", []string{})
}
