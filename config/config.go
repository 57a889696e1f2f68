// Package config loads the process configuration from a YAML file,
// TASKMESH_ environment overrides, a .env file and provider secrets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/tools/jira"
	"github.com/hupe1980/taskmesh/tools/ssh"
	"github.com/hupe1980/taskmesh/tools/weather"
)

// EnvPrefix prefixes every environment override, e.g.
// TASKMESH_ENGINE_MAX_CONCURRENT_TASKS.
const EnvPrefix = "TASKMESH"

// Config is the root configuration.
type Config struct {
	Log logging.LogConfig `mapstructure:"log" yaml:"log"`

	// Model is the default binding used by every participant.
	Model ModelConfig `mapstructure:"model" yaml:"model"`
	// Models are named alternative bindings, referenced from a
	// participant's model field.
	Models map[string]ModelConfig `mapstructure:"models" yaml:"models" validate:"dive"`
	// SelectorModel names an entry of Models used for dynamic selection.
	SelectorModel string `mapstructure:"selector_model" yaml:"selector_model"`

	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Transcript TranscriptConfig `mapstructure:"transcript" yaml:"transcript"`
	Knowledge  KnowledgeConfig  `mapstructure:"knowledge" yaml:"knowledge"`
	SSH        ssh.Config       `mapstructure:"ssh" yaml:"ssh"`
	Jira       jira.Config      `mapstructure:"jira" yaml:"jira"`
	Weather    weather.Config   `mapstructure:"weather" yaml:"weather"`
	Pipelines  PipelinesConfig  `mapstructure:"pipelines" yaml:"pipelines"`
	Schedules  []ScheduleConfig `mapstructure:"schedules" yaml:"schedules" validate:"dive"`
}

// ModelConfig binds a provider model.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider" yaml:"provider" validate:"oneof=openai anthropic gemini"`
	Model       string  `mapstructure:"model" yaml:"model" validate:"required"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int64   `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=0"`
	// MaxRetries bounds SDK retries of transport failures; 0 keeps the
	// binding default.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0"`
}

// EngineConfig bounds the session engine.
type EngineConfig struct {
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks" yaml:"max_concurrent_tasks" validate:"gte=1"`
	ModelTimeout       time.Duration `mapstructure:"model_timeout" yaml:"model_timeout"`
	ToolTimeout        time.Duration `mapstructure:"tool_timeout" yaml:"tool_timeout"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// TranscriptConfig selects where finished sessions are recorded.
type TranscriptConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=none memory sqlite badger"`
	// Path is the sqlite file or badger directory.
	Path string `mapstructure:"path" yaml:"path" validate:"required_if=Driver sqlite"`
	// Retention is how long records are kept by the prune job.
	Retention     time.Duration `mapstructure:"retention" yaml:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule" yaml:"prune_schedule"`
}

// KnowledgeConfig selects the knowledge search backend.
type KnowledgeConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend" validate:"oneof=none memory bluge"`
	// Dir holds .md/.txt documents loaded into a memory index at start.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// IndexPath is the bluge index directory; empty keeps it in memory.
	IndexPath      string  `mapstructure:"index_path" yaml:"index_path"`
	ChunkSize      int     `mapstructure:"chunk_size" yaml:"chunk_size" validate:"gte=0"`
	DefaultResults int     `mapstructure:"default_results" yaml:"default_results" validate:"gte=1"`
	Threshold      float64 `mapstructure:"threshold" yaml:"threshold" validate:"gte=0"`
}

// PipelinesConfig controls which pipelines are registered.
type PipelinesConfig struct {
	// Presets registers the built-in router, tickets, command and report
	// pipelines.
	Presets bool `mapstructure:"presets" yaml:"presets"`
	// Files are YAML pipeline definitions layered over the presets.
	Files []string `mapstructure:"files" yaml:"files"`
}

// ScheduleConfig runs a pipeline on a cron spec.
type ScheduleConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Spec     string `mapstructure:"spec" yaml:"spec" validate:"required"`
	Pipeline string `mapstructure:"pipeline" yaml:"pipeline" validate:"required"`
	Task     string `mapstructure:"task" yaml:"task" validate:"required"`
}

// Secrets are read straight from the environment and fill in credentials
// the configuration file leaves empty.
type Secrets struct {
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	DashScopeAPIKey string `env:"DASHSCOPE_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	SSHPassword     string `env:"SSH_PASSWORD"`
	JiraAPIToken    string `env:"JIRA_API_TOKEN"`
	OpenWeatherKey  string `env:"OPENWEATHER_API_KEY"`
}

// Options tunes Load.
type Options struct {
	// EnvFiles are dotenv files loaded before anything else. Missing files
	// are ignored. Defaults to ".env".
	EnvFiles []string
}

var validate = validator.New()

// Load reads the configuration. An empty path uses defaults and the
// environment only; a missing file is not an error.
func Load(path string, optFns ...func(o *Options)) (*Config, error) {
	opts := Options{EnvFiles: []string{".env"}}
	for _, fn := range optFns {
		fn(&opts)
	}

	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	var secrets Secrets
	if _, err := env.UnmarshalFromEnviron(&secrets); err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}
	cfg.ApplySecrets(secrets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplySecrets fills empty credentials from s.
func (c *Config) ApplySecrets(s Secrets) {
	c.Model.APIKey = providerKey(c.Model, s)
	for name, m := range c.Models {
		m.APIKey = providerKey(m, s)
		c.Models[name] = m
	}
	if c.SSH.Password == "" {
		c.SSH.Password = s.SSHPassword
	}
	if c.Jira.APIToken == "" {
		c.Jira.APIToken = s.JiraAPIToken
	}
	if c.Weather.APIKey == "" {
		c.Weather.APIKey = s.OpenWeatherKey
	}
}

func providerKey(m ModelConfig, s Secrets) string {
	if m.APIKey != "" {
		return m.APIKey
	}
	switch m.Provider {
	case "anthropic":
		return s.AnthropicAPIKey
	case "gemini":
		return s.GeminiAPIKey
	default:
		if strings.Contains(m.BaseURL, "dashscope") && s.DashScopeAPIKey != "" {
			return s.DashScopeAPIKey
		}
		if s.OpenAIAPIKey != "" {
			return s.OpenAIAPIKey
		}
		return s.DashScopeAPIKey
	}
}

// Validate checks field constraints and cross references.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.SelectorModel != "" {
		if _, ok := c.Models[c.SelectorModel]; !ok {
			return fmt.Errorf("invalid config: selector_model %q is not defined in models", c.SelectorModel)
		}
	}
	return nil
}
