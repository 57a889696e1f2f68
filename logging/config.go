package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.uber.org/zap"
)

// LogConfig selects and configures a logging backend.
type LogConfig struct {
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"` // slog, zerolog, zap
	Level   string `json:"level" yaml:"level" mapstructure:"level"`       // debug, info, warn, error
	Format  string `json:"format" yaml:"format" mapstructure:"format"`    // console, json
	File    string `json:"file" yaml:"file" mapstructure:"file"`          // optional log file path
}

// DefaultLogConfig returns a baseline console info level configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{Backend: "slog", Level: "info", Format: "console"}
}

// New builds a Logger from cfg. The returned close function releases the log
// file (if any) and flushes buffered backends; it is never nil.
func New(cfg LogConfig) (Logger, func() error, error) {
	level := ParseLevel(strings.ToLower(cfg.Level))
	console := strings.EqualFold(cfg.Format, "console") || strings.EqualFold(cfg.Format, "text")

	switch strings.ToLower(cfg.Backend) {
	case "", "slog":
		out, closeFn, err := openOutput(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		opts := &slog.HandlerOptions{Level: slogLevel(level)}
		var handler slog.Handler
		if console {
			handler = slog.NewTextHandler(out, opts)
		} else {
			handler = slog.NewJSONHandler(out, opts)
		}
		return NewSlogAdapter(slog.New(handler)), closeFn, nil

	case "zerolog":
		out, closeFn, err := openOutput(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		var w io.Writer = out
		if console && cfg.File == "" {
			w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02T15:04:05-07:00"}
		}
		zl := zerolog.New(w).Level(zerologLevel(level)).With().Timestamp().Logger()
		return NewZerologAdapter(zl), closeFn, nil

	case "zap":
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
		if console {
			zcfg.Encoding = "console"
		}
		if cfg.File != "" {
			zcfg.OutputPaths = append(zcfg.OutputPaths, cfg.File)
		}
		zl, err := zcfg.Build()
		if err != nil {
			return nil, nil, fmt.Errorf("build zap logger: %w", err)
		}
		adapter := NewZapAdapter(zl)
		return adapter, func() error { _ = adapter.Sync(); return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stderr, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return io.MultiWriter(os.Stderr, f), f.Close, nil
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
