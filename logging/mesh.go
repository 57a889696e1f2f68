package logging

import "time"

// MeshLogger prefixes every entry with the component, pipeline and session
// it was derived for. The With* methods return copies, so a logger can be
// narrowed per session without affecting its parent.
type MeshLogger struct {
	base Logger
	ctx  []any
}

// NewMeshLogger wraps base (nil means no-op).
func NewMeshLogger(base Logger) *MeshLogger {
	return &MeshLogger{base: OrNoOp(base)}
}

func (l *MeshLogger) derive(kv ...any) *MeshLogger {
	ctx := make([]any, 0, len(l.ctx)+len(kv))
	ctx = append(ctx, l.ctx...)
	return &MeshLogger{base: l.base, ctx: append(ctx, kv...)}
}

// WithComponent tags entries with the emitting package (turn, engine, ...).
func (l *MeshLogger) WithComponent(c string) *MeshLogger { return l.derive("component", c) }

// WithSession tags entries with the pipeline and session they belong to.
func (l *MeshLogger) WithSession(pipeline, sessionID string) *MeshLogger {
	return l.derive("pipeline", pipeline, "session_id", sessionID)
}

// With adds one key/value pair.
func (l *MeshLogger) With(key string, value any) *MeshLogger { return l.derive(key, value) }

func (l *MeshLogger) kv(args []any) []any {
	if len(l.ctx) == 0 {
		return args
	}
	out := make([]any, 0, len(l.ctx)+len(args))
	return append(append(out, l.ctx...), args...)
}

func (l *MeshLogger) Debug(msg string, args ...any) { l.base.Debug(msg, l.kv(args)...) }
func (l *MeshLogger) Info(msg string, args ...any)  { l.base.Info(msg, l.kv(args)...) }
func (l *MeshLogger) Warn(msg string, args ...any)  { l.base.Warn(msg, l.kv(args)...) }
func (l *MeshLogger) Error(msg string, args ...any) { l.base.Error(msg, l.kv(args)...) }

// LogToolCall emits tool.call.completed, or tool.call.failed at warn level:
// tool failures are recovered into the conversation, not fatal.
func (l *MeshLogger) LogToolCall(tool string, dur time.Duration, err error) {
	if err != nil {
		l.Warn("tool.call.failed", "tool", tool, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	l.Info("tool.call.completed", "tool", tool, "duration_ms", dur.Milliseconds())
}

// LogModelCall emits model.call.completed at debug, or model.call.failed.
func (l *MeshLogger) LogModelCall(model, participant string, dur time.Duration, err error) {
	args := []any{"model", model, "participant", participant, "duration_ms", dur.Milliseconds()}
	if err != nil {
		l.Error("model.call.failed", append(args, "error", err.Error())...)
		return
	}
	l.Debug("model.call.completed", args...)
}

// LogSession emits session.finished with the final status and log length.
func (l *MeshLogger) LogSession(status string, messages int, dur time.Duration, err error) {
	args := []any{"status", status, "messages", messages, "duration_ms", dur.Milliseconds()}
	if err != nil {
		l.Warn("session.finished", append(args, "error", err.Error())...)
		return
	}
	l.Info("session.finished", args...)
}
