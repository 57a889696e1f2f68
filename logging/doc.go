// Package logging keeps taskmesh packages on a four-method Logger while the
// binary chooses the backend.
//
// New builds one from LogConfig: "slog" (default, text or JSON handler),
// "zerolog" (console writer or JSON) or "zap" (production config). Every
// Options struct in the module defaults to NoOpLogger.
//
//	logger, closeLog, err := logging.New(logging.LogConfig{Backend: "zerolog", Level: "debug"})
//	if err != nil {
//		return err
//	}
//	defer closeLog()
//	eng := engine.New(func(o *engine.Options) { o.Logger = logger })
//
// Messages are dotted event keys such as "turn.selected" or
// "tool.call.failed", followed by key/value pairs. MeshLogger prefixes the
// component, pipeline and session id.
package logging
