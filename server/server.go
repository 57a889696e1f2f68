// Package server exposes an engine over HTTP.
//
//	POST   /v1/tasks              run a task, answer with the result
//	GET    /v1/tasks              ids of running sessions
//	DELETE /v1/tasks/{id}         cancel a running session
//	GET    /v1/pipelines          registered pipelines
//	GET    /v1/transcripts        recorded sessions (?pipeline=&limit=)
//	GET    /v1/transcripts/{id}   one recorded session
//	GET    /health                liveness
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/logging"
)

// Options tune the HTTP server.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ShutdownTimeout bounds the graceful drain on context cancellation.
	ShutdownTimeout time.Duration
	Logger          logging.Logger
}

// Server routes HTTP requests to an engine.
type Server struct {
	engine   *engine.Engine
	opts     Options
	router   *mux.Router
	validate *validator.Validate
	log      *logging.MeshLogger
}

// New builds the router for e.
func New(e *engine.Engine, optFns ...func(o *Options)) *Server {
	opts := Options{
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    15 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		engine:   e,
		opts:     opts,
		router:   mux.NewRouter(),
		validate: validator.New(),
		log:      logging.NewMeshLogger(logging.OrNoOp(opts.Logger)).WithComponent("server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.logRequests)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/tasks", s.handleRunTask).Methods(http.MethodPost)
	v1.HandleFunc("/tasks", s.handleListActive).Methods(http.MethodGet)
	v1.HandleFunc("/tasks/{id}", s.handleCancelTask).Methods(http.MethodDelete)
	v1.HandleFunc("/pipelines", s.handleListPipelines).Methods(http.MethodGet)
	v1.HandleFunc("/transcripts", s.handleListTranscripts).Methods(http.MethodGet)
	v1.HandleFunc("/transcripts/{id}", s.handleGetTranscript).Methods(http.MethodGet)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then drains in-flight
// requests for at most ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server.listen", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("server.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
