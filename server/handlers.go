package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/internal/util"
	"github.com/hupe1980/taskmesh/transcript"
)

const (
	// statusClientClosed is the nginx convention for a caller that went
	// away before a slot freed up.
	statusClientClosed     = 499
	maxRequestBodyBytes    = 1 << 20
	defaultTranscriptLimit = 50
)

// TaskRequest is the body of POST /v1/tasks.
type TaskRequest struct {
	// ID optionally names the session so it can be cancelled while running.
	ID       string `json:"id,omitempty" validate:"omitempty,max=128,excludesall=/ "`
	Pipeline string `json:"pipeline" validate:"required"`
	Task     string `json:"task" validate:"required"`
}

// PipelineInfo describes a registered pipeline.
type PipelineInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Participants []string `json:"participants"`
	TurnPolicy   string   `json:"turn_policy"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status             string `json:"status"`
	Pipelines          int    `json:"pipelines"`
	ActiveSessions     int    `json:"active_sessions"`
	MaxConcurrentTasks int    `json:"max_concurrent_tasks"`
	Transcripts        bool   `json:"transcripts"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:             "ok",
		Pipelines:          len(s.engine.Pipelines()),
		ActiveSessions:     len(s.engine.Active()),
		MaxConcurrentTasks: s.engine.MaxConcurrentTasks(),
		Transcripts:        s.engine.Transcripts() != nil,
	})
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		sendError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	if req.ID == "" {
		req.ID = util.NewID("sess-")
	}

	res, err := s.engine.RunWithID(r.Context(), req.ID, req.Pipeline, req.Task)
	if err != nil {
		s.log.Warn("server.task.rejected", "pipeline", req.Pipeline, "session_id", req.ID, "error", err)
		var cancelled *core.CancellationError
		switch {
		case errors.Is(err, engine.ErrUnknownPipeline):
			sendError(w, http.StatusNotFound, CodeNotFound, err.Error())
		case errors.Is(err, engine.ErrDuplicateSession):
			sendError(w, http.StatusConflict, CodeConflict, err.Error())
		case errors.As(err, &cancelled) && errors.Is(err, context.Canceled):
			sendError(w, statusClientClosed, CodeClientClosed, err.Error())
		default:
			sendError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
		}
		return
	}
	sendJSON(w, http.StatusOK, res)
}

func (s *Server) handleListActive(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string][]string{"active": s.engine.Active()})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.Cancel(id); err != nil {
		sendError(w, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	s.log.Info("server.task.cancelled", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPipelines(w http.ResponseWriter, _ *http.Request) {
	infos := make([]PipelineInfo, 0)
	for _, name := range s.engine.Pipelines() {
		p, ok := s.engine.Pipeline(name)
		if !ok {
			continue
		}
		cfg := p.Config()
		kind := cfg.TurnPolicy.Kind
		if kind == "" {
			kind = "round_robin"
		}
		infos = append(infos, PipelineInfo{
			Name:         name,
			Description:  cfg.Description,
			Participants: lo.Map(cfg.Participants, func(ps core.ParticipantSpec, _ int) string { return ps.ID }),
			TurnPolicy:   kind,
		})
	}
	sendJSON(w, http.StatusOK, infos)
}

func (s *Server) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	store := s.engine.Transcripts()
	if store == nil {
		sendError(w, http.StatusServiceUnavailable, CodeUnavailable, "transcripts are disabled")
		return
	}

	limit := defaultTranscriptLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendError(w, http.StatusBadRequest, CodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	recs, err := store.List(r.Context(), r.URL.Query().Get("pipeline"), limit)
	if err != nil {
		sendError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if recs == nil {
		recs = []transcript.Record{}
	}
	sendJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	store := s.engine.Transcripts()
	if store == nil {
		sendError(w, http.StatusServiceUnavailable, CodeUnavailable, "transcripts are disabled")
		return
	}
	rec, err := store.Get(r.Context(), mux.Vars(r)["id"])
	switch {
	case errors.Is(err, transcript.ErrNotFound):
		sendError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case err != nil:
		sendError(w, http.StatusInternalServerError, CodeInternal, err.Error())
	default:
		sendJSON(w, http.StatusOK, rec)
	}
}
