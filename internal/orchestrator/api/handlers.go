package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "task-recipes/internal/common/errors"
	commonhttp "task-recipes/internal/common/http"
	"task-recipes/internal/common/validation"
	"task-recipes/internal/orchestrator"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CreateTaskRunRequest is the body of POST /api/task_runs.
type CreateTaskRunRequest struct {
	TaskKey    string          `json:"task_key" validate:"required"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

func (s *Server) createTaskRun(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRunRequest
	if err := commonhttp.DecodeJSONStrict(r, &req); err != nil {
		commonhttp.RespondWithError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if res := validation.ValidateStruct(req); !res.Valid {
		commonhttp.RespondWithError(w, r, http.StatusBadRequest, string(apperrors.ErrCodeInvalidParameters), res.Error())
		return
	}

	var params any
	if len(req.Parameters) > 0 {
		params = req.Parameters
	}
	run, err := s.orch.Submit(r.Context(), req.TaskKey, params)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	commonhttp.RespondWithJSON(w, http.StatusCreated, run)
}

func (s *Server) filterTaskRuns(w http.ResponseWriter, r *http.Request) {
	var filter orchestrator.TaskRunFilter
	if err := commonhttp.DecodeJSONStrict(r, &filter); err != nil {
		commonhttp.RespondWithError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid filter")
		return
	}
	runs, err := s.orch.ReadTaskRuns(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*orchestrator.TaskRun{}
	}
	commonhttp.RespondWithJSON(w, http.StatusOK, runs)
}

func (s *Server) getTaskRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}
	run, err := s.orch.ReadTaskRun(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	commonhttp.RespondWithJSON(w, http.StatusOK, run)
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}
	res, err := s.orch.ReadResult(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	contentType := res.ContentType
	if contentType == "" {
		contentType = orchestrator.ContentTypeBinary
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (s *Server) deleteTaskRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}
	if err := s.orch.DeleteTaskRun(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) queues(w http.ResponseWriter, r *http.Request) {
	if s.inspector == nil {
		commonhttp.RespondWithError(w, r, http.StatusNotImplemented, "NOT_SUPPORTED", "broker does not report queue stats")
		return
	}
	stats, err := s.inspector.QueueStats(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	commonhttp.RespondWithJSON(w, http.StatusOK, stats)
}

func (s *Server) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		commonhttp.RespondWithError(w, r, http.StatusNotFound, string(apperrors.ErrCodeTaskRunNotFound), "task run not found")
		return uuid.Nil, false
	}
	return id, true
}

// StatusFor maps orchestrator errors to HTTP statuses.
func StatusFor(err error) (int, apperrors.ErrorCode) {
	switch {
	case errors.Is(err, orchestrator.ErrTaskRunNotFound):
		return http.StatusNotFound, apperrors.ErrCodeTaskRunNotFound
	case errors.Is(err, orchestrator.ErrResultNotReady):
		return http.StatusConflict, apperrors.ErrCodeResultNotReady
	case errors.Is(err, orchestrator.ErrResultNotFound):
		return http.StatusNotFound, apperrors.ErrCodeNotFound
	}

	code := apperrors.Normalize(err).Code
	switch code {
	case apperrors.ErrCodeTaskRunNotFound, apperrors.ErrCodeUnknownTask:
		return http.StatusNotFound, code
	case apperrors.ErrCodeInvalidParameters:
		return http.StatusBadRequest, code
	case apperrors.ErrCodeResultNotReady:
		return http.StatusConflict, code
	case apperrors.ErrCodeSubmissionFailed:
		return http.StatusBadGateway, code
	case apperrors.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable, code
	default:
		return http.StatusInternalServerError, code
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", map[string]interface{}{"path": r.URL.Path, "error": err.Error()})
		message = "internal server error"
	}
	commonhttp.RespondWithError(w, r, status, string(code), message)
}
