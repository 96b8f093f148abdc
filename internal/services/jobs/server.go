// Package jobs serves the minimal job submission API.
package jobs

import (
	"errors"
	"net/http"
	"time"

	apperrors "task-recipes/internal/common/errors"
	commonhttp "task-recipes/internal/common/http"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/common/validation"
	"task-recipes/internal/models"
	"task-recipes/internal/orchestrator"
	processjob "task-recipes/internal/workers/jobs/process-job"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	CacheSize = 100
	CacheTTL  = 60 * time.Second
)

// Tasks is what the jobs API needs from the orchestrator.
type Tasks interface {
	orchestrator.Submitter
	orchestrator.Reader
}

type Server struct {
	tasks   Tasks
	futures *expirable.LRU[string, *orchestrator.Future]
	logger  logger.Logger
}

func NewServer(tasks Tasks, log logger.Logger) *Server {
	return NewServerWithTTL(tasks, CacheTTL, log)
}

func NewServerWithTTL(tasks Tasks, ttl time.Duration, log logger.Logger) *Server {
	return &Server{
		tasks:   tasks,
		futures: expirable.NewLRU[string, *orchestrator.Future](CacheSize, nil, ttl),
		logger:  log.WithFields(map[string]interface{}{"component": "jobs-api"}),
	}
}

func (s *Server) Routes() http.Handler {
	r := commonhttp.NewChiRouter(s.logger)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		commonhttp.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/job", s.submitJob)
	r.Get("/job/{id}", s.getJob)
	r.Get("/jobs", s.listJobs)
	return otelhttp.NewHandler(r, "jobs-api")
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req models.JobRequest
	if err := commonhttp.DecodeJSON(r, &req); err != nil {
		commonhttp.RespondWithError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if res := validation.ValidateStruct(req); !res.Valid {
		commonhttp.RespondWithError(w, r, http.StatusUnprocessableEntity, string(apperrors.ErrCodeInvalidParameters), res.Error())
		return
	}

	future, err := orchestrator.Delay(r.Context(), s.tasks, processjob.TaskKey, processjob.Input{JobRequest: req})
	if err != nil {
		s.logger.Error("Failed to submit job", map[string]interface{}{"jobId": req.JobID, "error": err.Error()})
		commonhttp.RespondWithError(w, r, http.StatusBadGateway, string(apperrors.ErrCodeSubmissionFailed), "could not submit job")
		return
	}
	s.futures.Add(req.JobID, future)

	s.logger.Info("Job submitted", map[string]interface{}{"jobId": req.JobID, "taskRunId": future.TaskRunID.String()})
	commonhttp.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Job submitted"})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	future, ok := s.futures.Get(jobID)
	if !ok {
		commonhttp.RespondWithError(w, r, http.StatusNotFound, string(apperrors.ErrCodeNotFound), "job not found")
		return
	}

	state, err := future.State(r.Context())
	if err != nil {
		status, code := http.StatusServiceUnavailable, apperrors.ErrCodeStoreUnavailable
		if errors.Is(err, orchestrator.ErrTaskRunNotFound) {
			status, code = http.StatusNotFound, apperrors.ErrCodeTaskRunNotFound
		}
		commonhttp.RespondWithError(w, r, status, string(code), "could not read job state")
		return
	}

	commonhttp.RespondWithJSON(w, http.StatusOK, models.JobStatus{
		JobID:     jobID,
		TaskRunID: future.TaskRunID.String(),
		State:     state.Name,
	})
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	ids := s.futures.Keys()
	if ids == nil {
		ids = []string{}
	}
	commonhttp.RespondWithJSON(w, http.StatusOK, ids)
}
