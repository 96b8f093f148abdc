package quickstart

import (
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "task-recipes/internal/common/errors"
	commonhttp "task-recipes/internal/common/http"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"
	tasks "task-recipes/internal/workers/quickstart"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Orchestrator interface {
	orchestrator.Submitter
	orchestrator.Reader
}

type valueRequest struct {
	Value json.RawMessage `json:"value"`
}

type Server struct {
	orch   Orchestrator
	logger logger.Logger
}

func NewServer(orch Orchestrator, log logger.Logger) *Server {
	return &Server{orch: orch, logger: log.WithFields(map[string]interface{}{"component": "quickstart-api"})}
}

func (s *Server) Routes() http.Handler {
	r := commonhttp.NewChiRouter(s.logger)
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		commonhttp.RespondWithJSON(w, http.StatusOK, "Hello, world!")
	})
	r.Get("/task", s.submitHello)
	r.Post("/", s.submitWork)
	return otelhttp.NewHandler(r, "quickstart-api")
}

func (s *Server) submitHello(w http.ResponseWriter, r *http.Request) {
	run, err := s.orch.Submit(r.Context(), tasks.HelloKey, tasks.NameInput{Name: "Trillian"})
	if err != nil {
		s.submissionFailed(w, r, err)
		return
	}
	commonhttp.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Task submitted: " + run.ID.String(),
	})
}

func (s *Server) submitWork(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := commonhttp.DecodeJSON(r, &req); err != nil {
		commonhttp.RespondWithError(w, r, http.StatusUnprocessableEntity, "BAD_REQUEST", "invalid request body")
		return
	}
	future, err := orchestrator.Delay(r.Context(), s.orch, tasks.SomeWorkKey, map[string]json.RawMessage{"some_input": req.Value})
	if err != nil {
		s.submissionFailed(w, r, err)
		return
	}
	commonhttp.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("submitted task run '%s'", future.TaskRunID),
	})
}

func (s *Server) submissionFailed(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("Submission failed", map[string]interface{}{"error": err.Error()})
	commonhttp.RespondWithError(w, r, http.StatusBadGateway, string(apperrors.ErrCodeSubmissionFailed), "could not submit task")
}
