// Package webhook receives GitHub webhook deliveries and hands them to tasks.
package webhook

import (
	"io"
	"net/http"

	apperrors "task-recipes/internal/common/errors"
	commonhttp "task-recipes/internal/common/http"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/common/validation"
	"task-recipes/internal/models"
	"task-recipes/internal/orchestrator"
	repo "task-recipes/internal/workers/webhook/handle-repo-request"
	processevent "task-recipes/internal/workers/webhook/process-event"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxBodyBytes = 5 << 20

type Server struct {
	tasks  orchestrator.Submitter
	secret []byte
	logger logger.Logger
}

// NewServer verifies signatures only when secret is set.
func NewServer(tasks orchestrator.Submitter, secret string, log logger.Logger) *Server {
	return &Server{
		tasks:  tasks,
		secret: []byte(secret),
		logger: log.WithFields(map[string]interface{}{"component": "webhook-api"}),
	}
}

func (s *Server) Routes() http.Handler {
	r := commonhttp.NewChiRouter(s.logger)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		commonhttp.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/webhook", s.webhook)
	r.Post("/events", s.events)
	return otelhttp.NewHandler(r, "webhook-api")
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readEvent(w, r)
	if !ok {
		return
	}
	ev, ok := s.parseEvent(w, r, body)
	if !ok {
		return
	}

	req := models.WebhookRequest{
		Headers: models.WebhookHeaders{
			Event:    r.Header.Get("X-GitHub-Event"),
			Delivery: r.Header.Get("X-GitHub-Delivery"),
		},
		Event: ev,
	}
	if _, err := s.tasks.Submit(r.Context(), repo.TaskKey, repo.Input{Request: req}); err != nil {
		s.submissionFailed(w, r, err)
		return
	}
	commonhttp.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readEvent(w, r)
	if !ok {
		return
	}
	ev, ok := s.parseEvent(w, r, body)
	if !ok {
		return
	}
	if _, err := s.tasks.Submit(r.Context(), processevent.TaskKey, processevent.Input{Event: ev}); err != nil {
		s.submissionFailed(w, r, err)
		return
	}
	commonhttp.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// readEvent reads the body and checks its signature.
func (s *Server) readEvent(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		commonhttp.RespondWithError(w, r, http.StatusBadRequest, "BAD_REQUEST", "could not read body")
		return nil, false
	}
	if len(s.secret) > 0 && !VerifySignature(s.secret, body, r.Header.Get("X-Hub-Signature-256")) {
		s.logger.Warn("Rejected webhook with bad signature", map[string]interface{}{
			"delivery": r.Header.Get("X-GitHub-Delivery"),
		})
		commonhttp.RespondWithError(w, r, http.StatusUnauthorized, string(apperrors.ErrCodeAuthentication), "invalid signature")
		return nil, false
	}
	return body, true
}

func (s *Server) parseEvent(w http.ResponseWriter, r *http.Request, body []byte) (models.WebhookEvent, bool) {
	ev, err := models.ParseWebhookEvent(body)
	if err != nil {
		commonhttp.RespondWithError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload")
		return models.WebhookEvent{}, false
	}
	if res := validation.ValidateStruct(ev); !res.Valid {
		commonhttp.RespondWithError(w, r, http.StatusBadRequest, string(apperrors.ErrCodeInvalidParameters), res.Error())
		return models.WebhookEvent{}, false
	}
	return ev, true
}

func (s *Server) submissionFailed(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("Submission failed", map[string]interface{}{"error": err.Error()})
	commonhttp.RespondWithError(w, r, http.StatusBadGateway, string(apperrors.ErrCodeSubmissionFailed), "could not submit task")
}
