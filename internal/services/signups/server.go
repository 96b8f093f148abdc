// Package signups serves the user signup API. Creating a user submits the
// welcome tasks.
package signups

import (
	"context"
	"net/http"

	apperrors "task-recipes/internal/common/errors"
	commonhttp "task-recipes/internal/common/http"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/common/validation"
	"task-recipes/internal/models"
	"task-recipes/internal/orchestrator"

	enroll "task-recipes/internal/workers/signups/enroll-in-onboarding-flow"
	populate "task-recipes/internal/workers/signups/populate-workspace"
	confirm "task-recipes/internal/workers/signups/send-confirmation-email"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// WelcomeTasks are submitted, in order, for every new user.
var WelcomeTasks = []string{confirm.TaskKey, enroll.TaskKey, populate.TaskKey}

// UserStore is implemented by users.Store.
type UserStore interface {
	Create(ctx context.Context, nu models.NewUser) (models.User, error)
	Get(ctx context.Context, id uuid.UUID) (models.User, error)
	Workspace(ctx context.Context, id uuid.UUID) ([]string, error)
}

type Server struct {
	users  UserStore
	tasks  orchestrator.Submitter
	logger logger.Logger
}

func NewServer(users UserStore, tasks orchestrator.Submitter, log logger.Logger) *Server {
	return &Server{
		users:  users,
		tasks:  tasks,
		logger: log.WithFields(map[string]interface{}{"component": "signups-api"}),
	}
}

func (s *Server) Routes() http.Handler {
	r := commonhttp.NewChiRouter(s.logger)
	r.Post("/users", s.createUser)
	r.Get("/users/{id}", s.getUser)
	r.Get("/users/{id}/workspace", s.getWorkspace)
	return otelhttp.NewHandler(r, "signups-api")
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var nu models.NewUser
	if err := commonhttp.DecodeJSON(r, &nu); err != nil {
		commonhttp.RespondWithError(w, r, http.StatusUnprocessableEntity, "BAD_REQUEST", "invalid request body")
		return
	}
	if res := validation.ValidateStruct(nu); !res.Valid {
		commonhttp.RespondWithError(w, r, http.StatusUnprocessableEntity, string(apperrors.ErrCodeInvalidParameters), res.Error())
		return
	}

	user, err := s.users.Create(r.Context(), nu)
	if err != nil {
		s.logger.Error("Failed to create user", map[string]interface{}{"error": err.Error()})
		commonhttp.RespondWithError(w, r, http.StatusServiceUnavailable, string(apperrors.ErrCodeStoreUnavailable), "could not create user")
		return
	}

	params := models.UserParams{User: user}
	for _, key := range WelcomeTasks {
		run, err := s.tasks.Submit(r.Context(), key, params)
		if err != nil {
			// the user stays created
			s.logger.Error("Failed to submit welcome task", map[string]interface{}{
				"userId":  user.ID.String(),
				"taskKey": key,
				"error":   err.Error(),
			})
			commonhttp.RespondWithError(w, r, http.StatusBadGateway, string(apperrors.ErrCodeSubmissionFailed), "could not submit "+key)
			return
		}
		s.logger.Debug("Welcome task submitted", map[string]interface{}{"taskKey": key, "taskRunId": run.ID.String()})
	}

	commonhttp.RespondWithJSON(w, http.StatusCreated, user)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	user, err := s.users.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	commonhttp.RespondWithJSON(w, http.StatusOK, user)
}

func (s *Server) getWorkspace(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	if _, err := s.users.Get(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	things, err := s.users.Workspace(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if things == nil {
		things = []string{}
	}
	commonhttp.RespondWithJSON(w, http.StatusOK, things)
}

func userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		commonhttp.RespondWithError(w, r, http.StatusNotFound, string(apperrors.ErrCodeUserNotFound), "user not found")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if apperrors.HasCode(err, apperrors.ErrCodeUserNotFound) {
		commonhttp.RespondWithError(w, r, http.StatusNotFound, string(apperrors.ErrCodeUserNotFound), "user not found")
		return
	}
	s.logger.Error("Request failed", map[string]interface{}{"error": err.Error()})
	commonhttp.RespondWithError(w, r, http.StatusServiceUnavailable, string(apperrors.ErrCodeStoreUnavailable), "users store unavailable")
}
