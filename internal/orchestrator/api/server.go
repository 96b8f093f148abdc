// Package api exposes task runs over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"task-recipes/internal/common/auth"
	commonhttp "task-recipes/internal/common/http"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the orchestration API.
type Server struct {
	orch      orchestrator.Orchestrator
	inspector orchestrator.QueueInspector
	pingers   map[string]Pinger
	tokens    *auth.TokenService
	log       logger.Logger
}

type Option func(*Server)

// WithInspector enables GET /api/queues.
func WithInspector(i orchestrator.QueueInspector) Option {
	return func(s *Server) { s.inspector = i }
}

// WithPinger adds a readiness check.
func WithPinger(name string, p Pinger) Option {
	return func(s *Server) { s.pingers[name] = p }
}

// WithAuth requires bearer tokens on /api. A nil service leaves it open.
func WithAuth(tokens *auth.TokenService) Option {
	return func(s *Server) { s.tokens = tokens }
}

func NewServer(orch orchestrator.Orchestrator, log logger.Logger, opts ...Option) *Server {
	s := &Server{
		orch:    orch,
		pingers: make(map[string]Pinger),
		log:     log.WithFields(map[string]interface{}{"component": "orchestrator-api"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := commonhttp.NewChiRouter(s.log)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.tokens != nil {
			r.Use(s.authenticate)
		}
		r.Post("/task_runs", s.createTaskRun)
		r.Post("/task_runs/filter", s.filterTaskRuns)
		r.Get("/task_runs/{id}", s.getTaskRun)
		r.Get("/task_runs/{id}/result", s.getResult)
		r.Delete("/task_runs/{id}", s.deleteTaskRun)
		r.Get("/queues", s.queues)
	})

	return otelhttp.NewHandler(r, "orchestrator-api")
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r)
		if err != nil {
			commonhttp.RespondWithError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		claims, err := s.tokens.Validate(token)
		if err != nil {
			commonhttp.RespondWithError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	commonhttp.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.pingers))
	healthy := true
	for name, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	commonhttp.RespondWithJSON(w, status, map[string]interface{}{"ready": healthy, "checks": checks})
}
