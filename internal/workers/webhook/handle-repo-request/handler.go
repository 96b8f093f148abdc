// internal/workers/webhook/handle-repo-request/handler.go
package handlereporequest

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "task-recipes/internal/common/errors"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/models"
	"task-recipes/internal/orchestrator"

	"github.com/redis/go-redis/v9"
)

const TaskKey = "webhook.handle_repo_request"

type Input struct {
	Request models.WebhookRequest `json:"request"`
}

func Definition() *orchestrator.Task {
	return &orchestrator.Task{
		Key:          TaskKey,
		Description:  "Route a GitHub webhook delivery to its repository handler",
		NameTemplate: "Handle {{.request.headers.event}} event for {{.request.event.repository.full_name}}",
		OnCompletion: []orchestrator.StateHook{LogPersistedResult},
	}
}

// RecordKey is where a handled request's result is saved.
func RecordKey(req models.WebhookRequest) string {
	return fmt.Sprintf("%s:%s:%s", req.Event.Repository.FullName, req.Headers.Event, req.Headers.Delivery)
}

type Handler struct {
	repos  *RepoHandlers
	rdb    redis.UniversalClient
	logger logger.Logger
}

func NewHandler(repos *RepoHandlers, rdb redis.UniversalClient, log logger.Logger) *Handler {
	return &Handler{
		repos:  repos,
		rdb:    rdb,
		logger: log.WithFields(map[string]interface{}{"taskKey": TaskKey}),
	}
}

func (h *Handler) Task() *orchestrator.Task {
	return Definition().WithHandler(orchestrator.Typed(h.Execute))
}

func (h *Handler) Execute(ctx context.Context, input *Input) (any, error) {
	req := input.Request
	if req.Event.Repository.FullName == "" {
		return nil, apperrors.NewInvalidParametersError("request.event.repository.full_name is required")
	}

	out, err := h.repos.For(req.Event.Repository.FullName)(ctx, req)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode repo handler result: %w", err)
	}
	if err := h.rdb.Set(ctx, RecordKey(req), data, 0).Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError("redis", err)
	}
	return out, nil
}

// LogPersistedResult reads the completed run's result back from the result
// store and logs it.
func LogPersistedResult(ctx context.Context, ev orchestrator.HookEvent) error {
	ref := ev.Run.State.Result
	if ref == nil {
		return nil
	}
	res, err := ev.Results.GetResult(ctx, *ref)
	if err != nil {
		return fmt.Errorf("read persisted result: %w", err)
	}
	ev.Log.Info("Persisted result", map[string]interface{}{
		"resultKey": ref.Key,
		"value":     string(res.Data),
	})
	return nil
}
