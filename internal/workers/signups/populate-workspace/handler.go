package populateworkspace

import (
	"context"
	"fmt"

	"task-recipes/internal/common/logger"
	"task-recipes/internal/models"
	"task-recipes/internal/orchestrator"

	"github.com/google/uuid"
)

const (
	TaskKey    = "signups.populate_workspace"
	ThingCount = 10
)

// UserStore is implemented by users.Store.
type UserStore interface {
	Get(ctx context.Context, id uuid.UUID) (models.User, error)
	AddToWorkspace(ctx context.Context, id uuid.UUID, things ...string) error
}

type Output struct {
	UserID string   `json:"user_id"`
	Things []string `json:"things"`
}

// Definition caches by input hash with no expiry, so a user's workspace is
// populated once.
func Definition() *orchestrator.Task {
	return &orchestrator.Task{
		Key:          TaskKey,
		Description:  "Create the starter things in a new user's workspace",
		NameTemplate: "Populate Workspace for {{.user.email}}",
		CacheKeyFn:   orchestrator.TaskInputHash,
	}
}

type Handler struct {
	store  UserStore
	logger logger.Logger
}

func NewHandler(store UserStore, log logger.Logger) *Handler {
	return &Handler{store: store, logger: log.WithFields(map[string]interface{}{"taskKey": TaskKey})}
}

func (h *Handler) Task() *orchestrator.Task {
	return Definition().WithHandler(orchestrator.Typed(h.Execute))
}

func (h *Handler) Execute(ctx context.Context, input *models.UserParams) (*Output, error) {
	// the stored user wins over the submitted copy
	user, err := h.store.Get(ctx, input.User.ID)
	if err != nil {
		return nil, err
	}

	things := StarterThings(ThingCount)
	if err := h.store.AddToWorkspace(ctx, user.ID, things...); err != nil {
		return nil, err
	}

	h.logger.Info("Workspace populated", map[string]interface{}{
		"userId": user.ID.String(),
		"things": len(things),
	})
	return &Output{UserID: user.ID.String(), Things: things}, nil
}

func StarterThings(n int) []string {
	things := make([]string, n)
	for i := range things {
		things[i] = fmt.Sprintf("thing-%d", i)
	}
	return things
}
