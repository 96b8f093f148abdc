package processevent

import (
	"context"

	"task-recipes/internal/common/logger"
	"task-recipes/internal/models"
	"task-recipes/internal/orchestrator"
)

const TaskKey = "webhook.process_event"

type Input struct {
	Event models.WebhookEvent `json:"event"`
}

func Definition() *orchestrator.Task {
	return &orchestrator.Task{
		Key:          TaskKey,
		Description:  "Log a raw GitHub event",
		NameTemplate: "Process event for {{.event.repository.full_name}}",
	}
}

type Handler struct {
	logger logger.Logger
}

func NewHandler(log logger.Logger) *Handler {
	return &Handler{logger: log.WithFields(map[string]interface{}{"taskKey": TaskKey})}
}

func (h *Handler) Task() *orchestrator.Task {
	return Definition().WithHandler(orchestrator.Typed(h.Execute))
}

func (h *Handler) Execute(_ context.Context, input *Input) (any, error) {
	h.logger.Info("Processing event", map[string]interface{}{
		"repository": input.Event.Repository.FullName,
		"action":     input.Event.Action,
		"sender":     input.Event.Sender.Login,
		"event":      string(input.Event.Raw),
	})
	return nil, nil
}
