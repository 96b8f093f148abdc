package gethelp

import (
	"context"
	"time"

	"task-recipes/internal/common/ai"
	apperrors "task-recipes/internal/common/errors"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"
	"task-recipes/internal/workers/shared"
)

const (
	TaskKey            = "monitoring.get_help"
	DefaultFailureRate = 0.2
)

// Helper is implemented by ai.Assistant.
type Helper interface {
	Classify(ctx context.Context, text string, labels []string) (string, error)
	Answer(ctx context.Context, question string) (string, error)
	Retort(ctx context.Context, question string) (string, error)
}

type Input struct {
	Question string `json:"question"`
}

func Definition() *orchestrator.Task {
	return &orchestrator.Task{
		Key:             TaskKey,
		Description:     "Answer a question, unless it was asked rudely",
		Retries:         10,
		RetryDelay:      time.Second,
		CacheKeyFn:      orchestrator.TaskInputHash,
		CacheExpiration: 60 * time.Second,
	}
}

type Handler struct {
	helper Helper
	chance shared.Chance
	logger logger.Logger
}

func NewHandler(helper Helper, chance shared.Chance, log logger.Logger) *Handler {
	return &Handler{
		helper: helper,
		chance: chance,
		logger: log.WithFields(map[string]interface{}{"taskKey": TaskKey}),
	}
}

func (h *Handler) Task() *orchestrator.Task {
	return Definition().WithHandler(orchestrator.Typed(h.Execute))
}

func (h *Handler) Execute(ctx context.Context, input *Input) (orchestrator.Result, error) {
	tone, err := h.helper.Classify(ctx, input.Question, ai.Tones)
	if err != nil {
		return orchestrator.Result{}, err
	}

	var reply string
	if tone == ai.ToneHostile {
		reply, err = h.helper.Retort(ctx, input.Question)
	} else {
		reply, err = h.helper.Answer(ctx, input.Question)
	}
	if err != nil {
		return orchestrator.Result{}, err
	}

	if h.chance.Fail() {
		return orchestrator.Result{}, apperrors.NewRandomFailureError("Randomly failing, this should be retried")
	}

	h.logger.Info("Question answered", map[string]interface{}{"tone": tone, "replyLength": len(reply)})
	return orchestrator.Text(reply), nil
}
