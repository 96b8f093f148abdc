package crashme

import (
	"context"

	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"
)

const (
	TaskKey         = "chaos.crash_me"
	DefaultExitCode = 42
)

type Input struct {
	ExitCode int `json:"exit_code"`
}

func Definition() *orchestrator.Task {
	return &orchestrator.Task{
		Key:         TaskKey,
		Description: "Exit the worker process that picks it up",
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

// Execute never succeeds. The worker records the run as crashed and exits.
func (h *Handler) Execute(_ context.Context, input *Input) (any, error) {
	h.logger.Warn("Crashing the worker", map[string]interface{}{"exitCode": input.ExitCode})
	return nil, &orchestrator.ExitError{Code: input.ExitCode}
}
