package ping

import (
	"context"
	"errors"
	"time"

	"task-recipes/internal/orchestrator"
	"task-recipes/internal/workers/shared"
)

const (
	TaskKey            = "chaos.ping"
	Reply              = "pong"
	DefaultFailureRate = 0.2
)

var ErrWoops = errors.New("woops")

type Input struct {
	Sequence int `json:"sequence"`
}

func Definition() *orchestrator.Task {
	return &orchestrator.Task{
		Key:         TaskKey,
		Description: "Reply pong with the submitted sequence number",
		Retries:     10,
		RetryDelay:  time.Second,
	}
}

type Handler struct {
	chance shared.Chance
}

func NewHandler(chance shared.Chance) *Handler {
	return &Handler{chance: chance}
}

func (h *Handler) Task() *orchestrator.Task {
	return Definition().WithHandler(orchestrator.Typed(h.Execute))
}

// Execute returns the pair ["pong", sequence].
func (h *Handler) Execute(_ context.Context, input *Input) ([]any, error) {
	if h.chance.Fail() {
		return nil, ErrWoops
	}
	return []any{Reply, input.Sequence}, nil
}

// DecodeReply reads a ping result back into its reply and sequence.
func DecodeReply(res orchestrator.Result) (string, int, error) {
	var pair []any
	if err := res.Decode(&pair); err != nil {
		return "", 0, err
	}
	if len(pair) != 2 {
		return "", 0, errors.New("ping result is not a pair")
	}
	reply, _ := pair[0].(string)
	seq, ok := pair[1].(float64)
	if !ok {
		return "", 0, errors.New("ping sequence is not a number")
	}
	return reply, int(seq), nil
}
