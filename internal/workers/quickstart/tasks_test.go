package quickstart

import (
	"context"
	"testing"
	"time"

	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreeting(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"default name", "", "Hello, Marvin!"},
		{"given name", "Trillian", "Hello, Trillian!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Greeting(tt.input))
		})
	}
}

func TestTasks_EndToEnd(t *testing.T) {
	log := logger.NewTestLogger(t)
	store := orchestrator.NewMemoryStore()
	reg := orchestrator.NewRegistry()
	reg.MustRegister(NewHandlers(log).Tasks()...)

	broker := orchestrator.NewMemoryBroker(8, 1, log)
	client := orchestrator.NewClient(reg, store, store, broker, log)
	worker := orchestrator.NewWorker(reg, store, store, store, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	greet, err := client.Submit(ctx, GreetKey, map[string]any{})
	require.NoError(t, err)
	hello, err := client.Submit(ctx, HelloKey, NameInput{Name: "Trillian"})
	require.NoError(t, err)
	work, err := client.Submit(ctx, SomeWorkKey, SomeWorkInput{SomeInput: 42})
	require.NoError(t, err)

	_, err = broker.Drain(ctx, worker)
	require.NoError(t, err)

	res, err := client.ReadResult(ctx, greet.ID)
	require.NoError(t, err)
	var greeting string
	require.NoError(t, res.Decode(&greeting))
	assert.Equal(t, "Hello, Marvin!", greeting)

	for _, id := range []uuid.UUID{hello.ID, work.ID} {
		run, err := client.ReadTaskRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, orchestrator.StateCompleted, run.State.Type)
	}
	assert.Equal(t, "hello-Trillian", hello.Name)
}
