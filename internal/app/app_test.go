package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"task-recipes/internal/common/config"
	"task-recipes/internal/orchestrator"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func memoryConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Orchestrator.Broker = "memory"
	cfg.Orchestrator.RunStore = "memory"
	cfg.Orchestrator.ResultStore = "memory"
	cfg.Orchestrator.Concurrency = 2
	cfg.Logging.Level = "error"
	cfg.Logging.Format = "json"
	return cfg
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			if calls < 3 {
				return errors.New("not yet")
			}
			return nil
		}, 5, time.Millisecond, zap.NewNop(), "op")
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, func() error { calls++; return errors.New("down") }, 3, time.Millisecond, zap.NewNop(), "op")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "op failed after 3 attempts: down")
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on cancel", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := RetryWithBackoff(cctx, func() error { return errors.New("down") }, 3, time.Hour, zap.NewNop(), "op")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestStack_Memory(t *testing.T) {
	ctx := context.Background()
	a, err := FromConfig(ctx, "test", memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	st, err := a.Stack(ctx)
	require.NoError(t, err)
	assert.IsType(t, &orchestrator.MemoryStore{}, st.Runs)
	assert.Same(t, st.Runs, st.Results)
	assert.Same(t, st.Runs, st.Cache)
	assert.IsType(t, &orchestrator.MemoryBroker{}, st.Broker)
	assert.Nil(t, st.Inspector)
	assert.Empty(t, st.Pingers)
}

func TestStack_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.Orchestrator.RunStore = "redis"
	cfg.Database.Redis.Address = mr.Addr()

	ctx := context.Background()
	a, err := FromConfig(ctx, "test", cfg)
	require.NoError(t, err)
	defer a.Close()

	st, err := a.Stack(ctx)
	require.NoError(t, err)
	assert.Same(t, st.Runs, st.Cache)
	assert.Contains(t, st.Pingers, "redis")
	assert.IsType(t, &orchestrator.MemoryStore{}, st.Results)
}

func TestWorkerRegistry(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.Database.Redis.Address = mr.Addr()

	ctx := context.Background()
	a, err := FromConfig(ctx, "test", cfg)
	require.NoError(t, err)
	defer a.Close()

	reg, err := a.WorkerRegistry(ctx)
	require.NoError(t, err)

	served := map[string]bool{}
	for _, task := range reg.Served() {
		served[task.Key] = true
	}
	assert.True(t, served["signups.populate_workspace"])
	assert.True(t, served["webhook.handle_repo_request"])
	// no GenAI key
	assert.False(t, served["monitoring.get_help"])
}

func TestWorkerRegistry_WithoutRedis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := FromConfig(ctx, "test", memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	reg, err := a.WorkerRegistry(ctx)
	require.NoError(t, err)

	served := map[string]bool{}
	for _, task := range reg.Served() {
		served[task.Key] = true
	}
	assert.False(t, served["signups.populate_workspace"])
	assert.False(t, served["webhook.handle_repo_request"])
	assert.True(t, served["quickstart.greet"])
	assert.True(t, served["jobs.process_job"])

	// still submittable
	_, ok := reg.Get("signups.populate_workspace")
	assert.True(t, ok)

	tasks, err := a.Tasks(ctx)
	require.NoError(t, err)
	run, err := tasks.Submit(ctx, "quickstart.greet", map[string]string{"name": "Arthur"})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StateScheduled, run.State.Type)
	cancel()
}

// ==========================
// Broker health
// ==========================

type pingingBroker struct {
	orchestrator.Broker
	err error
}

func (b pingingBroker) Ping(context.Context) error { return b.err }

func TestStack_UseBroker(t *testing.T) {
	st := &Stack{Pingers: map[string]Pinger{}}
	st.useBroker("memory", orchestrator.NewMemoryBroker(1, 1, nil), nil)
	assert.Empty(t, st.Pingers)

	down := errors.New("gateway unavailable")
	st.useBroker("zeebe", pingingBroker{err: down}, nil)
	require.Contains(t, st.Pingers, "zeebe")
	assert.ErrorIs(t, st.Pingers["zeebe"].Ping(context.Background()), down)
}
