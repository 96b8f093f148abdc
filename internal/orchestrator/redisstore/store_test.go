package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"task-recipes/internal/orchestrator"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func setupStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, opts...), mr
}

func createTestRun(key string, created time.Time) *orchestrator.TaskRun {
	run := &orchestrator.TaskRun{
		ID:         uuid.New(),
		TaskKey:    key,
		Name:       key + "-run",
		Parameters: []byte(`{"user_id":"42"}`),
		CreatedAt:  created,
	}
	run.SetState(orchestrator.Scheduled())
	return run
}

// ==========================
// Run Store Tests
// ==========================

func TestStore_TaskRunLifecycle(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()
	run := createTestRun("signups.populate_workspace", time.Now().UTC())

	require.NoError(t, store.CreateTaskRun(ctx, run))
	assert.True(t, mr.Exists("task_run:"+run.ID.String()))
	assert.Error(t, store.CreateTaskRun(ctx, run))

	run.RunCount = 1
	run.SetState(orchestrator.Running())
	require.NoError(t, store.UpdateTaskRun(ctx, run))

	read, err := store.ReadTaskRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StateRunning, read.State.Type)
	assert.Equal(t, 1, read.RunCount)
	assert.JSONEq(t, `{"user_id":"42"}`, string(read.Parameters))

	require.NoError(t, store.DeleteTaskRun(ctx, run.ID))
	_, err = store.ReadTaskRun(ctx, run.ID)
	assert.ErrorIs(t, err, orchestrator.ErrTaskRunNotFound)
	assert.ErrorIs(t, store.DeleteTaskRun(ctx, run.ID), orchestrator.ErrTaskRunNotFound)
	assert.ErrorIs(t, store.UpdateTaskRun(ctx, run), orchestrator.ErrTaskRunNotFound)

	members, err := mr.ZMembers("task_runs")
	if err == nil {
		assert.Empty(t, members)
	}
}

func TestStore_ReadTaskRuns(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	a := createTestRun("chaos.ping", base)
	b := createTestRun("chaos.crash_me", base.Add(time.Second))
	c := createTestRun("chaos.ping", base.Add(2*time.Second))
	c.SetState(orchestrator.Failed("woops"))
	for _, r := range []*orchestrator.TaskRun{c, a, b} {
		require.NoError(t, store.CreateTaskRun(ctx, r))
	}

	tests := []struct {
		name     string
		filter   orchestrator.TaskRunFilter
		expected []uuid.UUID
	}{
		{name: "all in creation order", expected: []uuid.UUID{a.ID, b.ID, c.ID}},
		{name: "task key", filter: orchestrator.TaskRunFilter{TaskKeys: []string{"chaos.ping"}}, expected: []uuid.UUID{a.ID, c.ID}},
		{name: "state type", filter: orchestrator.TaskRunFilter{StateTypes: []orchestrator.StateType{orchestrator.StateFailed}}, expected: []uuid.UUID{c.ID}},
		{name: "ids", filter: orchestrator.TaskRunFilter{IDs: []uuid.UUID{c.ID, a.ID, uuid.New()}}, expected: []uuid.UUID{a.ID, c.ID}},
		{name: "limit", filter: orchestrator.TaskRunFilter{Limit: 2}, expected: []uuid.UUID{a.ID, b.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := store.ReadTaskRuns(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]uuid.UUID, 0, len(runs))
			for _, r := range runs {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

// ==========================
// Result and Cache Tests
// ==========================

func TestStore_Results(t *testing.T) {
	store, mr := setupStore(t, WithResultRetention(time.Hour))
	ctx := context.Background()

	ref, err := store.PutResult(ctx, "task_run:abc", orchestrator.Text("hello"))
	require.NoError(t, err)
	assert.Equal(t, "redis", ref.Storage)
	assert.Equal(t, int64(5), ref.Size)
	assert.Equal(t, time.Hour, mr.TTL("result:task_run:abc"))

	res, err := store.GetResult(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ContentTypeText, res.ContentType)
	assert.Equal(t, "hello", string(res.Data))

	mr.FastForward(2 * time.Hour)
	_, err = store.GetResult(ctx, ref)
	assert.ErrorIs(t, err, orchestrator.ErrResultNotFound)

	ref, err = store.PutResult(ctx, "task_run:def", orchestrator.Result{ContentType: orchestrator.ContentTypeJSON, Data: []byte(`{}`)})
	require.NoError(t, err)
	require.NoError(t, store.DeleteResult(ctx, ref))
	_, err = store.GetResult(ctx, ref)
	assert.ErrorIs(t, err, orchestrator.ErrResultNotFound)
}

func TestStore_Cache(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()
	ref := orchestrator.ResultRef{Storage: "redis", Key: "task_run:abc", ContentType: orchestrator.ContentTypeText, Size: 3}

	miss, err := store.LookupCache(ctx, "hash-1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, store.StoreCache(ctx, "hash-1", ref, time.Minute))
	require.NoError(t, store.StoreCache(ctx, "hash-2", ref, 0))

	hit, err := store.LookupCache(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, ref, *hit)

	mr.FastForward(2 * time.Minute)
	expired, err := store.LookupCache(ctx, "hash-1")
	require.NoError(t, err)
	assert.Nil(t, expired)

	forever, err := store.LookupCache(ctx, "hash-2")
	require.NoError(t, err)
	assert.NotNil(t, forever)
}

// ==========================
// Error Handling Tests
// ==========================

func TestStore_RedisErrors(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("read failure is wrapped", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		mock.ExpectGet("task_run:" + id.String()).SetErr(errors.New("connection refused"))

		_, err := New(rdb).ReadTaskRun(ctx, id)
		require.Error(t, err)
		assert.NotErrorIs(t, err, orchestrator.ErrTaskRunNotFound)
		assert.Contains(t, err.Error(), "connection refused")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cache failure is reported", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		mock.ExpectGet("cache:hash").SetErr(errors.New("timeout"))

		ref, err := New(rdb).LookupCache(ctx, "hash")
		assert.Nil(t, ref)
		assert.ErrorContains(t, err, "timeout")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ping", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		mock.ExpectPing().SetVal("PONG")
		assert.NoError(t, New(rdb).Ping(ctx))
	})
}
