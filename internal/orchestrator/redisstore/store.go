// Package redisstore keeps task runs, results and cache entries in Redis.
//
// Key layout:
//
//	task_run:<id>   run JSON
//	task_runs       sorted set of run ids scored by creation time (µs)
//	result:<key>    hash {content_type, data}, expires after the retention
//	cache:<key>     ResultRef JSON, expires after the task's cache expiration
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"task-recipes/internal/orchestrator"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	runKeyPrefix    = "task_run:"
	runIndexKey     = "task_runs"
	resultKeyPrefix = "result:"
	cacheKeyPrefix  = "cache:"

	// scanBatch is the number of ids loaded per MGET while filtering.
	scanBatch = 500
)

// Store implements orchestrator.RunStore, ResultStore and CacheStore.
type Store struct {
	rdb       redis.UniversalClient
	retention time.Duration
}

var (
	_ orchestrator.RunStore    = (*Store)(nil)
	_ orchestrator.ResultStore = (*Store)(nil)
	_ orchestrator.CacheStore  = (*Store)(nil)
)

type Option func(*Store)

// WithResultRetention expires persisted results after d. Zero keeps them.
func WithResultRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func runKey(id uuid.UUID) string { return runKeyPrefix + id.String() }

func score(t time.Time) float64 { return float64(t.UnixMicro()) }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) CreateTaskRun(ctx context.Context, run *orchestrator.TaskRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal task run: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, runKey(run.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("create task run %s: %w", run.ID, err)
	}
	if !ok {
		return fmt.Errorf("task run %s already exists", run.ID)
	}
	err = s.rdb.ZAdd(ctx, runIndexKey, redis.Z{Score: score(run.CreatedAt), Member: run.ID.String()}).Err()
	if err != nil {
		return fmt.Errorf("index task run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) ReadTaskRun(ctx context.Context, id uuid.UUID) (*orchestrator.TaskRun, error) {
	data, err := s.rdb.Get(ctx, runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, orchestrator.ErrTaskRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read task run %s: %w", id, err)
	}

	var run orchestrator.TaskRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode task run %s: %w", id, err)
	}
	return &run, nil
}

// ReadTaskRuns walks the creation index in batches and matches runs in
// memory. Explicit ids skip the index.
func (s *Store) ReadTaskRuns(ctx context.Context, filter orchestrator.TaskRunFilter) ([]*orchestrator.TaskRun, error) {
	limit := filter.EffectiveLimit()

	if len(filter.IDs) > 0 {
		ids := make([]string, 0, len(filter.IDs))
		for _, id := range filter.IDs {
			ids = append(ids, id.String())
		}
		runs, err := s.load(ctx, ids, filter)
		if err != nil {
			return nil, err
		}
		orchestrator.SortRuns(runs)
		if len(runs) > limit {
			runs = runs[:limit]
		}
		return runs, nil
	}

	out := make([]*orchestrator.TaskRun, 0)
	for start := int64(0); len(out) < limit; start += scanBatch {
		ids, err := s.rdb.ZRange(ctx, runIndexKey, start, start+scanBatch-1).Result()
		if err != nil {
			return nil, fmt.Errorf("scan task run index: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		runs, err := s.load(ctx, ids, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, runs...)
		if len(ids) < scanBatch {
			break
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// load fetches runs by id, keeping index order and dropping ids whose run
// has been deleted.
func (s *Store) load(ctx context.Context, ids []string, filter orchestrator.TaskRunFilter) ([]*orchestrator.TaskRun, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = runKeyPrefix + id
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load task runs: %w", err)
	}

	runs := make([]*orchestrator.TaskRun, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var run orchestrator.TaskRun
		if err := json.Unmarshal([]byte(str), &run); err != nil {
			return nil, fmt.Errorf("decode task run %s: %w", ids[i], err)
		}
		if filter.Matches(&run) {
			runs = append(runs, &run)
		}
	}
	return runs, nil
}

func (s *Store) UpdateTaskRun(ctx context.Context, run *orchestrator.TaskRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal task run: %w", err)
	}
	ok, err := s.rdb.SetXX(ctx, runKey(run.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("update task run %s: %w", run.ID, err)
	}
	if !ok {
		return orchestrator.ErrTaskRunNotFound
	}
	return nil
}

func (s *Store) DeleteTaskRun(ctx context.Context, id uuid.UUID) error {
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, runKey(id))
		pipe.ZRem(ctx, runIndexKey, id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete task run %s: %w", id, err)
	}
	if del.Val() == 0 {
		return orchestrator.ErrTaskRunNotFound
	}
	return nil
}

func (s *Store) PutResult(ctx context.Context, key string, res orchestrator.Result) (orchestrator.ResultRef, error) {
	rkey := resultKeyPrefix + key
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, rkey, "content_type", res.ContentType, "data", res.Data)
		if s.retention > 0 {
			pipe.Expire(ctx, rkey, s.retention)
		}
		return nil
	})
	if err != nil {
		return orchestrator.ResultRef{}, fmt.Errorf("put result %s: %w", key, err)
	}
	return orchestrator.ResultRef{
		Storage:     "redis",
		Key:         key,
		ContentType: res.ContentType,
		Size:        int64(len(res.Data)),
	}, nil
}

func (s *Store) GetResult(ctx context.Context, ref orchestrator.ResultRef) (orchestrator.Result, error) {
	fields, err := s.rdb.HGetAll(ctx, resultKeyPrefix+ref.Key).Result()
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("get result %s: %w", ref.Key, err)
	}
	data, ok := fields["data"]
	if !ok {
		return orchestrator.Result{}, orchestrator.ErrResultNotFound
	}
	return orchestrator.Result{ContentType: fields["content_type"], Data: []byte(data)}, nil
}

func (s *Store) DeleteResult(ctx context.Context, ref orchestrator.ResultRef) error {
	return s.rdb.Del(ctx, resultKeyPrefix+ref.Key).Err()
}

func (s *Store) LookupCache(ctx context.Context, key string) (*orchestrator.ResultRef, error) {
	data, err := s.rdb.Get(ctx, cacheKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup cache %s: %w", key, err)
	}
	var ref orchestrator.ResultRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &ref, nil
}

func (s *Store) StoreCache(ctx context.Context, key string, ref orchestrator.ResultRef, ttl time.Duration) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return s.rdb.Set(ctx, cacheKeyPrefix+key, data, ttl).Err()
}
