package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"task-recipes/internal/common/logger"

	"github.com/google/uuid"
)

// Common errors returned by the MemoryBroker
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

type delayedDelivery struct {
	at       time.Time
	delivery Delivery
}

// MemoryBroker is an in-process broker backed by a buffered channel. Retries
// wait in a delayed list until their time comes.
type MemoryBroker struct {
	queue   chan Delivery
	workers int
	log     logger.Logger

	mu      sync.Mutex
	closed  bool
	delayed []delayedDelivery
}

// NewMemoryBroker creates a broker with the given buffer size and number of
// worker goroutines used by Serve.
func NewMemoryBroker(size, workers int, log logger.Logger) *MemoryBroker {
	if workers <= 0 {
		workers = 1
	}
	return &MemoryBroker{
		queue:   make(chan Delivery, size),
		workers: workers,
		log:     log,
	}
}

func (b *MemoryBroker) Dispatch(_ context.Context, task *Task, run *TaskRun) error {
	return b.enqueue(Delivery{RunID: run.ID, TaskKey: task.Key})
}

func (b *MemoryBroker) enqueue(d Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrQueueClosed
	}
	select {
	case b.queue <- d:
		b.log.Debug("Task run enqueued", map[string]interface{}{
			"taskRunId": d.RunID.String(),
			"taskKey":   d.TaskKey,
			"queueLen":  len(b.queue),
			"queueCap":  cap(b.queue),
		})
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(b.queue))
	}
}

func (b *MemoryBroker) schedule(d Delivery, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delayed = append(b.delayed, delayedDelivery{at: time.Now().Add(delay), delivery: d})
}

// promote moves delayed deliveries due at or before now onto the queue. When
// all is set, every delayed delivery is promoted regardless of time.
func (b *MemoryBroker) promote(now time.Time, all bool) {
	b.mu.Lock()
	sort.SliceStable(b.delayed, func(i, j int) bool { return b.delayed[i].at.Before(b.delayed[j].at) })
	var due []Delivery
	keep := b.delayed[:0]
	for _, dd := range b.delayed {
		if all || !dd.at.After(now) {
			due = append(due, dd.delivery)
		} else {
			keep = append(keep, dd)
		}
	}
	b.delayed = keep
	b.mu.Unlock()

	for _, d := range due {
		if err := b.enqueue(d); err != nil {
			b.log.Warn("Could not promote delayed task run", map[string]interface{}{
				"taskRunId": d.RunID.String(),
				"error":     err.Error(),
			})
			b.schedule(d, time.Second)
		}
	}
}

// Pending returns the number of queued and delayed deliveries.
func (b *MemoryBroker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) + len(b.delayed)
}

func (b *MemoryBroker) handle(ctx context.Context, exec Executor, d Delivery) {
	err := exec.Execute(ctx, d)
	if err == nil {
		return
	}
	if re, ok := AsRetry(err); ok {
		b.schedule(d, re.Delay)
		return
	}
	b.log.Error("Task run delivery dropped", map[string]interface{}{
		"taskRunId": d.RunID.String(),
		"taskKey":   d.TaskKey,
		"error":     err.Error(),
	})
}

// Serve runs the worker goroutines and the retry scheduler until ctx is done.
func (b *MemoryBroker) Serve(ctx context.Context, _ []*Task, exec Executor) error {
	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d := <-b.queue:
					b.handle(ctx, exec, d)
				}
			}
		}()
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case now := <-ticker.C:
			b.promote(now, false)
		}
	}
}

// Drain processes deliveries synchronously until nothing is queued or
// delayed, ignoring retry delays. It returns the number of deliveries
// executed. Intended for tests and one-shot scripts.
func (b *MemoryBroker) Drain(ctx context.Context, exec Executor) (int, error) {
	const maxDeliveries = 10000
	processed := 0
	for processed < maxDeliveries {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		select {
		case d := <-b.queue:
			b.handle(ctx, exec, d)
			processed++
		default:
			if b.Pending() == 0 {
				return processed, nil
			}
			b.promote(time.Now(), true)
		}
	}
	return processed, fmt.Errorf("drain stopped after %d deliveries", maxDeliveries)
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.log.Info("Memory broker closed", nil)
	}
	return nil
}

// MemoryStore keeps runs, results and cache entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]*TaskRun
	results map[string]Result
	cache   map[string]memoryCacheEntry
	now     func() time.Time
}

type memoryCacheEntry struct {
	ref     ResultRef
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[uuid.UUID]*TaskRun),
		results: make(map[string]Result),
		cache:   make(map[string]memoryCacheEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) CreateTaskRun(_ context.Context, run *TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("task run %s already exists", run.ID)
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

func (s *MemoryStore) ReadTaskRun(_ context.Context, id uuid.UUID) (*TaskRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrTaskRunNotFound
	}
	return run.Clone(), nil
}

func (s *MemoryStore) ReadTaskRuns(_ context.Context, filter TaskRunFilter) ([]*TaskRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*TaskRun, 0)
	for _, run := range s.runs {
		if filter.Matches(run) {
			out = append(out, run.Clone())
		}
	}
	SortRuns(out)
	if limit := filter.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateTaskRun(_ context.Context, run *TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ErrTaskRunNotFound
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

func (s *MemoryStore) DeleteTaskRun(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return ErrTaskRunNotFound
	}
	delete(s.runs, id)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) PutResult(_ context.Context, key string, res Result) (ResultRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = Result{ContentType: res.ContentType, Data: append([]byte(nil), res.Data...)}
	return ResultRef{Storage: "memory", Key: key, ContentType: res.ContentType, Size: int64(len(res.Data))}, nil
}

func (s *MemoryStore) GetResult(_ context.Context, ref ResultRef) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.results[ref.Key]
	if !ok {
		return Result{}, ErrResultNotFound
	}
	return res, nil
}

func (s *MemoryStore) DeleteResult(_ context.Context, ref ResultRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, ref.Key)
	return nil
}

func (s *MemoryStore) LookupCache(_ context.Context, key string) (*ResultRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[key]
	if !ok || (!entry.expires.IsZero() && s.now().After(entry.expires)) {
		return nil, nil
	}
	ref := entry.ref
	return &ref, nil
}

func (s *MemoryStore) StoreCache(_ context.Context, key string, ref ResultRef, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := memoryCacheEntry{ref: ref}
	if ttl > 0 {
		entry.expires = s.now().Add(ttl)
	}
	s.cache[key] = entry
	return nil
}

// SortRuns orders runs by creation time, then ID.
func SortRuns(runs []*TaskRun) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID.String() < runs[j].ID.String()
		}
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
}
