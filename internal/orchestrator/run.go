package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultFilterLimit caps ReadTaskRuns when the filter sets no limit.
const DefaultFilterLimit = 200

// TaskRun is one submitted invocation of a task.
type TaskRun struct {
	ID         uuid.UUID       `json:"id"`
	TaskKey    string          `json:"task_key"`
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
	CacheKey   string          `json:"cache_key,omitempty"`
	RunCount   int             `json:"run_count"`
	MaxRetries int             `json:"max_retries"`
	State      State           `json:"state"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SetState moves the run to s.
func (r *TaskRun) SetState(s State) {
	r.State = s
	r.UpdatedAt = s.Timestamp
}

// Clone returns a deep copy safe to hand out from in-memory stores.
func (r *TaskRun) Clone() *TaskRun {
	out := *r
	out.Parameters = append(json.RawMessage(nil), r.Parameters...)
	if r.State.ScheduledTime != nil {
		t := *r.State.ScheduledTime
		out.State.ScheduledTime = &t
	}
	if r.State.Result != nil {
		ref := *r.State.Result
		out.State.Result = &ref
	}
	return &out
}

// TaskRunFilter selects task runs. Every non-empty criterion must match.
type TaskRunFilter struct {
	IDs        []uuid.UUID `json:"ids,omitempty"`
	StateTypes []StateType `json:"state_types,omitempty"`
	TaskKeys   []string    `json:"task_keys,omitempty"`
	Limit      int         `json:"limit,omitempty"`
}

// EffectiveLimit returns Limit or DefaultFilterLimit.
func (f TaskRunFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultFilterLimit
	}
	return f.Limit
}

// Matches reports whether run satisfies the filter, ignoring Limit.
func (f TaskRunFilter) Matches(run *TaskRun) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, run.ID) {
		return false
	}
	if len(f.StateTypes) > 0 && !contains(f.StateTypes, run.State.Type) {
		return false
	}
	if len(f.TaskKeys) > 0 && !contains(f.TaskKeys, run.TaskKey) {
		return false
	}
	return true
}

func contains[T comparable](items []T, v T) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}
