package orchestrator

import (
	"strings"
	"time"
)

// StateType is the coarse lifecycle position of a task run.
type StateType string

const (
	StateScheduled StateType = "SCHEDULED"
	StatePending   StateType = "PENDING"
	StateRunning   StateType = "RUNNING"
	StateCompleted StateType = "COMPLETED"
	StateFailed    StateType = "FAILED"
	StateCrashed   StateType = "CRASHED"
	StateCancelled StateType = "CANCELLED"
)

// AllStateTypes lists every state type in lifecycle order.
var AllStateTypes = []StateType{
	StateScheduled, StatePending, StateRunning,
	StateCompleted, StateFailed, StateCrashed, StateCancelled,
}

// IsFinal reports whether no further transitions happen from this type.
func (t StateType) IsFinal() bool {
	switch t {
	case StateCompleted, StateFailed, StateCrashed, StateCancelled:
		return true
	}
	return false
}

// ResultRef points at a persisted task result.
type ResultRef struct {
	Storage     string `json:"storage"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// State is one observation of a task run. Name refines Type, for example a
// RUNNING state named "Retrying" or a SCHEDULED state named "AwaitingRetry".
type State struct {
	Type          StateType  `json:"type"`
	Name          string     `json:"name"`
	Message       string     `json:"message,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	Result        *ResultRef `json:"result,omitempty"`
}

func (s State) IsFinal() bool     { return s.Type.IsFinal() }
func (s State) IsCompleted() bool { return s.Type == StateCompleted }

// IsFailed is true for FAILED and CRASHED runs.
func (s State) IsFailed() bool {
	return s.Type == StateFailed || s.Type == StateCrashed
}

// IsRetry reports whether the state belongs to a retry attempt.
func (s State) IsRetry() bool {
	return strings.Contains(s.Name, "Retry")
}

func newState(t StateType, name, message string) State {
	return State{Type: t, Name: name, Message: message, Timestamp: time.Now().UTC()}
}

func Scheduled() State { return newState(StateScheduled, "Scheduled", "") }
func Pending() State   { return newState(StatePending, "Pending", "") }
func Running() State   { return newState(StateRunning, "Running", "") }
func Retrying() State  { return newState(StateRunning, "Retrying", "") }

// AwaitingRetry is the SCHEDULED state a run waits in between attempts.
func AwaitingRetry(at time.Time, message string) State {
	s := newState(StateScheduled, "AwaitingRetry", message)
	at = at.UTC()
	s.ScheduledTime = &at
	return s
}

func Completed(ref ResultRef) State {
	s := newState(StateCompleted, "Completed", "")
	s.Result = &ref
	return s
}

// Cached is a COMPLETED state whose result was reused from an earlier run.
func Cached(ref ResultRef) State {
	s := newState(StateCompleted, "Cached", "Result loaded from cache")
	s.Result = &ref
	return s
}

func Failed(message string) State    { return newState(StateFailed, "Failed", message) }
func Crashed(message string) State   { return newState(StateCrashed, "Crashed", message) }
func Cancelled(message string) State { return newState(StateCancelled, "Cancelled", message) }
