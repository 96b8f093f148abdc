package orchestrator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	apperrors "task-recipes/internal/common/errors"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/common/validation"
	"task-recipes/pkg/registry"
)

// Handler executes one attempt of a task with the run's parameters.
type Handler interface {
	Handle(ctx context.Context, params json.RawMessage) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, params json.RawMessage) (any, error) {
	return f(ctx, params)
}

// Typed decodes the parameters into In before calling fn. Undecodable
// parameters fail the run without retries.
func Typed[In any, Out any](fn func(ctx context.Context, input *In) (Out, error)) Handler {
	return HandlerFunc(func(ctx context.Context, params json.RawMessage) (any, error) {
		var input In
		if len(params) > 0 {
			if err := json.Unmarshal(params, &input); err != nil {
				return nil, apperrors.NewInvalidParametersError(err.Error())
			}
		}
		return fn(ctx, &input)
	})
}

// CacheKeyFunc derives the cache key of a run from its task and parameters.
type CacheKeyFunc func(taskKey string, params json.RawMessage) (string, error)

// HookEvent is passed to state hooks after a run reaches a final state.
type HookEvent struct {
	Task    *Task
	Run     *TaskRun
	Results ResultStore
	Log     logger.Logger
}

// StateHook runs after a final state is persisted. Errors are logged only.
type StateHook func(ctx context.Context, ev HookEvent) error

// Task is the definition of a unit of background work.
type Task struct {
	Key         string
	Description string

	// NameTemplate is a text/template rendered over the parameter map to
	// name each run. Empty means "<key>-<short id>".
	NameTemplate string

	Retries         int
	RetryDelay      time.Duration
	Timeout         time.Duration
	Concurrency     int // jobs a broker may hold at once for this task; 0 uses the broker default
	CacheKeyFn      CacheKeyFunc
	CacheExpiration time.Duration // 0 keeps cache entries forever
	Schema          *validation.Schema

	OnCompletion []StateHook
	OnFailure    []StateHook

	Handler Handler

	nameTmpl *template.Template
}

// WithHandler returns a copy of the definition bound to h.
func (t *Task) WithHandler(h Handler) *Task {
	out := *t
	out.Handler = h
	out.OnCompletion = append([]StateHook(nil), t.OnCompletion...)
	out.OnFailure = append([]StateHook(nil), t.OnFailure...)
	return &out
}

func (t *Task) compile() error {
	if t.Key == "" {
		return fmt.Errorf("task key is required")
	}
	if t.Retries < 0 {
		return fmt.Errorf("task %s: retries must not be negative", t.Key)
	}
	if t.NameTemplate == "" {
		return nil
	}
	tmpl, err := template.New(t.Key).Option("missingkey=zero").Parse(t.NameTemplate)
	if err != nil {
		return fmt.Errorf("task %s: parse name template: %w", t.Key, err)
	}
	t.nameTmpl = tmpl
	return nil
}

// RunName renders the run name for params.
func (t *Task) RunName(runID string, params json.RawMessage) string {
	fallback := fmt.Sprintf("%s-%s", t.Key, shortID(runID))
	if t.nameTmpl == nil {
		return fallback
	}

	var data map[string]any
	if err := json.Unmarshal(params, &data); err != nil {
		return fallback
	}
	var buf bytes.Buffer
	if err := t.nameTmpl.Execute(&buf, data); err != nil {
		return fallback
	}
	// missingkey=zero renders absent map entries as "<no value>"
	name := strings.TrimSpace(strings.ReplaceAll(buf.String(), "<no value>", ""))
	if name == "" {
		return fallback
	}
	return name
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// TaskInputHash hashes the task key and the canonical JSON of params.
func TaskInputHash(taskKey string, params json.RawMessage) (string, error) {
	var v any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &v); err != nil {
			return "", fmt.Errorf("hash parameters: %w", err)
		}
	}
	// encoding/json sorts map keys, which makes the encoding canonical.
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash parameters: %w", err)
	}
	sum := sha256.Sum256(append([]byte(taskKey+":"), canonical...))
	return hex.EncodeToString(sum[:]), nil
}

// Registry holds task definitions by key.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register adds tasks. A duplicate key is an error.
func (r *Registry) Register(tasks ...*Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tasks {
		if err := t.compile(); err != nil {
			return err
		}
		if _, exists := r.tasks[t.Key]; exists {
			return fmt.Errorf("task %s already registered", t.Key)
		}
		r.tasks[t.Key] = t
	}
	return nil
}

// MustRegister is Register for static wiring.
func (r *Registry) MustRegister(tasks ...*Task) {
	if err := r.Register(tasks...); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(key string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[key]
	return t, ok
}

// Tasks returns every registered task ordered by key.
func (r *Registry) Tasks() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Served returns the registered tasks that carry a handler.
func (r *Registry) Served() []*Task {
	var out []*Task
	for _, t := range r.Tasks() {
		if t.Handler != nil {
			out = append(out, t)
		}
	}
	return out
}

// ApplyCatalog overrides retries, delays, timeouts, cache expiration and
// input schemas from a task catalog. Catalog entries for unknown keys are
// ignored so one catalog can serve several binaries.
func (r *Registry) ApplyCatalog(cat *registry.TaskCatalog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range cat.Tasks {
		t, ok := r.tasks[entry.Key]
		if !ok {
			continue
		}
		if entry.Retries != nil {
			t.Retries = *entry.Retries
		}
		if err := parseInto(&t.RetryDelay, entry.RetryDelay); err != nil {
			return fmt.Errorf("catalog %s retryDelay: %w", entry.Key, err)
		}
		if err := parseInto(&t.Timeout, entry.Timeout); err != nil {
			return fmt.Errorf("catalog %s timeout: %w", entry.Key, err)
		}
		if err := parseInto(&t.CacheExpiration, entry.CacheExpiration); err != nil {
			return fmt.Errorf("catalog %s cacheExpiration: %w", entry.Key, err)
		}
		if len(entry.InputSchema) > 0 {
			schema, err := validation.CompileSchema(entry.InputSchema)
			if err != nil {
				return fmt.Errorf("catalog %s inputSchema: %w", entry.Key, err)
			}
			t.Schema = schema
		}
	}
	return nil
}

func parseInto(dst *time.Duration, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
