// Package quickstart holds the tutorial tasks.
package quickstart

import (
	"context"
	"fmt"

	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"
)

const (
	HelloKey    = "quickstart.hello"
	GreetKey    = "quickstart.greet"
	SomeWorkKey = "quickstart.some_work"

	DefaultName = "Marvin"
)

type NameInput struct {
	Name string `json:"name"`
}

type SomeWorkInput struct {
	SomeInput any `json:"some_input"`
}

// Definitions returns the submit-side tasks.
func Definitions() []*orchestrator.Task {
	return []*orchestrator.Task{
		{Key: HelloKey, Description: "Log a greeting", NameTemplate: "hello-{{.name}}"},
		{Key: GreetKey, Description: "Return a greeting"},
		{Key: SomeWorkKey, Description: "Pretend to do some work"},
	}
}

type Handlers struct {
	logger logger.Logger
}

func NewHandlers(log logger.Logger) *Handlers {
	return &Handlers{logger: log}
}

// Tasks binds every quickstart definition to its handler.
func (h *Handlers) Tasks() []*orchestrator.Task {
	defs := Definitions()
	return []*orchestrator.Task{
		defs[0].WithHandler(orchestrator.Typed(h.Hello)),
		defs[1].WithHandler(orchestrator.Typed(h.Greet)),
		defs[2].WithHandler(orchestrator.Typed(h.SomeWork)),
	}
}

func (h *Handlers) Hello(_ context.Context, input *NameInput) (any, error) {
	h.logger.Info(Greeting(input.Name), nil)
	return nil, nil
}

func (h *Handlers) Greet(_ context.Context, input *NameInput) (string, error) {
	return Greeting(input.Name), nil
}

func (h *Handlers) SomeWork(_ context.Context, input *SomeWorkInput) (any, error) {
	h.logger.Info(fmt.Sprintf("doing some work with some_input=%v", input.SomeInput), nil)
	return nil, nil
}

// Greeting is "Hello, <name>!" with the default name when name is empty.
func Greeting(name string) string {
	if name == "" {
		name = DefaultName
	}
	return "Hello, " + name + "!"
}
