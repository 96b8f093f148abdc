// Package monitoring serves the question/answer API: questions become
// get_help runs and answers are polled by run id.
package monitoring

import (
	"errors"

	apperrors "task-recipes/internal/common/errors"
	commonhttp "task-recipes/internal/common/http"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"
	gethelp "task-recipes/internal/workers/monitoring/get-help"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tasks is what the monitoring API needs from the orchestrator.
type Tasks interface {
	orchestrator.Submitter
	orchestrator.Reader
}

type stateBody struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

type Server struct {
	tasks  Tasks
	logger logger.Logger
}

func NewServer(tasks Tasks, log logger.Logger) *Server {
	return &Server{tasks: tasks, logger: log.WithFields(map[string]interface{}{"component": "task-monitor"})}
}

// App builds the fiber application.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          commonhttp.FiberErrorHandler(s.logger),
		DisableStartupMessage: true,
	})
	app.Use(commonhttp.RequestID())
	app.Use(otelfiber.Middleware())
	app.Use(commonhttp.RequestLogger(s.logger))
	app.Use(commonhttp.Prometheus())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Post("/question", s.question)
	app.Get("/answer/:id", s.answer)
	return app
}

func (s *Server) question(c *fiber.Ctx) error {
	question := string(c.Body())
	run, err := s.tasks.Submit(c.UserContext(), gethelp.TaskKey, gethelp.Input{Question: question})
	if err != nil {
		s.logger.Error("Failed to submit question", map[string]interface{}{"error": err.Error()})
		return commonhttp.WriteError(c, fiber.StatusBadGateway, string(apperrors.ErrCodeSubmissionFailed), "could not submit question")
	}
	c.Location("/answer/" + run.ID.String())
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) answer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.ErrNotFound
	}
	run, err := s.tasks.ReadTaskRun(c.UserContext(), id)
	if errors.Is(err, orchestrator.ErrTaskRunNotFound) {
		return fiber.ErrNotFound
	}
	if err != nil {
		return err
	}
	if run.TaskKey != gethelp.TaskKey {
		return fiber.ErrNotFound
	}

	state := run.State
	switch {
	case state.Type == "":
		return c.Status(fiber.StatusNotFound).JSON(stateBody{State: "UNKNOWN"})
	case state.Type == orchestrator.StateFailed || state.Type == orchestrator.StateCrashed:
		return c.Status(fiber.StatusInternalServerError).JSON(stateBody{State: state.Name, Message: state.Message})
	case state.Type != orchestrator.StateCompleted:
		return c.Status(fiber.StatusAccepted).JSON(stateBody{State: state.Name})
	}

	res, err := s.tasks.ReadResult(c.UserContext(), id)
	if err != nil {
		return err
	}
	contentType := res.ContentType
	if contentType == "" {
		contentType = orchestrator.ContentTypeText
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.Status(fiber.StatusOK).Send(res.Data)
}
