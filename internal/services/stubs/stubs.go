// Package stubs fakes the external mail and onboarding services the signups
// tasks call. Both answer with the unusual status 666 so callers prove they
// check status codes.
package stubs

import (
	"sync"

	apperrors "task-recipes/internal/common/errors"
	commonhttp "task-recipes/internal/common/http"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/common/mail"
	"task-recipes/internal/common/validation"

	"github.com/gofiber/fiber/v2"
)

type sendMailRequest struct {
	To      string `json:"to" validate:"required"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type enrollRequest struct {
	Flow      string `json:"flow" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
}

// Recorder keeps what the stubs accepted.
type Recorder struct {
	mu          sync.Mutex
	mails       []mail.Message
	enrollments []mail.Enrollment
}

func (r *Recorder) Mails() []mail.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mail.Message(nil), r.mails...)
}

func (r *Recorder) Enrollments() []mail.Enrollment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mail.Enrollment(nil), r.enrollments...)
}

func newApp(log logger.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          commonhttp.FiberErrorHandler(log),
		DisableStartupMessage: true,
	})
	app.Use(commonhttp.RequestID())
	app.Use(commonhttp.RequestLogger(log))
	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	return app
}

// MailApp serves POST /send-mail.
func MailApp(rec *Recorder, log logger.Logger) *fiber.App {
	log = log.WithFields(map[string]interface{}{"component": "mail-stub"})
	app := newApp(log)
	app.Post("/send-mail", func(c *fiber.Ctx) error {
		var req sendMailRequest
		if err := c.BodyParser(&req); err != nil {
			return commonhttp.WriteError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload")
		}
		if res := validation.ValidateStruct(req); !res.Valid {
			return commonhttp.WriteError(c, fiber.StatusBadRequest, string(apperrors.ErrCodeInvalidParameters), res.Error())
		}

		rec.mu.Lock()
		rec.mails = append(rec.mails, mail.Message{To: req.To, Subject: req.Subject, Body: req.Body})
		rec.mu.Unlock()

		log.Info("Sending mail", map[string]interface{}{"to": req.To, "subject": req.Subject})
		return c.Status(mail.StubAcceptedStatus).JSON(fiber.Map{"status": "sent"})
	})
	return app
}

// OnboardingApp serves POST /enroll-user.
func OnboardingApp(rec *Recorder, log logger.Logger) *fiber.App {
	log = log.WithFields(map[string]interface{}{"component": "onboarding-stub"})
	app := newApp(log)
	app.Post("/enroll-user", func(c *fiber.Ctx) error {
		var req enrollRequest
		if err := c.BodyParser(&req); err != nil {
			return commonhttp.WriteError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid JSON payload")
		}
		if res := validation.ValidateStruct(req); !res.Valid {
			return commonhttp.WriteError(c, fiber.StatusBadRequest, string(apperrors.ErrCodeInvalidParameters), res.Error())
		}

		rec.mu.Lock()
		rec.enrollments = append(rec.enrollments, mail.Enrollment(req))
		rec.mu.Unlock()

		log.Info("Enrolling user", map[string]interface{}{"flow": req.Flow, "userId": req.UserID})
		return c.Status(mail.StubAcceptedStatus).JSON(fiber.Map{"status": "enrolled"})
	})
	return app
}
