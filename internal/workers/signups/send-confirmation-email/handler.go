// internal/workers/signups/send-confirmation-email/handler.go
package sendconfirmationemail

import (
	"bytes"
	"context"
	"text/template"

	apperrors "task-recipes/internal/common/errors"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/common/mail"
	"task-recipes/internal/models"
	"task-recipes/internal/orchestrator"
	"task-recipes/internal/workers/shared"
)

const (
	TaskKey            = "signups.send_confirmation_email"
	Subject            = "Welcome to the app!"
	DefaultFailureRate = 0.2
)

var welcomeMail = template.Must(template.New("welcome").Parse("\nHi {{.Name}}, welcome to the app!"))

type Output struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

// Definition is the submit-side description of the task.
func Definition() *orchestrator.Task {
	return &orchestrator.Task{
		Key:          TaskKey,
		Description:  "Send the welcome email to a new user",
		NameTemplate: "Send Confirmation Email to {{.user.email}}",
		Retries:      5,
	}
}

type Handler struct {
	mailer mail.Mailer
	chance shared.Chance
	logger logger.Logger
}

func NewHandler(mailer mail.Mailer, chance shared.Chance, log logger.Logger) *Handler {
	return &Handler{
		mailer: mailer,
		chance: chance,
		logger: log.WithFields(map[string]interface{}{"taskKey": TaskKey}),
	}
}

// Task binds the handler to the definition.
func (h *Handler) Task() *orchestrator.Task {
	return Definition().WithHandler(orchestrator.Typed(h.Execute))
}

func (h *Handler) Execute(ctx context.Context, input *models.UserParams) (*Output, error) {
	if h.chance.Fail() {
		return nil, apperrors.NewRandomFailureError("Could not send email")
	}

	body, err := RenderWelcome(input.User)
	if err != nil {
		return nil, err
	}

	msg := mail.Message{To: input.User.Email, Subject: Subject, Body: body}
	if err := h.mailer.Send(ctx, msg); err != nil {
		return nil, err
	}

	h.logger.Info("Confirmation email sent", map[string]interface{}{
		"userId": input.User.ID.String(),
		"to":     input.User.Email,
	})
	return &Output{To: msg.To, Subject: msg.Subject}, nil
}

// RenderWelcome renders the welcome mail body for user.
func RenderWelcome(user models.User) (string, error) {
	var buf bytes.Buffer
	if err := welcomeMail.Execute(&buf, user); err != nil {
		return "", err
	}
	return buf.String(), nil
}
