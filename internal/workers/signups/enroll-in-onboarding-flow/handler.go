package enrollinonboardingflow

import (
	"context"
	"time"

	"task-recipes/internal/common/logger"
	"task-recipes/internal/common/mail"
	"task-recipes/internal/models"
	"task-recipes/internal/orchestrator"
)

const (
	TaskKey = "signups.enroll_in_onboarding_flow"
	Flow    = "onboarding"
)

// Enroller is implemented by mail.OnboardingClient.
type Enroller interface {
	Enroll(ctx context.Context, e mail.Enrollment) error
}

func Definition() *orchestrator.Task {
	return &orchestrator.Task{
		Key:          TaskKey,
		Description:  "Enroll a new user in the marketing onboarding flow",
		NameTemplate: "Enroll {{.user.email}} in Onboarding Flow",
	}
}

type Handler struct {
	enroller Enroller
	logger   logger.Logger
	now      func() time.Time
}

func NewHandler(enroller Enroller, log logger.Logger) *Handler {
	return &Handler{
		enroller: enroller,
		logger:   log.WithFields(map[string]interface{}{"taskKey": TaskKey}),
		now:      time.Now,
	}
}

func (h *Handler) Task() *orchestrator.Task {
	return Definition().WithHandler(orchestrator.Typed(h.Execute))
}

func (h *Handler) Execute(ctx context.Context, input *models.UserParams) (*mail.Enrollment, error) {
	enrollment := mail.Enrollment{
		Flow:      Flow,
		UserID:    input.User.ID.String(),
		Email:     input.User.Email,
		Name:      input.User.Name,
		StartDate: h.now().Format(time.DateOnly),
	}
	if err := h.enroller.Enroll(ctx, enrollment); err != nil {
		return nil, err
	}

	h.logger.Info("User enrolled", map[string]interface{}{
		"userId":    enrollment.UserID,
		"startDate": enrollment.StartDate,
	})
	return &enrollment, nil
}
