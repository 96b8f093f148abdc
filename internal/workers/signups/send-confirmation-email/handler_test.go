package sendconfirmationemail

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	apperrors "task-recipes/internal/common/errors"
	"task-recipes/internal/common/logger"
	"task-recipes/internal/common/mail"
	"task-recipes/internal/models"
	"task-recipes/internal/orchestrator"
	"task-recipes/internal/workers/shared"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Mailer
// ==========================

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg mail.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func createUser() models.User {
	return models.User{ID: uuid.New(), Email: "ada@example.com", Name: "Ada", IsActive: true}
}

// ==========================
// Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	user := createUser()
	mailer := &MockMailer{}
	mailer.On("Send", mock.Anything, mail.Message{
		To:      "ada@example.com",
		Subject: "Welcome to the app!",
		Body:    "\nHi Ada, welcome to the app!",
	}).Return(nil).Once()

	h := NewHandler(mailer, shared.Never(), logger.NewTestLogger(t))
	out, err := h.Execute(context.Background(), &models.UserParams{User: user})

	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", out.To)
	mailer.AssertExpectations(t)
}

func TestHandler_Execute_Failures(t *testing.T) {
	tests := []struct {
		name         string
		chance       shared.Chance
		mailErr      error
		expectedCode apperrors.ErrorCode
	}{
		{
			name:         "random failure",
			chance:       shared.Chance{Rate: 1, Float: func() float64 { return 0 }},
			expectedCode: apperrors.ErrCodeRandomFailure,
		},
		{
			name:         "mail stub rejects",
			chance:       shared.Never(),
			mailErr:      apperrors.NewMailDeliveryFailedError("ada@example.com", errors.New("status 500")),
			expectedCode: apperrors.ErrCodeMailDeliveryFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &MockMailer{}
			mailer.On("Send", mock.Anything, mock.Anything).Return(tt.mailErr).Maybe()

			_, err := NewHandler(mailer, tt.chance, logger.NewNoOpLogger()).
				Execute(context.Background(), &models.UserParams{User: createUser()})
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.expectedCode))
			assert.True(t, apperrors.IsRetryable(err))
		})
	}
}

func TestDefinition(t *testing.T) {
	def := Definition()
	assert.Equal(t, TaskKey, def.Key)
	assert.Equal(t, 5, def.Retries)

	reg := orchestrator.NewRegistry()
	require.NoError(t, reg.Register(def))
	params, _ := json.Marshal(models.UserParams{User: createUser()})
	assert.Equal(t, "Send Confirmation Email to ada@example.com", def.RunName(uuid.NewString(), params))

	h := NewHandler(&MockMailer{}, shared.Never(), logger.NewNoOpLogger())
	assert.NotNil(t, h.Task().Handler)
	assert.Nil(t, def.Handler)
}
