package mail

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "task-recipes/internal/common/errors"
	commonhttp "task-recipes/internal/common/http"
)

// Enrollment is the body of POST /enroll-user.
type Enrollment struct {
	Flow      string `json:"flow"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
}

// OnboardingClient enrolls users with the marketing service.
type OnboardingClient struct {
	baseURL  string
	accepted int
	client   *commonhttp.Client
}

func NewOnboardingClient(baseURL string, accepted int, timeout time.Duration) *OnboardingClient {
	if accepted == 0 {
		accepted = StubAcceptedStatus
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OnboardingClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		accepted: accepted,
		client:   commonhttp.NewClient(timeout),
	}
}

func (c *OnboardingClient) Enroll(ctx context.Context, e Enrollment) error {
	resp, err := c.client.DoJSON(ctx, http.MethodPost, c.baseURL+"/enroll-user", e)
	if err != nil {
		return apperrors.NewOnboardingFailedError(e.UserID, err)
	}
	if resp.StatusCode != c.accepted {
		return apperrors.NewOnboardingFailedError(e.UserID,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(resp.Body))))
	}
	return nil
}
