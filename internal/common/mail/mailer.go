// Package mail sends the demo emails through the mail stub or SES.
package mail

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	awsclient "task-recipes/internal/common/aws"
	"task-recipes/internal/common/config"
	apperrors "task-recipes/internal/common/errors"
	commonhttp "task-recipes/internal/common/http"
)

// StubAcceptedStatus is the status the mail and onboarding stubs answer with.
const StubAcceptedStatus = 666

type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// HTTPMailer posts messages to <baseURL>/send-mail.
type HTTPMailer struct {
	baseURL  string
	accepted int
	client   *commonhttp.Client
}

func NewHTTPMailer(baseURL string, accepted int, timeout time.Duration) *HTTPMailer {
	if accepted == 0 {
		accepted = StubAcceptedStatus
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPMailer{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		accepted: accepted,
		client:   commonhttp.NewClient(timeout),
	}
}

func (m *HTTPMailer) Send(ctx context.Context, msg Message) error {
	resp, err := m.client.DoJSON(ctx, http.MethodPost, m.baseURL+"/send-mail", msg)
	if err != nil {
		return apperrors.NewMailDeliveryFailedError(msg.To, err)
	}
	if resp.StatusCode != m.accepted {
		return apperrors.NewMailDeliveryFailedError(msg.To,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(resp.Body))))
	}
	return nil
}

// SESMailer sends through Amazon SES.
type SESMailer struct {
	ses *awsclient.SESClient
}

func NewSESMailer(client *awsclient.SESClient) *SESMailer {
	return &SESMailer{ses: client}
}

func (m *SESMailer) Send(ctx context.Context, msg Message) error {
	if _, err := m.ses.SendText(ctx, msg.To, msg.Subject, msg.Body); err != nil {
		return apperrors.NewMailDeliveryFailedError(msg.To, err)
	}
	return nil
}

// New picks the mailer configured under integrations.mail.
func New(ctx context.Context, cfg config.IntegrationConfig) (Mailer, error) {
	switch cfg.Mail.Provider {
	case "", "http":
		return NewHTTPMailer(cfg.Mail.BaseURL, cfg.Mail.AcceptedStatus, config.GetDuration(cfg.Mail.Timeout)), nil
	case "ses":
		client, err := awsclient.NewSESClient(ctx, cfg.AWS.Region, cfg.AWS.SES.FromEmail)
		if err != nil {
			return nil, fmt.Errorf("create ses client: %w", err)
		}
		return NewSESMailer(client), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Mail.Provider)
	}
}
