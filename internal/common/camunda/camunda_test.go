package camunda

import (
	"encoding/xml"
	"errors"
	"testing"
	"time"

	"task-recipes/internal/common/config"
	apperrors "task-recipes/internal/common/errors"
	"task-recipes/internal/orchestrator"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ==========================
// Error classification
// ==========================

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		err       string
		retryable bool
	}{
		{"rpc error: code = Unavailable desc = connection refused", true},
		{"context deadline exceeded", true},
		{"RESOURCE_EXHAUSTED: backpressure", true},
		{"NOT_FOUND: no process with id", false},
		{"INVALID_ARGUMENT: bad variables", false},
	}
	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableZeebeError(errors.New(tt.err)))
		})
	}
}

func TestMapZeebeError(t *testing.T) {
	tests := []struct {
		name string
		err  string
		code apperrors.ErrorCode
	}{
		{"timeout", "deadline exceeded", apperrors.ErrCodeTimeout},
		{"not found", "process not found", apperrors.ErrCodeNotFound},
		{"unauthorized", "Unauthorized request", apperrors.ErrCodeAuthentication},
		{"other", "boom", apperrors.ErrCodeExternalService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapZeebeError(errors.New(tt.err), "deploy", 2)
			var se *apperrors.StandardError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
		})
	}
}

func TestBackoff(t *testing.T) {
	rc := &RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, backoff(rc, 0))
	assert.Equal(t, 4*time.Second, backoff(rc, 2))
	assert.Equal(t, 5*time.Second, backoff(rc, 4))
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.CamundaConfig{BrokerAddress: "zeebe:26500", RequestTimeout: 1500})
	assert.Equal(t, "zeebe:26500", cfg.GatewayAddress)
	assert.True(t, cfg.UsePlaintextConnection)
	assert.Equal(t, 1500*time.Millisecond, cfg.RequestTimeout)
}

// ==========================
// Process definition
// ==========================

func TestProcessXML(t *testing.T) {
	data, err := ProcessXML("signups.send_welcome_email", 6)
	require.NoError(t, err)

	var doc struct {
		Process struct {
			ID      string `xml:"id,attr"`
			Service struct {
				Definition struct {
					Type    string `xml:"type,attr"`
					Retries string `xml:"retries,attr"`
				} `xml:"extensionElements>taskDefinition"`
			} `xml:"serviceTask"`
		} `xml:"process"`
	}
	require.NoError(t, xml.Unmarshal(data, &doc))
	assert.Equal(t, "task-signups.send_welcome_email", doc.Process.ID)
	assert.Equal(t, "signups.send_welcome_email", doc.Process.Service.Definition.Type)
	assert.Equal(t, "6", doc.Process.Service.Definition.Retries)

	_, err = ProcessXML("", 1)
	assert.Error(t, err)
}

// ==========================
// Job outcome
// ==========================

func TestJobOutcome(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		retries  int32
		expected outcome
	}{
		{name: "success completes", expected: outcome{complete: true}},
		{name: "terminal error completes", err: errors.New("failed"), retries: 3, expected: outcome{complete: true}},
		{
			name:     "retry fails with backoff",
			err:      &orchestrator.RetryError{Delay: 2 * time.Second, Err: errors.New("busy")},
			retries:  3,
			expected: outcome{retries: 2, backoff: 2 * time.Second, message: "retry in 2s: busy"},
		},
		{
			name:     "retries never go negative",
			err:      &orchestrator.RetryError{Err: errors.New("busy")},
			retries:  0,
			expected: outcome{retries: 0, message: "retry in 0s: busy"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, jobOutcome(tt.err, tt.retries))
		})
	}
}

func TestRunIDFromVariables(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name      string
		variables string
		wantErr   bool
	}{
		{"present", `{"` + runIDVariable + `":"` + id.String() + `"}`, false},
		{"missing", `{"other":1}`, true},
		{"not a uuid", `{"` + runIDVariable + `":"nope"}`, true},
		{"not json", `{`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := entities.Job{ActivatedJob: &pb.ActivatedJob{Variables: tt.variables}}
			got, err := runIDFromVariables(job)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, got)
		})
	}
}

func TestBroker_JobsActivePerTask(t *testing.T) {
	b := NewBroker(nil, 0, time.Second, zap.NewNop())

	assert.Equal(t, 10, b.jobsActive(&orchestrator.Task{Key: "chaos.ping"}))
	assert.Equal(t, 2, b.jobsActive(&orchestrator.Task{Key: "chaos.ping", Concurrency: 2}))

	b = NewBroker(nil, 4, time.Second, zap.NewNop())
	assert.Equal(t, 4, b.jobsActive(&orchestrator.Task{Key: "signups.populate_workspace"}))
}
