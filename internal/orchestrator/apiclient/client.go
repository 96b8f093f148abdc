// Package apiclient talks to a remote orchestrator API.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "task-recipes/internal/common/errors"
	commonhttp "task-recipes/internal/common/http"
	"task-recipes/internal/orchestrator"

	"github.com/google/uuid"
)

// Client implements orchestrator.Orchestrator over HTTP.
type Client struct {
	baseURL string
	http    *commonhttp.Client
}

var _ orchestrator.Orchestrator = (*Client)(nil)

// New creates a client for baseURL. token is sent as a bearer token when set.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := commonhttp.NewClient(timeout)
	if token != "" {
		hc = hc.WithHeader("Authorization", "Bearer "+token)
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: hc}
}

func (c *Client) Submit(ctx context.Context, taskKey string, params any) (*orchestrator.TaskRun, error) {
	body := map[string]interface{}{"task_key": taskKey}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, apperrors.NewInvalidParametersError(err.Error())
		}
		body["parameters"] = json.RawMessage(raw)
	}

	resp, err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/api/task_runs", body)
	if err != nil {
		return nil, apperrors.NewSubmissionFailedError(err)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}
	var run orchestrator.TaskRun
	if err := resp.DecodeJSON(&run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *Client) ReadTaskRun(ctx context.Context, id uuid.UUID) (*orchestrator.TaskRun, error) {
	resp, err := c.http.DoJSON(ctx, http.MethodGet, c.runURL(id), nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var run orchestrator.TaskRun
	if err := resp.DecodeJSON(&run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *Client) ReadTaskRuns(ctx context.Context, filter orchestrator.TaskRunFilter) ([]*orchestrator.TaskRun, error) {
	resp, err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/api/task_runs/filter", filter)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var runs []*orchestrator.TaskRun
	if err := resp.DecodeJSON(&runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (c *Client) ReadResult(ctx context.Context, id uuid.UUID) (orchestrator.Result, error) {
	resp, err := c.http.DoJSON(ctx, http.MethodGet, c.runURL(id)+"/result", nil)
	if err != nil {
		return orchestrator.Result{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return orchestrator.Result{}, decodeError(resp)
	}
	return orchestrator.Result{ContentType: resp.Header.Get("Content-Type"), Data: resp.Body}, nil
}

func (c *Client) DeleteTaskRun(ctx context.Context, id uuid.UUID) error {
	resp, err := c.http.DoJSON(ctx, http.MethodDelete, c.runURL(id), nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusNoContent {
		return decodeError(resp)
	}
	return nil
}

// QueueStats reads GET /api/queues.
func (c *Client) QueueStats(ctx context.Context) ([]orchestrator.QueueStats, error) {
	resp, err := c.http.DoJSON(ctx, http.MethodGet, c.baseURL+"/api/queues", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var stats []orchestrator.QueueStats
	return stats, resp.DecodeJSON(&stats)
}

func (c *Client) runURL(id uuid.UUID) string {
	return c.baseURL + "/api/task_runs/" + id.String()
}

// decodeError turns an API error response back into the error the local
// client would have returned.
func decodeError(resp *commonhttp.Response) error {
	var body commonhttp.ErrorResponse
	_ = json.Unmarshal(resp.Body, &body)
	message := body.Error
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	switch apperrors.ErrorCode(body.Code) {
	case apperrors.ErrCodeTaskRunNotFound:
		return fmt.Errorf("%w: %s", orchestrator.ErrTaskRunNotFound, message)
	case apperrors.ErrCodeResultNotReady:
		return fmt.Errorf("%w: %s", orchestrator.ErrResultNotReady, message)
	case apperrors.ErrCodeNotFound:
		return fmt.Errorf("%w: %s", orchestrator.ErrResultNotFound, message)
	case apperrors.ErrCodeUnknownTask:
		return apperrors.NewUnknownTaskError(message)
	case apperrors.ErrCodeInvalidParameters:
		return apperrors.NewInvalidParametersError(message)
	case apperrors.ErrCodeSubmissionFailed:
		return apperrors.NewSubmissionFailedError(fmt.Errorf("%s", message))
	case apperrors.ErrCodeStoreUnavailable:
		return apperrors.NewStoreUnavailableError("orchestrator", fmt.Errorf("%s", message))
	}
	return apperrors.NewExternalServiceError("orchestrator", fmt.Errorf("status %d: %s", resp.StatusCode, message))
}
