// Package ask posts a question to the monitoring API and polls for the answer.
package ask

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	commonhttp "task-recipes/internal/common/http"
)

const (
	DefaultQuestion = "Tell me that I need to ask a question, please."
	PollInterval    = 250 * time.Millisecond
)

type Asker struct {
	baseURL string
	client  *commonhttp.Client
	poll    time.Duration
	out     io.Writer
}

func New(baseURL string, out io.Writer) *Asker {
	return &Asker{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  commonhttp.NewClient(30 * time.Second),
		poll:    PollInterval,
		out:     out,
	}
}

// Ask submits question and prints progress until the answer arrives.
func (a *Asker) Ask(ctx context.Context, question string) error {
	if question == "" {
		question = DefaultQuestion
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/question", strings.NewReader(question))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit question: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("submit question: unexpected status %d", resp.StatusCode)
	}

	location, err := a.resolve(resp.Header.Get("Location"))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()
	for {
		done, err := a.check(ctx, location)
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Asker) check(ctx context.Context, location string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return false, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("poll answer: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		var st struct {
			State string `json:"state"`
		}
		_ = json.Unmarshal(body, &st)
		fmt.Fprintf(a.out, "Task is %s\n", st.State)
		return false, nil
	case http.StatusOK:
		fmt.Fprintln(a.out, "Completed!")
		fmt.Fprintln(a.out, string(body))
		return true, nil
	default:
		return false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func (a *Asker) resolve(location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("response has no Location header")
	}
	base, err := url.Parse(a.baseURL + "/")
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("bad Location %q: %w", location, err)
	}
	return base.ResolveReference(ref).String(), nil
}
