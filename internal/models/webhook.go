package models

import "encoding/json"

// WebhookHeaders are the GitHub delivery headers of a webhook request.
type WebhookHeaders struct {
	Event     string `json:"event"`
	Delivery  string `json:"delivery"`
	Signature string `json:"signature,omitempty"`
}

type Repository struct {
	FullName string `json:"full_name" validate:"required"`
	Name     string `json:"name,omitempty"`
	Private  bool   `json:"private,omitempty"`
	HTMLURL  string `json:"html_url,omitempty"`
}

type Sender struct {
	Login string `json:"login,omitempty"`
}

// WebhookEvent is the subset of a GitHub event payload the demo reads.
// Raw keeps the full payload.
type WebhookEvent struct {
	Action     string          `json:"action,omitempty"`
	Repository Repository      `json:"repository" validate:"required"`
	Sender     Sender          `json:"sender,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// WebhookRequest is one received webhook delivery.
type WebhookRequest struct {
	Headers WebhookHeaders `json:"headers"`
	Event   WebhookEvent   `json:"event" validate:"required"`
}

// ParseWebhookEvent decodes a GitHub payload keeping the raw bytes.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookEvent{}, err
	}
	ev.Raw = append(json.RawMessage(nil), body...)
	return ev, nil
}
