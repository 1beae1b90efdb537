package alert

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookPayload is the JSON body posted by WebhookSender.
type WebhookPayload struct {
	ID       string    `json:"id"`
	Camera   string    `json:"camera"`
	Kind     Kind      `json:"type"`
	Details  Details   `json:"details"`
	RaisedAt time.Time `json:"raised_at"`
	Snapshot string    `json:"snapshot,omitempty"` // base64 JPEG
}

// WebhookSender posts alerts as JSON to an HTTP endpoint.
type WebhookSender struct {
	url    string
	camera string
	client *http.Client
}

// NewWebhookSender creates a sender for url. A nil client uses
// http.DefaultClient; the dispatcher bounds each call with its own timeout.
func NewWebhookSender(url, camera string, client *http.Client) *WebhookSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSender{url: url, camera: camera, client: client}
}

func (s *WebhookSender) Name() string { return "webhook" }

func (s *WebhookSender) Send(ctx context.Context, a Alert) error {
	payload := WebhookPayload{
		ID:       a.ID,
		Camera:   s.camera,
		Kind:     a.Kind,
		Details:  a.Details,
		RaisedAt: a.RaisedAt,
	}
	if a.Snapshot != nil {
		jpeg, err := a.Snapshot.EncodeJPEG()
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		payload.Snapshot = base64.StdEncoding.EncodeToString(jpeg)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post alert: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
