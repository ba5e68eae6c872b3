package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// WebhookFormat selects the JSON body posted to the endpoint.
type WebhookFormat string

const (
	// WebhookSlack posts {"text": message}, accepted by Slack incoming
	// webhooks and most chat bridges.
	WebhookSlack WebhookFormat = "slack"
	// WebhookJSON posts the structured alert.
	WebhookJSON WebhookFormat = "json"
)

// WebhookNotifier sends alerts to an HTTP webhook endpoint.
type WebhookNotifier struct {
	url    string
	format WebhookFormat
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
// url: The HTTP endpoint to POST alerts to.
func NewWebhookNotifier(url string, format WebhookFormat) *WebhookNotifier {
	if format == "" {
		format = WebhookSlack
	}
	return &WebhookNotifier{
		url:    url,
		format: format,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookNotifier) payload(alert Alert) any {
	if w.format == WebhookJSON {
		ts := alert.TS
		if ts.IsZero() {
			ts = time.Now()
		}
		return map[string]any{
			"level":   string(alert.Level),
			"kind":    string(alert.Kind),
			"title":   alert.Title,
			"message": alert.Message,
			"ts":      ts.UTC().Format(time.RFC3339Nano),
		}
	}
	return map[string]string{"text": alert.Message}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(w.payload(alert))
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	log.Printf("[webhook] sent %s alert: %s", alert.Kind, alert.Title)
	return nil
}
