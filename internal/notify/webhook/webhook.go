// Package webhook delivers alerts via HTTP POST to incoming-webhook URLs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"quakewatch/internal/pipeline"
	"quakewatch/internal/rules"
)

// payload is the JSON body posted to the webhook. Slack-compatible.
type payload struct {
	Text string `json:"text"`
}

// Sender implements webhook delivery via HTTP POST.
type Sender struct {
	httpClient *http.Client
}

// NewSender creates a new webhook sender.
func NewSender() *Sender {
	return &Sender{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Type returns the channel type this sender handles.
func (s *Sender) Type() rules.ChannelType {
	return rules.TypeWebhook
}

// Send posts the rendered message to the webhook URL.
func (s *Sender) Send(ctx context.Context, target string, intent *pipeline.Intent) error {
	if target == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !isValidURL(target) {
		return fmt.Errorf("invalid webhook URL: %q (must be an HTTP/HTTPS URL)", target)
	}

	body, err := json.Marshal(payload{Text: intent.Message})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook to %s: %w", maskURL(target), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	slog.Info("Delivered webhook alert",
		"intent_id", intent.IntentID,
		"channel", intent.ChannelName,
		"event_id", intent.EventID,
	)
	return nil
}

// isValidURL checks if a string is a valid HTTP/HTTPS URL.
func isValidURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// maskURL masks the secret path of a webhook URL for logging.
func maskURL(url string) string {
	if len(url) > 50 {
		return url[:30] + "..." + url[len(url)-10:]
	}
	return url
}
