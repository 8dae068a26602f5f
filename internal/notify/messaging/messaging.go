// Package messaging delivers alerts through a mobile-messaging provider
// API (Twilio-style form POST with basic auth).
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quakewatch/internal/pipeline"
	"quakewatch/internal/rules"
)

// Credentials authenticate against the messaging provider. Loaded by the
// shell from the environment, never by the decision core.
type Credentials struct {
	AccountSID string
	AuthToken  string
	From       string
}

// Sender implements mobile-messaging delivery.
type Sender struct {
	httpClient *http.Client
	creds      Credentials
	recipients []string
}

// NewSender creates a messaging sender for a fixed recipient group.
func NewSender(creds Credentials, recipients []string) *Sender {
	return &Sender{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		creds:      creds,
		recipients: recipients,
	}
}

// Type returns the channel type this sender handles.
func (s *Sender) Type() rules.ChannelType {
	return rules.TypeMessaging
}

// Send posts the rendered message to every configured recipient. Delivery
// succeeds if at least one recipient accepted the message.
func (s *Sender) Send(ctx context.Context, target string, intent *pipeline.Intent) error {
	if target == "" {
		return fmt.Errorf("messaging API URL is required")
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return fmt.Errorf("invalid messaging API URL: %q", target)
	}
	if len(s.recipients) == 0 {
		return fmt.Errorf("messaging channel has no recipients")
	}

	var delivered int
	var errs []string
	for _, to := range s.recipients {
		if err := s.sendOne(ctx, target, to, intent.Message); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", to, err))
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return fmt.Errorf("all recipients failed: %s", strings.Join(errs, "; "))
	}
	if len(errs) > 0 {
		slog.Warn("Some message recipients failed",
			"intent_id", intent.IntentID,
			"delivered", delivered,
			"failed", len(errs),
			"errors", strings.Join(errs, "; "),
		)
	}

	slog.Info("Delivered messaging alert",
		"intent_id", intent.IntentID,
		"channel", intent.ChannelName,
		"event_id", intent.EventID,
		"recipients", delivered,
	)
	return nil
}

func (s *Sender) sendOne(ctx context.Context, target, to, message string) error {
	form := url.Values{}
	form.Set("From", s.creds.From)
	form.Set("To", to)
	form.Set("Body", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.creds.AccountSID, s.creds.AuthToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("messaging API returned status %d", resp.StatusCode)
	}
	return nil
}
