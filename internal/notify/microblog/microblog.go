// Package microblog delivers alerts as status posts to a
// character-constrained microblog API.
package microblog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"quakewatch/internal/format"
	"quakewatch/internal/pipeline"
	"quakewatch/internal/rules"
)

// statusPost is the JSON body for creating a post.
type statusPost struct {
	Text string `json:"text"`
}

// Sender implements microblog delivery via a token-authenticated
// status-post API.
type Sender struct {
	httpClient *http.Client
	token      string
}

// NewSender creates a microblog sender. The bearer token comes from the
// environment; the decision core never sees it.
func NewSender(token string) *Sender {
	return &Sender{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		token: token,
	}
}

// Type returns the channel type this sender handles.
func (s *Sender) Type() rules.ChannelType {
	return rules.TypeMicroblog
}

// Send creates a status post with the rendered message. Messages over the
// platform cap are rejected rather than silently clipped; the formatter
// guarantees the cap, so an oversized message is a bug upstream.
func (s *Sender) Send(ctx context.Context, target string, intent *pipeline.Intent) error {
	if target == "" {
		return fmt.Errorf("microblog API URL is required")
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return fmt.Errorf("invalid microblog API URL: %q", target)
	}
	if n := len([]rune(intent.Message)); n > format.MicroblogLimit {
		return fmt.Errorf("invalid post: %d characters exceeds the %d cap", n, format.MicroblogLimit)
	}

	body, err := json.Marshal(statusPost{Text: intent.Message})
	if err != nil {
		return fmt.Errorf("failed to marshal status post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create status post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to create status post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("microblog API returned status %d", resp.StatusCode)
	}

	slog.Info("Delivered microblog alert",
		"intent_id", intent.IntentID,
		"channel", intent.ChannelName,
		"event_id", intent.EventID,
	)
	return nil
}
