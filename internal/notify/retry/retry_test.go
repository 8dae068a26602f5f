package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "timeout", err: errors.New("request timeout"), want: true},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "rate limited", err: errors.New("rate limit exceeded"), want: true},
		{name: "server error", err: errors.New("webhook returned status 503"), want: true},
		{name: "bad request", err: errors.New("webhook returned status 400"), want: false},
		{name: "unauthorized", err: errors.New("unauthorized"), want: false},
		{name: "invalid payload", err: errors.New("invalid webhook URL"), want: false},
		{name: "unknown error", err: errors.New("something odd"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(), "test", func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetry_RetriesTransient(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(), "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetry_StopsOnPermanent(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(), "test", func() error {
		calls++
		return errors.New("invalid webhook URL")
	})
	if err == nil {
		t.Fatal("WithRetry() error = nil, want permanent error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries on permanent errors)", calls)
	}
}

func TestWithRetry_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(), "test", func() error {
		calls++
		return errors.New("timeout")
	})
	if err == nil {
		t.Fatal("WithRetry() error = nil, want exhausted error")
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (initial + 3 retries)", calls)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, fastConfig(), "test", func() error {
		return errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WithRetry() error = %v, want context.Canceled", err)
	}
}
