// Package notify routes dispatch intents to per-channel-type delivery
// strategies. It owns the one safety invariant the decision core cannot
// enforce itself: test intents are only ever delivered to a channel's
// test target, never to production.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"quakewatch/internal/notify/retry"
	"quakewatch/internal/notify/strategy"
	"quakewatch/internal/pipeline"
)

// DeliveryResult summarizes one dispatch pass.
type DeliveryResult struct {
	Delivered int
	Failed    int
	Skipped   int // test intents with no test target, unknown types
}

// Dispatcher delivers intents using registered strategies.
type Dispatcher struct {
	registry *strategy.Registry
	retryCfg retry.Config
}

// NewDispatcher creates a dispatcher with the given strategies registered.
func NewDispatcher(senders ...strategy.IntentSender) *Dispatcher {
	registry := strategy.NewRegistry()
	for _, s := range senders {
		registry.Register(s)
	}
	return &Dispatcher{
		registry: registry,
		retryCfg: retry.DefaultConfig(),
	}
}

// Dispatch delivers every intent, isolating failures per intent. Delivery
// failures after a successful dedup mark are final: the pair will not be
// retried on the next run. That suppression is the accepted cost of
// mark-before-delivery — no duplicate alerts on public channels, at the
// occasional price of a missed one.
func (d *Dispatcher) Dispatch(ctx context.Context, intents []pipeline.Intent) DeliveryResult {
	var result DeliveryResult

	for i := range intents {
		intent := &intents[i]

		sender, ok := d.registry.Get(intent.ChannelType)
		if !ok {
			slog.Warn("No sender registered for channel type, skipping",
				"channel_type", intent.ChannelType,
				"intent_id", intent.IntentID,
			)
			result.Skipped++
			continue
		}

		target, ok := d.resolveTarget(intent)
		if !ok {
			result.Skipped++
			continue
		}

		operation := fmt.Sprintf("send_%s_%s", intent.ChannelType, intent.IntentID)
		err := retry.WithRetry(ctx, d.retryCfg, operation, func() error {
			return sender.Send(ctx, target, intent)
		})
		if err != nil {
			slog.Error("Failed to deliver intent; pair stays marked, no redelivery",
				"intent_id", intent.IntentID,
				"channel", intent.ChannelName,
				"event_id", intent.EventID,
				"error", err,
			)
			result.Failed++
			continue
		}
		result.Delivered++
	}

	return result
}

// resolveTarget picks the delivery target for an intent. Test intents may
// only go to the channel's test target; without one they are dropped.
func (d *Dispatcher) resolveTarget(intent *pipeline.Intent) (string, bool) {
	if intent.IsTest {
		if intent.TestDeliveryRef == "" {
			slog.Warn("Test intent has no test delivery target, dropping",
				"intent_id", intent.IntentID,
				"channel", intent.ChannelName,
			)
			return "", false
		}
		return intent.TestDeliveryRef, true
	}
	return intent.DeliveryRef, true
}
