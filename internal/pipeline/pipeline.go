package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"quakewatch/internal/dedup"
	"quakewatch/internal/event"
	"quakewatch/internal/format"
	"quakewatch/internal/geo"
	"quakewatch/internal/ratelimit"
	"quakewatch/internal/rules"
)

// nearbyContextKm bounds how far a point of interest may be from an event
// and still appear as message context.
const nearbyContextKm = 100.0

// Intent is a fully-formatted, channel-targeted message ready for
// delivery, not yet confirmed sent. DeliveryRef and TestDeliveryRef are
// opaque; the shell resolves them. Test intents must only ever reach the
// test ref.
// Delivery refs never appear in serialized intents; downstream consumers
// get routing metadata, not targets.
type Intent struct {
	IntentID        string            `json:"intent_id"`
	EventID         string            `json:"event_id"`
	ChannelName     string            `json:"channel"`
	ChannelType     rules.ChannelType `json:"channel_type"`
	DeliveryRef     string            `json:"-"`
	TestDeliveryRef string            `json:"-"`
	Message         string            `json:"message"`
	IsTest          bool              `json:"is_test"`
}

// ChannelError is a per-channel diagnostic. One channel's failure never
// blocks the others.
type ChannelError struct {
	Channel string
	Err     string
}

// Summary describes one run. It is always producible, even when some
// channels failed.
type Summary struct {
	RunID         string
	EventsSeen    int
	Malformed     int
	Deduplicated  int // (event, channel) pairs suppressed by existing records
	RateLimited   int
	Emitted       int
	ChannelErrors []ChannelError
}

func (s Summary) String() string {
	return fmt.Sprintf("seen=%d malformed=%d deduplicated=%d rate_limited=%d emitted=%d channel_errors=%d",
		s.EventsSeen, s.Malformed, s.Deduplicated, s.RateLimited, s.Emitted, len(s.ChannelErrors))
}

// Result is the output of one pipeline invocation.
type Result struct {
	Intents []Intent
	Summary Summary
}

// Request is one batch of raw feed records to process. When IsTest is set
// every emitted intent is flagged and no dedup records are written, so
// manual verification never pollutes production dedup state.
type Request struct {
	Raw    []json.RawMessage
	IsTest bool
}

// Pipeline holds the configuration set for repeated invocations. The
// pipeline itself keeps no mutable state between runs; the dedup store is
// the only persistence.
type Pipeline struct {
	store    DedupStore
	channels []rules.Channel
	regions  map[string]geo.Region
	pois     map[string]geo.PointOfInterest
	limits   ratelimit.Config
	now      func() time.Time
}

// New creates a pipeline over the given configuration set and dedup store.
func New(store DedupStore, channels []rules.Channel, regions map[string]geo.Region, pois map[string]geo.PointOfInterest, limits ratelimit.Config) *Pipeline {
	return &Pipeline{
		store:    store,
		channels: channels,
		regions:  regions,
		pois:     pois,
		limits:   limits,
		now:      time.Now,
	}
}

// Run processes one raw batch end to end: normalize, filter against the
// dedup snapshot, evaluate per-channel rules, format, mark sent, emit.
//
// Dedup records are written before the intent is handed to delivery. A
// crash between the write and the delivery attempt loses that one send; a
// crash in the other order would duplicate it on retry. Losing beats
// spamming public channels, so mark-first is deliberate.
//
// The only fatal error is an unreachable dedup store: without a reliable
// snapshot the run would risk duplicate production alerts.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	summary := Summary{RunID: uuid.New().String(), EventsSeen: len(req.Raw)}

	events, skipped := event.NormalizeBatch(req.Raw)
	summary.Malformed = skipped
	if skipped > 0 {
		slog.Warn("Skipped malformed feed records", "run_id", summary.RunID, "skipped", skipped)
	}

	snapshot, err := p.loadSnapshot(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("dedup store unavailable: %w", err)
	}

	limiter := ratelimit.New(p.limits)
	result := &Result{}

	// Channels are processed independently: a misconfigured channel is
	// skipped with a diagnostic, never aborting the run.
	for _, ch := range p.channels {
		if err := validateChannel(ch); err != nil {
			summary.ChannelErrors = append(summary.ChannelErrors, ChannelError{Channel: ch.Name, Err: err.Error()})
			slog.Error("Skipping invalid channel", "run_id", summary.RunID, "channel", ch.Name, "error", err)
			continue
		}
		p.runChannel(ctx, req, ch, events, snapshot, limiter, result, &summary)
	}

	result.Summary = summary
	return result, nil
}

// loadSnapshot looks up every candidate (event, channel) key in one store
// round trip.
func (p *Pipeline) loadSnapshot(ctx context.Context, events []event.SeismicEvent) (dedup.Snapshot, error) {
	ids := make([]string, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	names := make([]string, 0, len(p.channels))
	for _, ch := range p.channels {
		names = append(names, ch.Name)
	}

	known, err := p.store.Lookup(ctx, dedup.KeysFor(ids, names))
	if err != nil {
		return nil, err
	}
	return dedup.NewSnapshot(known), nil
}

// runChannel evaluates and emits intents for a single channel.
func (p *Pipeline) runChannel(ctx context.Context, req Request, ch rules.Channel, events []event.SeismicEvent, snapshot dedup.Snapshot, limiter *ratelimit.Limiter, result *Result, summary *Summary) {
	for _, ev := range events {
		if !snapshot.IsNew(ev.ID, ch.Name) {
			summary.Deduplicated++
			continue
		}
		if !rules.Evaluate(ev, ch, p.regions, p.pois) {
			continue
		}

		allowed, violation := limiter.Allow(ch.Name)
		if !allowed {
			summary.RateLimited++
			slog.Warn("Alert suppressed by rate limit",
				"run_id", summary.RunID, "channel", ch.Name, "event_id", ev.ID, "reason", violation.String())
			continue
		}

		msg := format.FormatWithNearby(ev, ch.Type, format.Nearby(ev, p.channelPOIs(ch), nearbyContextKm))

		// Mark before emission: at most one intent per (event, channel),
		// even across overlapping invocations.
		if !req.IsTest {
			rec := snapshot.MarkSent(ev.ID, ch.Name, p.now())
			inserted, err := p.store.Insert(ctx, rec)
			if err != nil {
				summary.ChannelErrors = append(summary.ChannelErrors, ChannelError{
					Channel: ch.Name,
					Err:     fmt.Sprintf("mark sent for event %s: %v", ev.ID, err),
				})
				slog.Error("Failed to mark event sent, withholding intent",
					"run_id", summary.RunID, "channel", ch.Name, "event_id", ev.ID, "error", err)
				continue
			}
			if !inserted {
				// A concurrent invocation claimed this pair first.
				summary.Deduplicated++
				slog.Debug("Pair already claimed, skipping",
					"run_id", summary.RunID, "channel", ch.Name, "event_id", ev.ID)
				continue
			}
		}

		result.Intents = append(result.Intents, Intent{
			IntentID:        uuid.New().String(),
			EventID:         ev.ID,
			ChannelName:     ch.Name,
			ChannelType:     ch.Type,
			DeliveryRef:     ch.DeliveryRef,
			TestDeliveryRef: ch.TestDeliveryRef,
			Message:         msg,
			IsTest:          req.IsTest,
		})
		summary.Emitted++

		slog.Info("Emitted dispatch intent",
			"run_id", summary.RunID,
			"channel", ch.Name,
			"event_id", ev.ID,
			"magnitude", ev.Magnitude,
			"is_test", req.IsTest,
		)
	}
}

// channelPOIs resolves the channel's POI references for message context.
func (p *Pipeline) channelPOIs(ch rules.Channel) []geo.PointOfInterest {
	var out []geo.PointOfInterest
	for _, name := range ch.Rules.POIs {
		if poi, ok := p.pois[name]; ok {
			out = append(out, poi)
		}
	}
	return out
}

func validateChannel(ch rules.Channel) error {
	if ch.Name == "" {
		return fmt.Errorf("channel name is empty")
	}
	if !ch.Type.Valid() {
		return fmt.Errorf("unknown channel type %q", ch.Type)
	}
	return nil
}
