// Package rules evaluates per-channel eligibility of seismic events.
// Evaluation is a pure conjunction over a channel's configured predicate.
package rules

import (
	"quakewatch/internal/event"
	"quakewatch/internal/geo"
)

// ChannelType is the closed set of delivery mechanisms.
type ChannelType string

const (
	// TypeWebhook is a rich HTTP-POST channel with no length limit.
	TypeWebhook ChannelType = "webhook"
	// TypeMicroblog is a character-capped public channel.
	TypeMicroblog ChannelType = "microblog"
	// TypeMessaging is a mobile-messaging channel with moderate formatting.
	TypeMessaging ChannelType = "messaging"
)

// Valid reports whether t is a known channel type.
func (t ChannelType) Valid() bool {
	switch t {
	case TypeWebhook, TypeMicroblog, TypeMessaging:
		return true
	}
	return false
}

// Spec is a channel's eligibility predicate. All clauses are optional
// except the magnitude floor, which defaults to 0 (any magnitude passes).
type Spec struct {
	MinMagnitude float64  `yaml:"min_magnitude"`
	MaxMagnitude *float64 `yaml:"max_magnitude"` // nil for no ceiling
	Region       string   `yaml:"region"`        // region name, empty for none
	POIs         []string `yaml:"pois"`          // point-of-interest names

	// Special conditions that satisfy the magnitude clause on their own.
	// The location clause still applies.
	AlertOnTsunami bool `yaml:"alert_on_tsunami"`
	AlertOnFelt    bool `yaml:"alert_on_felt"`
	FeltThreshold  int  `yaml:"felt_threshold"`
}

// Channel is a configured notification channel. DeliveryRef and
// TestDeliveryRef are opaque to the decision core; the shell resolves
// them into real delivery targets. TestDeliveryRef, when set, is the only
// target test intents may reach.
type Channel struct {
	Name            string      `yaml:"name"`
	Type            ChannelType `yaml:"type"`
	Rules           Spec        `yaml:"rules"`
	DeliveryRef     string      `yaml:"delivery_ref"`
	TestDeliveryRef string      `yaml:"test_delivery_ref"`
}

// Evaluate reports whether the event is eligible for the channel.
// Pure and total; the magnitude clause is checked first as the cheapest.
// Region and POI references are resolved against the supplied maps;
// unresolved references never match (config validation rejects them at
// load time, so hitting one here means a stale configuration set).
func Evaluate(ev event.SeismicEvent, ch Channel, regions map[string]geo.Region, pois map[string]geo.PointOfInterest) bool {
	if !magnitudeClause(ev, ch.Rules) {
		return false
	}
	if !regionClause(ev, ch.Rules, regions) {
		return false
	}
	return poiClause(ev, ch.Rules, pois)
}

// magnitudeClause checks the magnitude floor and ceiling. Special
// conditions (tsunami warning, felt-report threshold) satisfy the clause
// regardless of magnitude.
func magnitudeClause(ev event.SeismicEvent, r Spec) bool {
	if r.AlertOnTsunami && ev.Tsunami {
		return true
	}
	if r.AlertOnFelt && ev.HasFelt && ev.FeltReports >= r.FeltThreshold {
		return true
	}
	if ev.Magnitude < r.MinMagnitude {
		return false
	}
	if r.MaxMagnitude != nil && ev.Magnitude > *r.MaxMagnitude {
		return false
	}
	return true
}

// regionClause passes when no region is referenced, or when the event
// falls within the referenced region's bounds.
func regionClause(ev event.SeismicEvent, r Spec, regions map[string]geo.Region) bool {
	if r.Region == "" {
		return true
	}
	region, ok := regions[r.Region]
	return ok && region.Bounds.Contains(ev.Latitude, ev.Longitude)
}

// poiClause passes when no points of interest are referenced, or when the
// event is within at least one referenced POI's alerting radius.
func poiClause(ev event.SeismicEvent, r Spec, pois map[string]geo.PointOfInterest) bool {
	if len(r.POIs) == 0 {
		return true
	}
	for _, name := range r.POIs {
		if poi, ok := pois[name]; ok && poi.WithinRadius(ev.Latitude, ev.Longitude) {
			return true
		}
	}
	return false
}

// EligibleChannels returns the subset of channels the event qualifies for,
// preserving the configured order.
func EligibleChannels(ev event.SeismicEvent, channels []Channel, regions map[string]geo.Region, pois map[string]geo.PointOfInterest) []Channel {
	var out []Channel
	for _, ch := range channels {
		if Evaluate(ev, ch, regions, pois) {
			out = append(out, ch)
		}
	}
	return out
}
