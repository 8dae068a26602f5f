// Package event defines the canonical seismic event model and the
// normalization of raw feed records into it.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"quakewatch/internal/geo"
)

// ErrMalformedEvent indicates a raw feed record missing required fields or
// failing range validation. Malformed records are skipped, not fatal to a
// batch.
var ErrMalformedEvent = errors.New("malformed event record")

// AlertLevel is a PAGER-style severity reported by the feed.
type AlertLevel string

const (
	AlertGreen  AlertLevel = "green"
	AlertYellow AlertLevel = "yellow"
	AlertOrange AlertLevel = "orange"
	AlertRed    AlertLevel = "red"
)

// SeismicEvent is the canonical, immutable representation of one seismic
// event. ID is stable across polling cycles for the same physical event
// and is the backbone of the dedup key.
type SeismicEvent struct {
	ID            string
	Magnitude     float64
	Place         string
	OccurredAt    time.Time
	Latitude      float64
	Longitude     float64
	DepthKm       float64
	URL           string
	FeltReports   int // 0 when absent
	HasFelt       bool
	AlertLevel    AlertLevel // empty when absent
	Tsunami       bool
	MagnitudeType string
	HasDetailMap  bool
}

// rawFeature mirrors the GeoJSON feature shape published by the feed.
type rawFeature struct {
	ID         string `json:"id"`
	Properties struct {
		Mag     *float64 `json:"mag"`
		Place   string   `json:"place"`
		Time    *int64   `json:"time"` // milliseconds since epoch
		URL     string   `json:"url"`
		Felt    *int     `json:"felt"`
		Alert   string   `json:"alert"`
		Tsunami int      `json:"tsunami"`
		MagType string   `json:"magType"`
		Types   string   `json:"types"`
	} `json:"properties"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
	} `json:"geometry"`
}

// Normalize parses and validates a single raw feed record.
// Returns ErrMalformedEvent (wrapped with detail) when a required field is
// missing or out of range.
func Normalize(raw json.RawMessage) (SeismicEvent, error) {
	var f rawFeature
	if err := json.Unmarshal(raw, &f); err != nil {
		return SeismicEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	if f.ID == "" {
		return SeismicEvent{}, fmt.Errorf("%w: missing id", ErrMalformedEvent)
	}
	if f.Properties.Mag == nil {
		return SeismicEvent{}, fmt.Errorf("%w: missing magnitude (id=%s)", ErrMalformedEvent, f.ID)
	}
	mag := *f.Properties.Mag
	if math.IsNaN(mag) || math.IsInf(mag, 0) {
		return SeismicEvent{}, fmt.Errorf("%w: magnitude not finite (id=%s)", ErrMalformedEvent, f.ID)
	}
	if f.Properties.Time == nil {
		return SeismicEvent{}, fmt.Errorf("%w: missing time (id=%s)", ErrMalformedEvent, f.ID)
	}
	if len(f.Geometry.Coordinates) < 3 {
		return SeismicEvent{}, fmt.Errorf("%w: missing coordinates (id=%s)", ErrMalformedEvent, f.ID)
	}

	lon, lat, depth := f.Geometry.Coordinates[0], f.Geometry.Coordinates[1], f.Geometry.Coordinates[2]
	if !geo.ValidCoordinates(lat, lon) {
		return SeismicEvent{}, fmt.Errorf("%w: coordinates out of range (id=%s lat=%v lon=%v)",
			ErrMalformedEvent, f.ID, lat, lon)
	}

	place := f.Properties.Place
	if place == "" {
		place = "Unknown location"
	}

	magType := f.Properties.MagType
	if magType == "" {
		magType = "ml"
	}

	ev := SeismicEvent{
		ID:            f.ID,
		Magnitude:     mag,
		Place:         place,
		OccurredAt:    time.UnixMilli(*f.Properties.Time).UTC(),
		Latitude:      lat,
		Longitude:     lon,
		DepthKm:       depth,
		URL:           f.Properties.URL,
		AlertLevel:    AlertLevel(f.Properties.Alert),
		Tsunami:       f.Properties.Tsunami != 0,
		MagnitudeType: magType,
		HasDetailMap:  strings.Contains(f.Properties.Types, "shakemap"),
	}
	if f.Properties.Felt != nil && *f.Properties.Felt >= 0 {
		ev.FeltReports = *f.Properties.Felt
		ev.HasFelt = true
	}
	return ev, nil
}

// NormalizeBatch normalizes every record in a raw batch, dropping malformed
// ones. The second return value is the count of skipped records.
func NormalizeBatch(raws []json.RawMessage) ([]SeismicEvent, int) {
	events := make([]SeismicEvent, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		ev, err := Normalize(raw)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped
}
