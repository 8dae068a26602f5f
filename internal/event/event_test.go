package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func validFeature() string {
	return `{
		"id": "nc001",
		"properties": {
			"mag": 4.2,
			"place": "10km E of San Ramon, CA",
			"time": 1704067200000,
			"url": "https://earthquake.usgs.gov/earthquakes/eventpage/nc001",
			"felt": 25,
			"alert": "green",
			"tsunami": 0,
			"magType": "md",
			"types": ",dyfi,origin,phase-data,shakemap,"
		},
		"geometry": {"coordinates": [-122.1, 37.7, 8.3]}
	}`
}

func TestNormalize(t *testing.T) {
	ev, err := Normalize(json.RawMessage(validFeature()))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if ev.ID != "nc001" {
		t.Errorf("ID = %v, want nc001", ev.ID)
	}
	if ev.Magnitude != 4.2 {
		t.Errorf("Magnitude = %v, want 4.2", ev.Magnitude)
	}
	if ev.Latitude != 37.7 || ev.Longitude != -122.1 {
		t.Errorf("coordinates = (%v, %v), want (37.7, -122.1)", ev.Latitude, ev.Longitude)
	}
	if ev.DepthKm != 8.3 {
		t.Errorf("DepthKm = %v, want 8.3", ev.DepthKm)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !ev.OccurredAt.Equal(want) {
		t.Errorf("OccurredAt = %v, want %v", ev.OccurredAt, want)
	}
	if !ev.HasFelt || ev.FeltReports != 25 {
		t.Errorf("FeltReports = (%v, %v), want (25, true)", ev.FeltReports, ev.HasFelt)
	}
	if ev.AlertLevel != AlertGreen {
		t.Errorf("AlertLevel = %v, want green", ev.AlertLevel)
	}
	if ev.Tsunami {
		t.Error("Tsunami = true, want false")
	}
	if ev.MagnitudeType != "md" {
		t.Errorf("MagnitudeType = %v, want md", ev.MagnitudeType)
	}
	if !ev.HasDetailMap {
		t.Error("HasDetailMap = false, want true")
	}
}

func TestNormalize_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "not json",
			raw:  `{{{`,
		},
		{
			name: "missing id",
			raw:  `{"properties":{"mag":4.2,"time":1704067200000},"geometry":{"coordinates":[-122.1,37.7,8.3]}}`,
		},
		{
			name: "missing magnitude",
			raw:  `{"id":"x1","properties":{"time":1704067200000},"geometry":{"coordinates":[-122.1,37.7,8.3]}}`,
		},
		{
			name: "missing time",
			raw:  `{"id":"x1","properties":{"mag":4.2},"geometry":{"coordinates":[-122.1,37.7,8.3]}}`,
		},
		{
			name: "missing coordinates",
			raw:  `{"id":"x1","properties":{"mag":4.2,"time":1704067200000},"geometry":{"coordinates":[-122.1]}}`,
		},
		{
			name: "latitude out of range",
			raw:  `{"id":"x1","properties":{"mag":4.2,"time":1704067200000},"geometry":{"coordinates":[-122.1,97.7,8.3]}}`,
		},
		{
			name: "longitude out of range",
			raw:  `{"id":"x1","properties":{"mag":4.2,"time":1704067200000},"geometry":{"coordinates":[-222.1,37.7,8.3]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(json.RawMessage(tt.raw))
			if err == nil {
				t.Fatal("Normalize() error = nil, want ErrMalformedEvent")
			}
			if !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("Normalize() error = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

func TestNormalize_Defaults(t *testing.T) {
	raw := `{"id":"x1","properties":{"mag":2.0,"time":1704067200000},"geometry":{"coordinates":[-122.1,37.7,8.3]}}`
	ev, err := Normalize(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if ev.Place != "Unknown location" {
		t.Errorf("Place = %q, want fallback", ev.Place)
	}
	if ev.MagnitudeType != "ml" {
		t.Errorf("MagnitudeType = %q, want ml default", ev.MagnitudeType)
	}
	if ev.HasFelt {
		t.Error("HasFelt = true, want false when felt absent")
	}
	if ev.HasDetailMap {
		t.Error("HasDetailMap = true, want false when types absent")
	}
}

func TestNormalizeBatch(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(validFeature()),
		json.RawMessage(`{"id":"bad"}`),
		json.RawMessage(`not even json`),
	}

	events, skipped := NormalizeBatch(raws)
	if len(events) != 1 {
		t.Errorf("NormalizeBatch() returned %d events, want 1", len(events))
	}
	if skipped != 2 {
		t.Errorf("NormalizeBatch() skipped = %d, want 2", skipped)
	}
}

func TestSeverityLabel(t *testing.T) {
	tests := []struct {
		magnitude float64
		want      string
	}{
		{8.5, "Great"},
		{7.1, "Major"},
		{6.0, "Strong"},
		{5.5, "Moderate"},
		{4.2, "Light"},
		{3.0, "Minor"},
		{1.8, "Micro"},
	}

	for _, tt := range tests {
		if got := SeverityLabel(tt.magnitude); got != tt.want {
			t.Errorf("SeverityLabel(%v) = %v, want %v", tt.magnitude, got, tt.want)
		}
	}
}
