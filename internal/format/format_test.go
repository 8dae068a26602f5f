package format

import (
	"strings"
	"testing"
	"time"

	"quakewatch/internal/event"
	"quakewatch/internal/geo"
	"quakewatch/internal/rules"
)

func sampleEvent() event.SeismicEvent {
	return event.SeismicEvent{
		ID:            "nc001",
		Magnitude:     4.2,
		Place:         "10km E of San Ramon, CA",
		OccurredAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Latitude:      37.7,
		Longitude:     -122.1,
		DepthKm:       8.3,
		URL:           "https://earthquake.usgs.gov/earthquakes/eventpage/nc001",
		MagnitudeType: "md",
	}
}

func TestFormat_Deterministic(t *testing.T) {
	ev := sampleEvent()
	for _, ct := range []rules.ChannelType{rules.TypeWebhook, rules.TypeMicroblog, rules.TypeMessaging} {
		first := Format(ev, ct)
		second := Format(ev, ct)
		if first != second {
			t.Errorf("Format(%s) not deterministic", ct)
		}
	}
}

func TestFormatWebhook(t *testing.T) {
	ev := sampleEvent()
	ev.Tsunami = true
	ev.HasFelt = true
	ev.FeltReports = 120
	ev.AlertLevel = event.AlertYellow
	ev.HasDetailMap = true

	got := Format(ev, rules.TypeWebhook)

	for _, want := range []string{
		"M4.2",
		"10km E of San Ramon, CA",
		"Depth: 8.3 km",
		"2024-01-01 00:00:00 UTC",
		"TSUNAMI WARNING",
		"Felt by 120 people",
		"PAGER Alert Level: YELLOW",
		ev.URL,
		"shakemap",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("webhook rendering missing %q:\n%s", want, got)
		}
	}
}

func TestFormatWebhook_OmitsAbsentFields(t *testing.T) {
	got := Format(sampleEvent(), rules.TypeWebhook)

	for _, absent := range []string{"TSUNAMI", "Felt by", "PAGER", "shakemap"} {
		if strings.Contains(got, absent) {
			t.Errorf("webhook rendering should omit %q:\n%s", absent, got)
		}
	}
}

func TestFormatMicroblog_Cap(t *testing.T) {
	tests := []struct {
		name  string
		place string
	}{
		{name: "short place", place: "San Ramon, CA"},
		{name: "long place", place: strings.Repeat("a very long place description ", 20)},
		{name: "multibyte place", place: strings.Repeat("сейсмічна станція спостереження ", 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := sampleEvent()
			ev.Place = tt.place

			got := Format(ev, rules.TypeMicroblog)

			if n := len([]rune(got)); n > MicroblogLimit {
				t.Errorf("microblog rendering is %d chars, cap is %d", n, MicroblogLimit)
			}
			if !strings.Contains(got, "M4.2") {
				t.Errorf("microblog rendering missing magnitude:\n%s", got)
			}
			if !strings.Contains(got, ev.URL) {
				t.Errorf("microblog rendering missing link:\n%s", got)
			}
		})
	}
}

func TestFormatMicroblog_TruncatesOnlyPlace(t *testing.T) {
	ev := sampleEvent()
	ev.Place = strings.Repeat("x", 400)

	got := Format(ev, rules.TypeMicroblog)

	if !strings.HasPrefix(got, "M4.2 earthquake - ") {
		t.Errorf("truncation touched the headline prefix:\n%s", got)
	}
	if !strings.HasSuffix(got, ev.URL) {
		t.Errorf("truncation removed the link:\n%s", got)
	}
	if !strings.Contains(got, "…") {
		t.Errorf("expected ellipsis marking the truncated place:\n%s", got)
	}
}

func TestFormatMicroblog_SeverityPrefix(t *testing.T) {
	tests := []struct {
		magnitude float64
		prefix    string
	}{
		{4.2, "M4.2 earthquake"},
		{5.4, "STRONG M5.4 earthquake"},
		{6.8, "MAJOR M6.8 earthquake"},
	}

	for _, tt := range tests {
		ev := sampleEvent()
		ev.Magnitude = tt.magnitude
		got := Format(ev, rules.TypeMicroblog)
		if !strings.HasPrefix(got, tt.prefix) {
			t.Errorf("Format(M%.1f) = %q, want prefix %q", tt.magnitude, got, tt.prefix)
		}
	}
}

func TestFormatMicroblog_Specials(t *testing.T) {
	ev := sampleEvent()
	ev.Tsunami = true
	ev.AlertLevel = event.AlertRed
	ev.HasFelt = true
	ev.FeltReports = 2500

	got := Format(ev, rules.TypeMicroblog)

	if !strings.Contains(got, "TSUNAMI WARNING | PAGER: RED | Felt by 2500+ people") {
		t.Errorf("microblog specials line wrong:\n%s", got)
	}
}

func TestFormatMessaging(t *testing.T) {
	ev := sampleEvent()
	got := Format(ev, rules.TypeMessaging)

	for _, want := range []string{
		"🔸 *Light Earthquake*",
		"*Magnitude:* 4.2 md",
		"*Location:* 10km E of San Ramon, CA",
		"*Depth:* 8.3 km",
		"Jan 1, 2024 at 00:00 UTC",
		"🔗 " + ev.URL,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("messaging rendering missing %q:\n%s", want, got)
		}
	}
}

func TestFormatWithNearby(t *testing.T) {
	ev := sampleEvent()
	nearby := []Proximity{
		{POI: geo.PointOfInterest{Name: "Office"}, DistanceKm: 12.3},
		{POI: geo.PointOfInterest{Name: "Home"}, DistanceKm: 48.9},
	}

	webhook := FormatWithNearby(ev, rules.TypeWebhook, nearby)
	if !strings.Contains(webhook, "Office: 12.3 km away") || !strings.Contains(webhook, "Home: 48.9 km away") {
		t.Errorf("webhook rendering missing nearby POIs:\n%s", webhook)
	}

	micro := FormatWithNearby(ev, rules.TypeMicroblog, nearby)
	if !strings.Contains(micro, "12km from Office") {
		t.Errorf("microblog rendering missing nearest POI:\n%s", micro)
	}
}

func TestNearby(t *testing.T) {
	ev := sampleEvent()
	pois := []geo.PointOfInterest{
		{Name: "Office", Lat: 37.7749, Lon: -122.4194, RadiusKm: 50},
		{Name: "Far Station", Lat: 45.0, Lon: -100.0, RadiusKm: 50},
		{Name: "Home", Lat: 37.70, Lon: -122.11, RadiusKm: 50},
	}

	got := Nearby(ev, pois, 100)

	if len(got) != 2 {
		t.Fatalf("Nearby() returned %d POIs, want 2", len(got))
	}
	if got[0].POI.Name != "Home" {
		t.Errorf("Nearby()[0] = %s, want Home (nearest first)", got[0].POI.Name)
	}
	if got[1].POI.Name != "Office" {
		t.Errorf("Nearby()[1] = %s, want Office", got[1].POI.Name)
	}
}
