// Package format renders channel-appropriate message bodies from eligible
// events. Rendering is deterministic and pure: identical inputs always
// produce identical output.
package format

import (
	"fmt"
	"sort"
	"strings"

	"quakewatch/internal/event"
	"quakewatch/internal/geo"
	"quakewatch/internal/rules"
)

// MicroblogLimit is the hard character cap for microblog renderings.
const MicroblogLimit = 280

// detailMapURL is the event-page detail map, present only when the feed
// reports map products for the event.
const detailMapURL = "https://earthquake.usgs.gov/earthquakes/eventpage/%s/shakemap"

// Proximity pairs a point of interest with its distance to an event.
type Proximity struct {
	POI        geo.PointOfInterest
	DistanceKm float64
}

// Nearby returns POIs within maxKm of the event, sorted nearest first.
// Ties are broken by name so the result is deterministic.
func Nearby(ev event.SeismicEvent, pois []geo.PointOfInterest, maxKm float64) []Proximity {
	var out []Proximity
	for _, poi := range pois {
		d := geo.DistanceKm(ev.Latitude, ev.Longitude, poi.Lat, poi.Lon)
		if d <= maxKm {
			out = append(out, Proximity{POI: poi, DistanceKm: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].POI.Name < out[j].POI.Name
	})
	return out
}

// Format renders the event for the given channel type with no POI context.
func Format(ev event.SeismicEvent, t rules.ChannelType) string {
	return FormatWithNearby(ev, t, nil)
}

// FormatWithNearby renders the event for the given channel type, including
// nearby point-of-interest context where the rendering has room for it.
func FormatWithNearby(ev event.SeismicEvent, t rules.ChannelType, nearby []Proximity) string {
	switch t {
	case rules.TypeMicroblog:
		return formatMicroblog(ev, nearby)
	case rules.TypeMessaging:
		return formatMessaging(ev, nearby)
	default:
		return formatWebhook(ev, nearby)
	}
}

// formatWebhook builds the rich multi-line rendering. No length limit.
func formatWebhook(ev event.SeismicEvent, nearby []Proximity) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*M%.1f - %s*\n", ev.Magnitude, ev.Place)
	fmt.Fprintf(&sb, "Severity: %s\n", event.SeverityLabel(ev.Magnitude))
	fmt.Fprintf(&sb, "Depth: %.1f km\n", ev.DepthKm)
	fmt.Fprintf(&sb, "Time: %s\n", ev.OccurredAt.UTC().Format("2006-01-02 15:04:05 UTC"))

	if ev.Tsunami {
		sb.WriteString("🌊 *TSUNAMI WARNING ISSUED*\n")
	}
	if ev.AlertLevel != "" {
		fmt.Fprintf(&sb, "%s PAGER Alert Level: %s\n",
			event.AlertLevelEmoji(ev.AlertLevel), strings.ToUpper(string(ev.AlertLevel)))
	}
	if ev.HasFelt {
		fmt.Fprintf(&sb, "👥 Felt by %d people\n", ev.FeltReports)
	}

	if len(nearby) > 0 {
		sb.WriteString("Nearby locations:\n")
		for _, p := range nearby {
			fmt.Fprintf(&sb, "• %s: %.1f km away\n", p.POI.Name, p.DistanceKm)
		}
	}

	if ev.URL != "" {
		fmt.Fprintf(&sb, "<%s|View details>\n", ev.URL)
	}
	if ev.HasDetailMap {
		fmt.Fprintf(&sb, "<"+detailMapURL+"|Shakemap>\n", ev.ID)
	}

	return strings.TrimRight(sb.String(), "\n")
}

// formatMicroblog builds the compact single-post rendering, hard-capped at
// MicroblogLimit characters. The magnitude figure and the link always
// survive; optional lines are dropped first, and only the place
// description is ever truncated.
func formatMicroblog(ev event.SeismicEvent, nearby []Proximity) string {
	var optional []string
	if s := specialsLine(ev); s != "" {
		optional = append(optional, s)
	}
	optional = append(optional, infoLine(ev, nearby))

	for n := len(optional); n >= 0; n-- {
		msg := assembleMicroblog(ev, ev.Place, optional[:n])
		if len([]rune(msg)) <= MicroblogLimit {
			return msg
		}
	}

	// Even the bare headline plus link overflows: truncate the place.
	base := assembleMicroblog(ev, "", nil)
	budget := MicroblogLimit - len([]rune(base)) - 1
	place := []rune(ev.Place)
	if budget < 0 {
		budget = 0
	}
	if budget < len(place) {
		place = place[:budget]
	}
	return assembleMicroblog(ev, string(place)+"…", nil)
}

func assembleMicroblog(ev event.SeismicEvent, place string, optional []string) string {
	lines := []string{microblogHeadline(ev, place)}
	lines = append(lines, optional...)
	if ev.URL != "" {
		lines = append(lines, ev.URL)
	}
	return strings.Join(lines, "\n")
}

func microblogHeadline(ev event.SeismicEvent, place string) string {
	prefix := ""
	if ev.Magnitude >= 6.0 {
		prefix = "MAJOR "
	} else if ev.Magnitude >= 5.0 {
		prefix = "STRONG "
	}
	return fmt.Sprintf("%sM%.1f earthquake - %s", prefix, ev.Magnitude, place)
}

// specialsLine renders high-importance flags, or "" when there are none.
func specialsLine(ev event.SeismicEvent) string {
	var parts []string
	if ev.Tsunami {
		parts = append(parts, "TSUNAMI WARNING")
	}
	if ev.AlertLevel == event.AlertOrange || ev.AlertLevel == event.AlertRed {
		parts = append(parts, fmt.Sprintf("PAGER: %s", strings.ToUpper(string(ev.AlertLevel))))
	}
	if ev.HasFelt && ev.FeltReports >= 100 {
		parts = append(parts, fmt.Sprintf("Felt by %d+ people", ev.FeltReports))
	}
	return strings.Join(parts, " | ")
}

func infoLine(ev event.SeismicEvent, nearby []Proximity) string {
	parts := []string{fmt.Sprintf("Depth: %.0fkm", ev.DepthKm)}
	if len(nearby) > 0 {
		parts = append(parts, fmt.Sprintf("%.0fkm from %s", nearby[0].DistanceKm, nearby[0].POI.Name))
	}
	return strings.Join(parts, " | ")
}

// formatMessaging builds the mobile-messaging rendering: emoji-prefixed
// severity header and a short multi-field body.
func formatMessaging(ev event.SeismicEvent, nearby []Proximity) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s *%s Earthquake*\n\n", event.SeverityEmoji(ev.Magnitude), event.SeverityLabel(ev.Magnitude))
	fmt.Fprintf(&sb, "*Magnitude:* %.1f %s\n", ev.Magnitude, ev.MagnitudeType)
	fmt.Fprintf(&sb, "*Location:* %s\n", ev.Place)
	fmt.Fprintf(&sb, "*Depth:* %.1f km\n", ev.DepthKm)
	fmt.Fprintf(&sb, "*Time:* %s\n", ev.OccurredAt.UTC().Format("Jan 2, 2006 at 15:04 UTC"))

	if ev.Tsunami {
		sb.WriteString("\n🌊 *TSUNAMI WARNING ISSUED*\n")
	}
	if ev.AlertLevel != "" {
		fmt.Fprintf(&sb, "%s PAGER Alert: %s\n",
			event.AlertLevelEmoji(ev.AlertLevel), strings.ToUpper(string(ev.AlertLevel)))
	}
	if ev.HasFelt && ev.FeltReports >= 10 {
		fmt.Fprintf(&sb, "👥 Felt by %d people\n", ev.FeltReports)
	}

	if len(nearby) > 0 {
		sb.WriteString("\n*Nearby locations:*\n")
		limit := len(nearby)
		if limit > 3 {
			limit = 3
		}
		for _, p := range nearby[:limit] {
			fmt.Fprintf(&sb, "• %s: %.1f km away\n", p.POI.Name, p.DistanceKm)
		}
	}

	if ev.URL != "" {
		fmt.Fprintf(&sb, "\n🔗 %s", ev.URL)
	}

	return strings.TrimRight(sb.String(), "\n")
}
