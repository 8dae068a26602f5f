package event

// SeverityLabel returns a human-readable severity class for a magnitude,
// following the conventional Richter-scale descriptors.
func SeverityLabel(magnitude float64) string {
	switch {
	case magnitude >= 8.0:
		return "Great"
	case magnitude >= 7.0:
		return "Major"
	case magnitude >= 6.0:
		return "Strong"
	case magnitude >= 5.0:
		return "Moderate"
	case magnitude >= 4.0:
		return "Light"
	case magnitude >= 3.0:
		return "Minor"
	default:
		return "Micro"
	}
}

// SeverityEmoji returns an emoji prefix for a magnitude, used by the
// messaging channel rendering.
func SeverityEmoji(magnitude float64) string {
	switch {
	case magnitude >= 7.0:
		return "🚨"
	case magnitude >= 6.0:
		return "⚠️"
	case magnitude >= 5.0:
		return "🔶"
	case magnitude >= 4.0:
		return "🔸"
	default:
		return "🔹"
	}
}

// AlertLevelEmoji returns the color dot for a PAGER alert level.
// Unknown levels map to a white dot.
func AlertLevelEmoji(level AlertLevel) string {
	switch level {
	case AlertGreen:
		return "🟢"
	case AlertYellow:
		return "🟡"
	case AlertOrange:
		return "🟠"
	case AlertRed:
		return "🔴"
	default:
		return "⚪"
	}
}
