package interpret

// Severity band labels.
const (
	SeverityMinimal          = "minimal"
	SeverityMild             = "mild"
	SeverityModerate         = "moderate"
	SeverityModeratelySevere = "moderately severe"
	SeveritySevere           = "severe"
	SeverityLow              = "low"
	SeverityHigh             = "high"
	SeverityVeryHigh         = "very high"
)

// PHQ9Severity maps a PHQ-9 total (0–27) to its conventional band.
func PHQ9Severity(score int) string {
	switch {
	case score >= 20:
		return SeveritySevere
	case score >= 15:
		return SeverityModeratelySevere
	case score >= 10:
		return SeverityModerate
	case score >= 5:
		return SeverityMild
	default:
		return SeverityMinimal
	}
}

// GAD7Severity maps a GAD-7 total (0–21) to its conventional band.
func GAD7Severity(score int) string {
	switch {
	case score >= 15:
		return SeveritySevere
	case score >= 10:
		return SeverityModerate
	case score >= 5:
		return SeverityMild
	default:
		return SeverityMinimal
	}
}

// PSS10Severity maps a PSS-10 total (0–40) to low, moderate or high stress.
func PSS10Severity(score int) string {
	switch {
	case score >= 27:
		return SeverityHigh
	case score >= PSS10Threshold:
		return SeverityModerate
	default:
		return SeverityLow
	}
}

// K10Severity maps a K10 total (10–50) to its distress band.
func K10Severity(score int) string {
	switch {
	case score >= 30:
		return SeverityVeryHigh
	case score >= 22:
		return SeverityHigh
	case score >= 16:
		return SeverityModerate
	default:
		return SeverityLow
	}
}
