package scoring

import "strings"

// Level is the categorical risk outcome. The set is closed and ordered by
// severity: Low < Medium < High.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// Classify maps an accumulated rule score onto a level. The mapping is total:
// every integer lands in exactly one band.
func Classify(score int) Level {
	switch {
	case score >= 6:
		return LevelHigh
	case score >= 3:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ParseLevel resolves a label emitted by an external predictor onto the
// closed level set, ignoring case and surrounding whitespace.
func ParseLevel(value string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "low":
		return LevelLow, true
	case "medium":
		return LevelMedium, true
	case "high":
		return LevelHigh, true
	default:
		return "", false
	}
}
