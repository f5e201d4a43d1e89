package enums

import "fmt"

// ScoringMode selects the weight profile applied to composite offer scores.
type ScoringMode string

const (
	ScoringModeBalanced ScoringMode = "balanced"
	ScoringModeCost     ScoringMode = "cost"
	ScoringModeQuality  ScoringMode = "quality"
	ScoringModeSpeed    ScoringMode = "speed"
	ScoringModeCashflow ScoringMode = "cashflow"
	ScoringModeCustom   ScoringMode = "custom"
)

var validScoringModes = []ScoringMode{
	ScoringModeBalanced,
	ScoringModeCost,
	ScoringModeQuality,
	ScoringModeSpeed,
	ScoringModeCashflow,
	ScoringModeCustom,
}

// String implements fmt.Stringer.
func (s ScoringMode) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ScoringMode.
func (s ScoringMode) IsValid() bool {
	for _, candidate := range validScoringModes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseScoringMode converts raw input into a ScoringMode.
func ParseScoringMode(value string) (ScoringMode, error) {
	for _, candidate := range validScoringModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid scoring mode %q", value)
}
