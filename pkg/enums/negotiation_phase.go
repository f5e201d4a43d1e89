package enums

import "fmt"

// NegotiationPhase distinguishes rounds run before and after a curveball.
type NegotiationPhase string

const (
	PhaseInitial       NegotiationPhase = "initial"
	PhasePostCurveball NegotiationPhase = "post_curveball"
)

var validNegotiationPhases = []NegotiationPhase{
	PhaseInitial,
	PhasePostCurveball,
}

// String implements fmt.Stringer.
func (p NegotiationPhase) String() string {
	return string(p)
}

// IsValid reports whether the value is a known NegotiationPhase.
func (p NegotiationPhase) IsValid() bool {
	for _, candidate := range validNegotiationPhases {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseNegotiationPhase converts raw input into a NegotiationPhase.
func ParseNegotiationPhase(value string) (NegotiationPhase, error) {
	for _, candidate := range validNegotiationPhases {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid negotiation phase %q", value)
}
