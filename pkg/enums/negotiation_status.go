package enums

import "fmt"

// NegotiationStatus tracks the lifecycle of a negotiation session.
type NegotiationStatus string

const (
	NegotiationStatusConnecting         NegotiationStatus = "connecting"
	NegotiationStatusNegotiating        NegotiationStatus = "negotiating"
	NegotiationStatusGeneratingDecision NegotiationStatus = "generating_decision"
	NegotiationStatusComplete           NegotiationStatus = "complete"
	NegotiationStatusError              NegotiationStatus = "error"
)

var validNegotiationStatuses = []NegotiationStatus{
	NegotiationStatusConnecting,
	NegotiationStatusNegotiating,
	NegotiationStatusGeneratingDecision,
	NegotiationStatusComplete,
	NegotiationStatusError,
}

// String implements fmt.Stringer.
func (n NegotiationStatus) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NegotiationStatus.
func (n NegotiationStatus) IsValid() bool {
	for _, candidate := range validNegotiationStatuses {
		if candidate == n {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (n NegotiationStatus) IsTerminal() bool {
	return n == NegotiationStatusComplete
}

// ParseNegotiationStatus converts raw input into a NegotiationStatus.
func ParseNegotiationStatus(value string) (NegotiationStatus, error) {
	for _, candidate := range validNegotiationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid negotiation status %q", value)
}
