package enums

import "fmt"

// NegotiationEventType tags the events carried on the negotiation stream.
type NegotiationEventType string

const (
	EventNegotiationStarted  NegotiationEventType = "negotiation_started"
	EventSupplierStarted     NegotiationEventType = "supplier_started"
	EventSupplierWaiting     NegotiationEventType = "supplier_waiting"
	EventRoundStart          NegotiationEventType = "round_start"
	EventSupplierComplete    NegotiationEventType = "supplier_complete"
	EventMessage             NegotiationEventType = "message"
	EventOfferExtracted      NegotiationEventType = "offer_extracted"
	EventOffersSnapshot      NegotiationEventType = "offers_snapshot"
	EventRoundAnalysis       NegotiationEventType = "round_analysis"
	EventCurveballDetected   NegotiationEventType = "curveball_detected"
	EventCurveballAnalysis   NegotiationEventType = "curveball_analysis"
	EventNegotiationComplete NegotiationEventType = "negotiation_complete"
	EventDecision            NegotiationEventType = "decision"
	EventError               NegotiationEventType = "error"
)

var validNegotiationEventTypes = []NegotiationEventType{
	EventNegotiationStarted,
	EventSupplierStarted,
	EventSupplierWaiting,
	EventRoundStart,
	EventSupplierComplete,
	EventMessage,
	EventOfferExtracted,
	EventOffersSnapshot,
	EventRoundAnalysis,
	EventCurveballDetected,
	EventCurveballAnalysis,
	EventNegotiationComplete,
	EventDecision,
	EventError,
}

// String implements fmt.Stringer.
func (e NegotiationEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known NegotiationEventType.
func (e NegotiationEventType) IsValid() bool {
	for _, candidate := range validNegotiationEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseNegotiationEventType converts raw input into a NegotiationEventType.
func ParseNegotiationEventType(value string) (NegotiationEventType, error) {
	for _, candidate := range validNegotiationEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid negotiation event type %q", value)
}
