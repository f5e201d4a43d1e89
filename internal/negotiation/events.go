package negotiation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
)

// Event is one entry on the negotiation stream: a tagged union keyed by Type
// with a JSON payload. The transport delivers events for a single
// (negotiation, supplier, round) tuple in order, at least once.
type Event struct {
	ID            uuid.UUID                  `json:"id"`
	Type          enums.NegotiationEventType `json:"type"`
	NegotiationID uuid.UUID                  `json:"negotiationId"`
	OccurredAt    time.Time                  `json:"occurredAt"`
	Payload       json.RawMessage            `json:"payload"`
}

// NewEvent wraps a typed payload into a stream event.
func NewEvent(negotiationID uuid.UUID, eventType enums.NegotiationEventType, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New(),
		Type:          eventType,
		NegotiationID: negotiationID,
		OccurredAt:    time.Now().UTC(),
		Payload:       raw,
	}, nil
}

// NegotiationStartedPayload opens the session.
type NegotiationStartedPayload struct {
	QuotationID uuid.UUID         `json:"quotationId"`
	ScoringMode enums.ScoringMode `json:"scoringMode"`
}

// SupplierStartedPayload introduces a participant or re-announces an existing
// one on redelivery.
type SupplierStartedPayload struct {
	Profile SupplierProfile `json:"profile"`
}

// SupplierWaitingPayload parks a supplier between rounds.
type SupplierWaitingPayload struct {
	SupplierID uuid.UUID `json:"supplierId"`
}

// RoundStartPayload advances a supplier to a new round.
type RoundStartPayload struct {
	SupplierID  uuid.UUID              `json:"supplierId"`
	RoundNumber int                    `json:"roundNumber"`
	Phase       enums.NegotiationPhase `json:"phase"`
}

// SupplierCompletePayload closes out a supplier.
type SupplierCompletePayload struct {
	SupplierID uuid.UUID `json:"supplierId"`
}

// MessagePayload appends one transcript entry.
type MessagePayload struct {
	MessageID   uuid.UUID              `json:"messageId"`
	SupplierID  uuid.UUID              `json:"supplierId"`
	Role        enums.MessageRole      `json:"role"`
	Content     string                 `json:"content"`
	RoundNumber int                    `json:"roundNumber"`
	Phase       enums.NegotiationPhase `json:"phase"`
}

// OfferExtractedPayload closes a round with its structured offer.
type OfferExtractedPayload struct {
	SupplierID  uuid.UUID              `json:"supplierId"`
	RoundNumber int                    `json:"roundNumber"`
	Phase       enums.NegotiationPhase `json:"phase"`
	Offer       Offer                  `json:"offer"`
}

// OffersSnapshotPayload is the scored pool after a round, kept for display
// history only.
type OffersSnapshotPayload struct {
	RoundNumber int                    `json:"roundNumber"`
	Phase       enums.NegotiationPhase `json:"phase"`
	Offers      []ScoredOffer          `json:"offers"`
}

// RoundAnalysisPayload is free-text commentary on a finished round.
type RoundAnalysisPayload struct {
	RoundNumber int    `json:"roundNumber"`
	Analysis    string `json:"analysis"`
}

// CurveballDetectedPayload reports a mid-negotiation disruption.
type CurveballDetectedPayload struct {
	SupplierID  uuid.UUID `json:"supplierId"`
	Description string    `json:"description"`
}

// CurveballAnalysisPayload attaches the follow-up analysis.
type CurveballAnalysisPayload struct {
	Analysis string `json:"analysis"`
}

// DecisionPayload carries the final decision.
type DecisionPayload struct {
	Decision FinalDecision `json:"decision"`
}

// ErrorPayload moves the negotiation into its error state.
type ErrorPayload struct {
	Message string `json:"message"`
}
