package negotiation

import (
	"time"

	"github.com/google/uuid"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
)

// Message is one transcript entry inside a supplier conversation.
type Message struct {
	ID          uuid.UUID              `json:"id"`
	Role        enums.MessageRole      `json:"role"`
	Content     string                 `json:"content"`
	RoundNumber int                    `json:"roundNumber"`
	Phase       enums.NegotiationPhase `json:"phase"`
}

// Round is one completed exchange for a supplier.
type Round struct {
	RoundNumber int                    `json:"roundNumber"`
	Phase       enums.NegotiationPhase `json:"phase"`
	Offer       Offer                  `json:"offer"`
}

// SupplierState tracks one participant through the session.
type SupplierState struct {
	Profile      SupplierProfile        `json:"profile"`
	Status       enums.SupplierStatus   `json:"status"`
	CurrentRound int                    `json:"currentRound"`
	Phase        enums.NegotiationPhase `json:"phase"`
	Rounds       []Round                `json:"rounds"`
	Messages     []Message              `json:"messages"`
}

// Curveball records a mid-negotiation disruption and, once available, its
// analysis.
type Curveball struct {
	SupplierID  uuid.UUID `json:"supplierId"`
	Description string    `json:"description"`
	Analysis    string    `json:"analysis,omitempty"`
	DetectedAt  time.Time `json:"detectedAt"`
}

// State is the full aggregate a client needs to render a negotiation. It is
// rebuilt by folding the event stream, so every field must be derivable from
// events alone.
type State struct {
	NegotiationID uuid.UUID               `json:"negotiationId"`
	QuotationID   uuid.UUID               `json:"quotationId"`
	Status        enums.NegotiationStatus `json:"status"`
	ScoringMode   enums.ScoringMode       `json:"scoringMode"`
	Suppliers     []SupplierState         `json:"suppliers"`
	Snapshots     []OffersSnapshotPayload `json:"snapshots"`
	Analyses      []RoundAnalysisPayload  `json:"analyses"`
	Curveball     *Curveball              `json:"curveball,omitempty"`
	Decision      *FinalDecision          `json:"decision,omitempty"`
	ErrorMessage  string                  `json:"errorMessage,omitempty"`
}

// NewState returns the pre-stream state for a negotiation.
func NewState(negotiationID uuid.UUID) State {
	return State{
		NegotiationID: negotiationID,
		Status:        enums.NegotiationStatusConnecting,
	}
}

// Supplier returns the state for the given supplier, or nil when the stream
// has not introduced it yet.
func (s *State) Supplier(id uuid.UUID) *SupplierState {
	for i := range s.Suppliers {
		if s.Suppliers[i].Profile.ID == id {
			return &s.Suppliers[i]
		}
	}
	return nil
}

// PrimarySupplier returns the primary-source participant, if any.
func (s *State) PrimarySupplier() *SupplierState {
	for i := range s.Suppliers {
		if s.Suppliers[i].Profile.PrimarySource {
			return &s.Suppliers[i]
		}
	}
	return nil
}

// clone deep-copies the state so Apply never aliases its input. Supplier
// pools are small, so a full copy per event is cheap.
func (s State) clone() State {
	out := s
	if s.Suppliers != nil {
		out.Suppliers = make([]SupplierState, len(s.Suppliers))
		for i, sup := range s.Suppliers {
			cp := sup
			cp.Rounds = append([]Round(nil), sup.Rounds...)
			cp.Messages = append([]Message(nil), sup.Messages...)
			out.Suppliers[i] = cp
		}
	}
	out.Snapshots = append([]OffersSnapshotPayload(nil), s.Snapshots...)
	out.Analyses = append([]RoundAnalysisPayload(nil), s.Analyses...)
	if s.Curveball != nil {
		cb := *s.Curveball
		out.Curveball = &cb
	}
	if s.Decision != nil {
		d := *s.Decision
		out.Decision = &d
	}
	return out
}
