package rounds

import (
	"context"

	"github.com/google/uuid"

	"github.com/sourcelane/negotiator-backend/internal/negotiation"
	"github.com/sourcelane/negotiator-backend/pkg/enums"
)

// ReplyRequest carries everything the text service needs to produce the next
// turn of a supplier conversation. Path selects how much context travels with
// the request: the fast path sends only the latest exchange, the full path
// sends the whole transcript.
type ReplyRequest struct {
	NegotiationID uuid.UUID
	Supplier      negotiation.SupplierProfile
	RoundNumber   int
	Phase         enums.NegotiationPhase
	Path          enums.MessagePath
	Baseline      []negotiation.QuotationItem
	Transcript    []negotiation.Message
	BrandMessage  string
	Curveball     string
}

// SummaryRequest asks for the closing rationale once the pool is scored.
type SummaryRequest struct {
	NegotiationID uuid.UUID
	ScoringMode   enums.ScoringMode
	Offers        []negotiation.ScoredOffer
	Winner        uuid.UUID
}

// AnalysisRequest asks for commentary on one scored round.
type AnalysisRequest struct {
	NegotiationID uuid.UUID
	RoundNumber   int
	Phase         enums.NegotiationPhase
	Offers        []negotiation.ScoredOffer
}

// Conversationalist is the opaque text service driving both sides of the
// negotiation plus the per-round and closing commentary.
type Conversationalist interface {
	BrandMessage(ctx context.Context, req ReplyRequest) (string, error)
	SupplierReply(ctx context.Context, req ReplyRequest) (string, error)
	RoundAnalysis(ctx context.Context, req AnalysisRequest) (string, error)
	CurveballAnalysis(ctx context.Context, req ReplyRequest) (string, error)
	DecisionSummary(ctx context.Context, req SummaryRequest) (string, error)
}
