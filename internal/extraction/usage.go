package extraction

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Usage captures the token spend of one structured-extraction call.
type Usage struct {
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	CostUSD          float64 `json:"costUsd"`
}

// UsageRecord keys one call's usage to the negotiation it served.
type UsageRecord struct {
	NegotiationID uuid.UUID `json:"negotiationId"`
	SupplierID    uuid.UUID `json:"supplierId"`
	RoundNumber   int       `json:"roundNumber"`
	Usage         Usage     `json:"usage"`
	Fallback      bool      `json:"fallback"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// UsageSink receives extraction telemetry. Implementations must not block the
// extraction path; recording failures are the sink's problem.
type UsageSink interface {
	RecordUsage(ctx context.Context, record UsageRecord)
}
