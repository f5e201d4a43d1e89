package telemetry

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// UsageRow mirrors the llm_usage BigQuery schema: one row per structured
// extraction call, fallback or not.
type UsageRow struct {
	NegotiationID    string    `bigquery:"negotiation_id"`
	SupplierID       string    `bigquery:"supplier_id"`
	RoundNumber      int       `bigquery:"round_number"`
	PromptTokens     int       `bigquery:"prompt_tokens"`
	CompletionTokens int       `bigquery:"completion_tokens"`
	CostUSD          float64   `bigquery:"cost_usd"`
	Fallback         bool      `bigquery:"fallback"`
	OccurredAt       time.Time `bigquery:"occurred_at"`
}

// RoundFactRow mirrors the round_facts BigQuery schema: one row per supplier
// per offers snapshot.
type RoundFactRow struct {
	EventID       string             `bigquery:"event_id"`
	NegotiationID string             `bigquery:"negotiation_id"`
	SupplierID    string             `bigquery:"supplier_id"`
	RoundNumber   int                `bigquery:"round_number"`
	Phase         string             `bigquery:"phase"`
	TotalCost     float64            `bigquery:"total_cost"`
	LeadTimeDays  int                `bigquery:"lead_time_days"`
	PaymentTerms  string             `bigquery:"payment_terms"`
	WeightedScore int                `bigquery:"weighted_score"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	Offer         cbigquery.NullJSON `bigquery:"offer"`
}
