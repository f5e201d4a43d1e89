package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pkgerrors "github.com/sourcelane/negotiator-backend/pkg/errors"
	"github.com/sourcelane/negotiator-backend/pkg/llm"

	"github.com/sourcelane/negotiator-backend/internal/negotiation"
)

// Default per-million-token rates for the default extraction model. Override
// per deployment when the model changes.
const (
	defaultPromptRatePerM     = 0.15
	defaultCompletionRatePerM = 0.60
)

const structurerSystemPrompt = `You convert a supplier's negotiation message into a structured offer.
Respond with a single JSON object, no prose, shaped exactly as:
{"totalCost": number, "items": [{"sku": string, "unitPrice": number, "quantity": number, "volumeTiers": [{"minQty": number, "maxQty": number|null, "unitPrice": number}]}], "leadTimeDays": number, "paymentTerms": string, "concessions": [string], "conditions": [string]}
Omit volumeTiers when the supplier quotes flat pricing. Use the baseline
quotation for any line the message does not reprice. Never invent SKUs.`

// Structurer implements the text-to-structured-object call against an
// OpenAI-compatible chat completion endpoint.
type Structurer struct {
	client         *llm.Client
	promptRate     float64
	completionRate float64
}

// StructurerOption customizes a Structurer.
type StructurerOption func(*Structurer)

// WithTokenRates sets the per-million-token USD rates used for cost
// attribution.
func WithTokenRates(promptPerM, completionPerM float64) StructurerOption {
	return func(s *Structurer) {
		s.promptRate = promptPerM
		s.completionRate = completionPerM
	}
}

// NewStructurer wires the completion client into the extractor's Client
// contract.
func NewStructurer(client *llm.Client, opts ...StructurerOption) (*Structurer, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "completion client required")
	}
	s := &Structurer{
		client:         client,
		promptRate:     defaultPromptRatePerM,
		completionRate: defaultCompletionRatePerM,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StructureOffer asks the model to restate one supplier message as offer
// JSON. Numeric reconciliation is the extractor's job; this layer only
// guarantees well-formed JSON or an error.
func (s *Structurer) StructureOffer(ctx context.Context, req Request) (negotiation.Offer, Usage, error) {
	completion, err := s.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: structurerSystemPrompt},
			{Role: "user", Content: buildStructurerPrompt(req)},
		},
		Temperature:  0,
		JSONResponse: true,
	})
	if err != nil {
		return negotiation.Offer{}, Usage{}, err
	}

	usage := Usage{
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		CostUSD: float64(completion.PromptTokens)*s.promptRate/1e6 +
			float64(completion.CompletionTokens)*s.completionRate/1e6,
	}

	var offer negotiation.Offer
	if err := json.Unmarshal([]byte(completion.Content), &offer); err != nil {
		return negotiation.Offer{}, usage, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding structured offer")
	}
	return offer, usage, nil
}

func buildStructurerPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Supplier: %s (quality %.1f, price level %s, lead time %d days, terms %s)\n",
		req.Profile.Name, req.Profile.QualityRating, req.Profile.PriceLevel, req.Profile.LeadTimeDays, req.Profile.PaymentTerms)
	fmt.Fprintf(&b, "Negotiation round: %d\n\nBaseline quotation:\n", req.RoundNumber)
	for _, item := range req.Baseline {
		fmt.Fprintf(&b, "- %s: %d units at $%.2f each\n", item.SKU, item.Quantity, item.UnitPrice)
	}
	fmt.Fprintf(&b, "\nSupplier message:\n%s\n", req.Message)
	return b.String()
}
