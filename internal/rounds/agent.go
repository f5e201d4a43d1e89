package rounds

import (
	"context"
	"fmt"
	"strings"

	pkgerrors "github.com/sourcelane/negotiator-backend/pkg/errors"
	"github.com/sourcelane/negotiator-backend/pkg/llm"

	"github.com/sourcelane/negotiator-backend/internal/negotiation"
	"github.com/sourcelane/negotiator-backend/pkg/enums"
)

const brandAgentSystemPrompt = `You are a procurement negotiator for a consumer brand. You push suppliers
toward better total cost, shorter lead times, and friendlier payment terms
without burning the relationship. Reply with the next message to send the
supplier, two to four sentences, no preamble.`

const supplierAgentSystemPrompt = `You are a sales negotiator for the supplier described below. Defend your
margins, concede in small steps, and attach conditions to concessions. Reply
with the supplier's next message, two to four sentences, no preamble.`

const curveballSystemPrompt = `You are a procurement analyst. A supplier just raised an unexpected
complication mid-negotiation. Explain in one short paragraph what it means for
cost, lead time, and risk, and how the buyer should respond.`

const roundAnalysisSystemPrompt = `You are a procurement analyst reviewing one round of a multi-supplier
negotiation. In one short paragraph, compare the offers on total cost, lead
time, and payment terms, and say which supplier is ahead and why.`

const summarySystemPrompt = `You are a procurement analyst writing the closing rationale for a
completed supplier negotiation. In one short paragraph, explain why the
selected supplier won on the scoring mode used.`

// Agent plays both sides of the negotiation over an OpenAI-compatible chat
// completion endpoint. The fast path sends only the latest exchange; the full
// path replays the whole transcript as conversation history.
type Agent struct {
	client *llm.Client
}

// NewAgent wires the completion client into the driver's conversation
// contract.
func NewAgent(client *llm.Client) (*Agent, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "completion client required")
	}
	return &Agent{client: client}, nil
}

// BrandMessage produces the brand side's next message to the supplier.
func (a *Agent) BrandMessage(ctx context.Context, req ReplyRequest) (string, error) {
	messages := []llm.Message{{Role: "system", Content: brandAgentSystemPrompt}}
	messages = append(messages, llm.Message{Role: "user", Content: brandContext(req)})
	messages = append(messages, transcriptMessages(req, enums.MessageRoleBrandAgent)...)
	return a.complete(ctx, messages)
}

// SupplierReply produces the supplier's answer to the brand message already
// set on the request.
func (a *Agent) SupplierReply(ctx context.Context, req ReplyRequest) (string, error) {
	messages := []llm.Message{{Role: "system", Content: supplierAgentSystemPrompt}}
	messages = append(messages, llm.Message{Role: "user", Content: supplierContext(req)})
	messages = append(messages, transcriptMessages(req, enums.MessageRoleSupplierAgent)...)
	messages = append(messages, llm.Message{Role: "user", Content: req.BrandMessage})
	return a.complete(ctx, messages)
}

// CurveballAnalysis explains an injected complication.
func (a *Agent) CurveballAnalysis(ctx context.Context, req ReplyRequest) (string, error) {
	prompt := fmt.Sprintf("Supplier: %s\nComplication raised: %s", req.Supplier.Name, req.Curveball)
	return a.complete(ctx, []llm.Message{
		{Role: "system", Content: curveballSystemPrompt},
		{Role: "user", Content: prompt},
	})
}

// RoundAnalysis comments on the pool standings after one scored round.
func (a *Agent) RoundAnalysis(ctx context.Context, req AnalysisRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Round %d (%s phase) standings:\n", req.RoundNumber, req.Phase)
	for _, scored := range req.Offers {
		fmt.Fprintf(&b, "- supplier %s: total $%.2f, lead time %d days, terms %s, weighted score %d\n",
			scored.SupplierID, scored.Offer.TotalCost, scored.Offer.LeadTimeDays,
			scored.Offer.PaymentTerms, scored.Scores.Weighted)
	}
	return a.complete(ctx, []llm.Message{
		{Role: "system", Content: roundAnalysisSystemPrompt},
		{Role: "user", Content: b.String()},
	})
}

// DecisionSummary writes the closing rationale for the recorded decision.
func (a *Agent) DecisionSummary(ctx context.Context, req SummaryRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Scoring mode: %s\n\nFinal pool:\n", req.ScoringMode)
	for _, scored := range req.Offers {
		marker := ""
		if scored.SupplierID == req.Winner {
			marker = " (selected)"
		}
		fmt.Fprintf(&b, "- supplier %s%s: total $%.2f, lead time %d days, terms %s, weighted score %d\n",
			scored.SupplierID, marker, scored.Offer.TotalCost, scored.Offer.LeadTimeDays,
			scored.Offer.PaymentTerms, scored.Scores.Weighted)
	}
	return a.complete(ctx, []llm.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: b.String()},
	})
}

func (a *Agent) complete(ctx context.Context, messages []llm.Message) (string, error) {
	completion, err := a.client.Complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(completion.Content)
	if text == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "empty completion")
	}
	return text, nil
}

// transcriptMessages maps the negotiation transcript onto chat history from
// the given speaker's point of view. The fast path keeps only the last
// exchange; system rows (curveball notices) always travel.
func transcriptMessages(req ReplyRequest, speaker enums.MessageRole) []llm.Message {
	transcript := req.Transcript
	if req.Path == enums.MessagePathFast && len(transcript) > 2 {
		transcript = transcript[len(transcript)-2:]
	}

	history := make([]llm.Message, 0, len(transcript))
	for _, msg := range transcript {
		role := "user"
		if msg.Role == speaker {
			role = "assistant"
		}
		content := msg.Content
		if msg.Role == enums.MessageRoleSystem {
			role = "user"
			content = "Negotiation update: " + msg.Content
		}
		history = append(history, llm.Message{Role: role, Content: content})
	}
	return history
}

func brandContext(req ReplyRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are negotiating with %s (quality %.1f, usual lead time %d days, usual terms %s).\n",
		req.Supplier.Name, req.Supplier.QualityRating, req.Supplier.LeadTimeDays, req.Supplier.PaymentTerms)
	fmt.Fprintf(&b, "Round %d of the negotiation.\n", req.RoundNumber)
	writeBaseline(&b, req.Baseline)
	if req.Phase == enums.PhasePostCurveball && req.Curveball != "" {
		fmt.Fprintf(&b, "\nThe supplier raised a complication: %s\nAddress it directly.\n", req.Curveball)
	}
	return b.String()
}

func supplierContext(req ReplyRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You sell for %s. Your list quality rating is %.1f, standard lead time %d days, standard terms %s, price position %s.\n",
		req.Supplier.Name, req.Supplier.QualityRating, req.Supplier.LeadTimeDays, req.Supplier.PaymentTerms, req.Supplier.PriceLevel)
	fmt.Fprintf(&b, "Round %d of the negotiation.\n", req.RoundNumber)
	writeBaseline(&b, req.Baseline)
	fmt.Fprint(&b, "\nAlways restate concrete numbers (totals, unit prices, lead time, payment terms) in your reply.\n")
	if req.Phase == enums.PhasePostCurveball && req.Curveball != "" {
		fmt.Fprintf(&b, "\nYou previously raised: %s\nYour reply must account for it.\n", req.Curveball)
	}
	return b.String()
}

func writeBaseline(b *strings.Builder, baseline []negotiation.QuotationItem) {
	fmt.Fprint(b, "Baseline quotation under negotiation:\n")
	for _, item := range baseline {
		fmt.Fprintf(b, "- %s (%s): %d units at $%.2f each\n", item.SKU, item.Description, item.Quantity, item.UnitPrice)
	}
}
