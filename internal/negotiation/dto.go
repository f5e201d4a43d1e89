package negotiation

import (
	"github.com/google/uuid"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
)

// QuotationItemInput is one baseline line submitted when a negotiation is
// opened.
type QuotationItemInput struct {
	SKU         string  `json:"sku" validate:"required"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unitPrice" validate:"required,gt=0"`
}

// SupplierInput describes one participant submitted when a negotiation is
// opened.
type SupplierInput struct {
	Name          string  `json:"name" validate:"required"`
	Code          string  `json:"code" validate:"required"`
	QualityRating float64 `json:"qualityRating" validate:"gte=0,lte=5"`
	PriceLevel    string  `json:"priceLevel" validate:"required"`
	LeadTimeDays  int     `json:"leadTimeDays" validate:"required,gt=0"`
	PaymentTerms  string  `json:"paymentTerms"`
	PrimarySource bool    `json:"primarySource"`
}

// StartNegotiationInput opens a new negotiation for a quotation.
type StartNegotiationInput struct {
	QuotationID uuid.UUID            `json:"quotationId" validate:"required"`
	ScoringMode string               `json:"scoringMode"`
	Items       []QuotationItemInput `json:"items" validate:"required,min=1,dive"`
	Suppliers   []SupplierInput      `json:"suppliers" validate:"required,min=1,dive"`
}

// RecordDecisionInput closes a negotiation with its final outcome.
type RecordDecisionInput struct {
	NegotiationID      uuid.UUID     `json:"-"`
	SelectedSupplierID uuid.UUID     `json:"selectedSupplierId" validate:"required"`
	Summary            string        `json:"summary" validate:"required"`
	Offers             []ScoredOffer `json:"offers"`
}

// StatusView is the cheap status probe a reconnecting client checks before
// deciding whether to open the event stream.
type StatusView struct {
	NegotiationID uuid.UUID               `json:"negotiationId"`
	QuotationID   uuid.UUID               `json:"quotationId"`
	Status        enums.NegotiationStatus `json:"status"`
	Decision      *FinalDecision          `json:"decision,omitempty"`
}
