package negotiation

import (
	"github.com/google/uuid"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
	"github.com/sourcelane/negotiator-backend/pkg/types"
)

// QuotationItem is one baseline line of the buyer's quotation, the fixed
// reference every offer is compared against.
type QuotationItem struct {
	SKU         string  `json:"sku"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	TotalPrice  float64 `json:"totalPrice"`
}

// BaselineTotal sums the quoted totals of the baseline items.
func BaselineTotal(items []QuotationItem) float64 {
	var total float64
	for _, item := range items {
		total += item.TotalPrice
	}
	return total
}

// SupplierProfile is a participant's static profile, read-only during the
// negotiation.
type SupplierProfile struct {
	ID            uuid.UUID        `json:"id"`
	Name          string           `json:"name"`
	Code          string           `json:"code"`
	QualityRating float64          `json:"qualityRating"`
	PriceLevel    enums.PriceLevel `json:"priceLevel"`
	LeadTimeDays  int              `json:"leadTimeDays"`
	PaymentTerms  string           `json:"paymentTerms"`
	PrimarySource bool             `json:"primarySource"`
}

// OfferItem is one offered line. Quantity is pinned to the baseline quantity
// so totals stay comparable across rounds; tiered prices ride along without
// affecting the comparison total.
type OfferItem struct {
	SKU         string             `json:"sku"`
	UnitPrice   float64            `json:"unitPrice"`
	Quantity    int                `json:"quantity"`
	VolumeTiers []types.VolumeTier `json:"volumeTiers,omitempty"`
}

// Valid reports whether the line carries usable pricing data.
func (i OfferItem) Valid() bool {
	return i.SKU != "" && i.Quantity > 0 && i.UnitPrice > 0
}

// Offer is a supplier's structured terms for one round. TotalCost is always
// recomputable as the sum of unit price times quantity over valid items.
type Offer struct {
	TotalCost    float64     `json:"totalCost"`
	Items        []OfferItem `json:"items"`
	LeadTimeDays int         `json:"leadTimeDays"`
	PaymentTerms string      `json:"paymentTerms"`
	Concessions  []string    `json:"concessions"`
	Conditions   []string    `json:"conditions"`
}

// ValidItems returns the lines that carry usable pricing data.
func (o Offer) ValidItems() []OfferItem {
	valid := make([]OfferItem, 0, len(o.Items))
	for _, item := range o.Items {
		if item.Valid() {
			valid = append(valid, item)
		}
	}
	return valid
}

// ItemsTotal sums unit price times quantity over the valid lines.
func (o Offer) ItemsTotal() float64 {
	var total float64
	for _, item := range o.ValidItems() {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}

// ScoreVector carries the five normalized sub-scores plus the mode-weighted
// composite, all in [0, 100].
type ScoreVector struct {
	Price    int `json:"price"`
	Quality  int `json:"quality"`
	LeadTime int `json:"leadTime"`
	CashFlow int `json:"cashFlow"`
	Risk     int `json:"risk"`
	Weighted int `json:"weighted"`
}

// ScoredOffer pairs an offer with its owner and computed scores for one
// scoring pass over the pool.
type ScoredOffer struct {
	SupplierID uuid.UUID   `json:"supplierId"`
	Offer      Offer       `json:"offer"`
	Scores     ScoreVector `json:"scores"`
}

// FinalDecision is the recorded outcome of a completed negotiation.
type FinalDecision struct {
	SelectedSupplierID uuid.UUID   `json:"selectedSupplierId"`
	Summary            string      `json:"summary"`
	Scores             ScoreVector `json:"scores,omitzero"`
}
