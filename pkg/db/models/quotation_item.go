package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuotationItem is one baseline line of the buyer's quotation. Immutable once
// the negotiation starts; offers reference it, never mutate it.
type QuotationItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	NegotiationID uuid.UUID       `gorm:"column:negotiation_id;type:uuid;not null;index"`
	SKU           string          `gorm:"column:sku;not null"`
	Description   string          `gorm:"column:description;not null;default:''"`
	Quantity      int             `gorm:"column:quantity;not null"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(14,4);not null"`
	TotalPrice    decimal.Decimal `gorm:"column:total_price;type:numeric(14,4);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}
