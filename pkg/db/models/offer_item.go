package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sourcelane/negotiator-backend/pkg/types"
)

// OfferItem is one offered line. Quantity is always pinned to the baseline
// quantity so offers stay comparable round over round.
type OfferItem struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OfferID     uuid.UUID         `gorm:"column:offer_id;type:uuid;not null;index"`
	SKU         string            `gorm:"column:sku;not null"`
	UnitPrice   decimal.Decimal   `gorm:"column:unit_price;type:numeric(14,4);not null"`
	Quantity    int               `gorm:"column:quantity;not null"`
	VolumeTiers types.VolumeTiers `gorm:"column:volume_tiers;type:jsonb"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}
