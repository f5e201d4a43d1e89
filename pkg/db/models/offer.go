package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
	"github.com/sourcelane/negotiator-backend/pkg/types"
)

// Offer is a supplier's structured terms for one round. Immutable after
// creation; later rounds supersede it with new rows.
type Offer struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	NegotiationID uuid.UUID              `gorm:"column:negotiation_id;type:uuid;not null;index"`
	SupplierID    uuid.UUID              `gorm:"column:supplier_id;type:uuid;not null;index"`
	RoundNumber   int                    `gorm:"column:round_number;not null"`
	Phase         enums.NegotiationPhase `gorm:"column:phase;not null;default:'initial'"`
	TotalCost     decimal.Decimal        `gorm:"column:total_cost;type:numeric(14,4);not null"`
	LeadTimeDays  int                    `gorm:"column:lead_time_days;not null"`
	PaymentTerms  string                 `gorm:"column:payment_terms;not null;default:''"`
	Concessions   pq.StringArray         `gorm:"column:concessions;type:text[];not null;default:ARRAY[]::text[]"`
	Conditions    pq.StringArray         `gorm:"column:conditions;type:text[];not null;default:ARRAY[]::text[]"`
	Scores        types.Scores           `gorm:"column:scores;type:jsonb"`
	Items         []OfferItem            `gorm:"foreignKey:OfferID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
}
