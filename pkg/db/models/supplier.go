package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
)

// Supplier is one negotiation participant with its static profile and the
// mutable per-negotiation progress fields.
type Supplier struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	NegotiationID uuid.UUID            `gorm:"column:negotiation_id;type:uuid;not null;index"`
	Name          string               `gorm:"column:name;not null"`
	Code          string               `gorm:"column:code;not null"`
	QualityRating float64              `gorm:"column:quality_rating;type:numeric(3,2);not null"`
	PriceLevel    enums.PriceLevel     `gorm:"column:price_level;not null"`
	LeadTimeDays  int                  `gorm:"column:lead_time_days;not null"`
	PaymentTerms  string               `gorm:"column:payment_terms;not null;default:''"`
	PrimarySource bool                 `gorm:"column:primary_source;not null;default:false"`
	Status        enums.SupplierStatus `gorm:"column:status;not null;default:'waiting'"`
	CurrentRound  int                  `gorm:"column:current_round;not null;default:0"`
	Position      int                  `gorm:"column:position;not null;default:0"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
