package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
)

// Negotiation is the top-level session row. One negotiation owns its
// quotation baseline, suppliers, rounds, messages, offers and decision.
type Negotiation struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	QuotationID       uuid.UUID               `gorm:"column:quotation_id;type:uuid;not null;index"`
	Status            enums.NegotiationStatus `gorm:"column:status;not null;default:'connecting'"`
	ScoringMode       enums.ScoringMode       `gorm:"column:scoring_mode;not null;default:'balanced'"`
	CurveballText     *string                 `gorm:"column:curveball_text"`
	CurveballAnalysis *string                 `gorm:"column:curveball_analysis"`
	Suppliers         []Supplier              `gorm:"foreignKey:NegotiationID;constraint:OnDelete:CASCADE"`
	QuotationItems    []QuotationItem         `gorm:"foreignKey:NegotiationID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
