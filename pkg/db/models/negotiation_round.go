package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
)

// NegotiationRound records one offer/counter-offer cycle for a supplier.
// Rounds are append-only; the same round number may appear more than once
// when the transport redelivers.
type NegotiationRound struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	NegotiationID uuid.UUID              `gorm:"column:negotiation_id;type:uuid;not null;index"`
	SupplierID    uuid.UUID              `gorm:"column:supplier_id;type:uuid;not null;index"`
	RoundNumber   int                    `gorm:"column:round_number;not null"`
	Phase         enums.NegotiationPhase `gorm:"column:phase;not null;default:'initial'"`
	OfferID       *uuid.UUID             `gorm:"column:offer_id;type:uuid"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
}
