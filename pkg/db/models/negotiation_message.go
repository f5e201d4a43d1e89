package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
)

// NegotiationMessage is one transcript entry, append-only and ordered by
// arrival.
type NegotiationMessage struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	NegotiationID uuid.UUID              `gorm:"column:negotiation_id;type:uuid;not null;index"`
	SupplierID    uuid.UUID              `gorm:"column:supplier_id;type:uuid;not null;index"`
	Role          enums.MessageRole      `gorm:"column:role;not null"`
	Content       string                 `gorm:"column:content;type:text;not null"`
	RoundNumber   int                    `gorm:"column:round_number;not null"`
	Phase         enums.NegotiationPhase `gorm:"column:phase;not null;default:'initial'"`
	Path          *enums.MessagePath     `gorm:"column:path"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
}
