package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Decision is the persisted final outcome of a negotiation.
type Decision struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	NegotiationID      uuid.UUID       `gorm:"column:negotiation_id;type:uuid;not null;uniqueIndex"`
	SelectedSupplierID uuid.UUID       `gorm:"column:selected_supplier_id;type:uuid;not null"`
	Summary            string          `gorm:"column:summary;type:text;not null;default:''"`
	Payload            json.RawMessage `gorm:"column:payload;type:jsonb"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
}
