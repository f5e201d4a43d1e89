package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
)

// OutboxEvent is an append-only negotiation event awaiting publication.
// Events are written in the same transaction as the state rows they describe.
type OutboxEvent struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.NegotiationEventType `gorm:"column:event_type;not null"`
	AggregateType enums.OutboxAggregateType  `gorm:"column:aggregate_type;not null"`
	AggregateID   uuid.UUID                  `gorm:"column:aggregate_id;type:uuid;not null;index"`
	Payload       json.RawMessage            `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                 `gorm:"column:published_at"`
	AttemptCount  int                        `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                    `gorm:"column:last_error"`
}
