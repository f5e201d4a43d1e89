package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sourcelane/negotiator-backend/pkg/db/models"
	"github.com/sourcelane/negotiator-backend/pkg/enums"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	events := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	dlq := `
CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME
);`
	require.NoError(t, db.Exec(events).Error)
	require.NoError(t, db.Exec(dlq).Error)
	return db
}

func storedEvent(aggregateID uuid.UUID, eventType enums.NegotiationEventType, createdAt time.Time) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.OutboxAggregateNegotiation,
		AggregateID:   aggregateID,
		Payload:       []byte(`{"version":1}`),
		CreatedAt:     createdAt,
	}
}

func TestFetchUnpublishedSkipsPublishedAndOrdersByCreation(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	negotiationID := uuid.New()

	base := time.Now().Add(-time.Minute)
	older := storedEvent(negotiationID, enums.EventRoundStart, base)
	newer := storedEvent(negotiationID, enums.EventOffersSnapshot, base.Add(10*time.Second))
	done := storedEvent(negotiationID, enums.EventMessage, base.Add(20*time.Second))
	now := time.Now()
	done.PublishedAt = &now

	// Insert newest first to prove ordering comes from created_at, not
	// insertion order.
	for _, event := range []models.OutboxEvent{done, newer, older} {
		require.NoError(t, repo.Insert(db, event))
	}

	rows, err := repo.FetchUnpublished(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, older.ID, rows[0].ID)
	assert.Equal(t, newer.ID, rows[1].ID)
}

func TestMarkPublishedRemovesEventFromScan(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	event := storedEvent(uuid.New(), enums.EventRoundStart, time.Now())
	require.NoError(t, repo.Insert(db, event))
	require.NoError(t, repo.MarkPublished(event.ID))

	rows, err := repo.FetchUnpublished(10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMarkFailedTracksAttemptsAndLastError(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	event := storedEvent(uuid.New(), enums.EventRoundStart, time.Now())
	require.NoError(t, repo.Insert(db, event))

	require.NoError(t, repo.MarkFailed(event.ID, errors.New("broker unavailable")))
	require.NoError(t, repo.MarkFailed(event.ID, errors.New("still down")))

	rows, err := repo.FetchUnpublished(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "still down", *rows[0].LastError)
}

func TestMarkTerminalStampsPublishedAt(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	event := storedEvent(uuid.New(), enums.EventRoundStart, time.Now())
	require.NoError(t, repo.Insert(db, event))
	require.NoError(t, repo.MarkTerminal(event.ID, errors.New("max publish attempts reached")))

	rows, err := repo.FetchUnpublished(10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	all, err := repo.FetchForAggregate(event.AggregateID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].LastError)
	assert.Equal(t, "max publish attempts reached", *all[0].LastError)
}

func TestEmitWrapsPayloadInEnvelope(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	logg := logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard})
	svc := NewService(repo, logg)

	negotiationID := uuid.New()
	occurred := time.Now().Add(-5 * time.Second).UTC().Truncate(time.Millisecond)
	err := svc.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.EventSupplierStarted,
		AggregateType: enums.OutboxAggregateNegotiation,
		AggregateID:   negotiationID,
		Data:          map[string]string{"supplierName": "Helios Components"},
		Version:       1,
		OccurredAt:    occurred,
	})
	require.NoError(t, err)

	rows, err := repo.FetchForAggregate(negotiationID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventSupplierStarted, rows[0].EventType)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, negotiationID, envelope.NegotiationID)
	assert.NotEmpty(t, envelope.EventID)
	assert.True(t, envelope.OccurredAt.Equal(occurred))
	assert.JSONEq(t, `{"supplierName":"Helios Components"}`, string(envelope.Data))
}

func TestEmitIfNotExistsSkipsDuplicateTerminalEvent(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	logg := logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard})
	svc := NewService(repo, logg)

	negotiationID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventNegotiationComplete,
		AggregateType: enums.OutboxAggregateNegotiation,
		AggregateID:   negotiationID,
		Data:          map[string]string{"status": "complete"},
		Version:       1,
	}

	require.NoError(t, svc.EmitIfNotExists(context.Background(), db, event))
	require.NoError(t, svc.EmitIfNotExists(context.Background(), db, event))

	rows, err := repo.FetchForAggregate(negotiationID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDLQInsertIsIdempotentPerEvent(t *testing.T) {
	db := setupOutboxTestDB(t)
	dlq := NewDLQRepository(db)

	reason := "broker unavailable"
	entry := models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		EventType:     enums.EventRoundStart,
		AggregateType: enums.OutboxAggregateNegotiation,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &reason,
		AttemptCount:  5,
	}
	require.NoError(t, dlq.Insert(context.Background(), entry))

	replay := entry
	replay.ID = uuid.New()
	require.NoError(t, dlq.Insert(context.Background(), replay))

	rows, err := dlq.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	found, err := dlq.FindByEventID(context.Background(), entry.EventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, found.ErrorReason)
}

func TestDLQInsertTruncatesLongErrorMessages(t *testing.T) {
	db := setupOutboxTestDB(t)
	dlq := NewDLQRepository(db)

	long := make([]byte, maxDLQErrorLen*2)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	entry := models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		EventType:     enums.EventRoundStart,
		AggregateType: enums.OutboxAggregateNegotiation,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
	}
	require.NoError(t, dlq.Insert(context.Background(), entry))

	found, err := dlq.FindByEventID(context.Background(), entry.EventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.ErrorMessage)
	assert.Len(t, *found.ErrorMessage, maxDLQErrorLen)
}
