package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
	"github.com/sourcelane/negotiator-backend/pkg/outbox"

	"github.com/sourcelane/negotiator-backend/internal/negotiation"
)

const telemetryConsumerName = "telemetry"

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer writes round facts to BigQuery while honoring Redis idempotency.
// It only cares about offers snapshots; every other event type is ignored.
type Consumer struct {
	client  tableInserter
	table   string
	manager idempotencyChecker
	logg    *logger.Logger
}

// NewConsumer builds a round-facts consumer.
func NewConsumer(client tableInserter, table string, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("bigquery table name required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		client:  client,
		table:   strings.TrimSpace(table),
		manager: manager,
		logg:    logg,
	}, nil
}

// Run processes the negotiation subscription until the context is canceled
// or the subscription errors. Undecodable messages are acked and dropped;
// processing failures nack for redelivery.
func (c *Consumer) Run(ctx context.Context, subscription *pubsub.Subscriber) error {
	if subscription == nil {
		return fmt.Errorf("negotiation subscription required")
	}
	return subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var envelope outbox.PayloadEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			c.logg.Error(ctx, "dropping undecodable telemetry event", err)
			msg.Ack()
			return
		}
		if err := c.Process(ctx, enums.NegotiationEventType(msg.Attributes["event_type"]), envelope); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Process ingests one outbox envelope. Snapshot events fan out to one row per
// scored supplier.
func (c *Consumer) Process(ctx context.Context, eventType enums.NegotiationEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	if eventType != enums.EventOffersSnapshot {
		return nil
	}

	if envelope.EventID == "" {
		return fmt.Errorf("event id missing")
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return fmt.Errorf("parse event id: %w", err)
	}

	already, err := c.manager.CheckAndMarkProcessed(ctx, telemetryConsumerName, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	rows, err := buildRoundFactRows(envelope)
	if err != nil {
		c.logg.Error(logCtx, "failed to build round fact rows", err)
		_ = c.manager.Delete(ctx, telemetryConsumerName, eventID)
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	if err := c.client.InsertRows(ctx, c.table, rows); err != nil {
		c.logg.Error(logCtx, "failed to insert round fact rows", err)
		_ = c.manager.Delete(ctx, telemetryConsumerName, eventID)
		return err
	}

	c.logg.Info(logCtx, "offers snapshot ingested")
	return nil
}

func buildRoundFactRows(envelope outbox.PayloadEnvelope) ([]any, error) {
	var snapshot negotiation.OffersSnapshotPayload
	if err := json.Unmarshal(envelope.Data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}

	rows := make([]any, 0, len(snapshot.Offers))
	for _, scored := range snapshot.Offers {
		offerJSON := cbigquery.NullJSON{}
		if raw, err := json.Marshal(scored.Offer); err == nil {
			offerJSON.Valid = true
			offerJSON.JSONVal = string(raw)
		}
		rows = append(rows, &RoundFactRow{
			EventID:       envelope.EventID,
			NegotiationID: envelope.NegotiationID.String(),
			SupplierID:    scored.SupplierID.String(),
			RoundNumber:   snapshot.RoundNumber,
			Phase:         snapshot.Phase.String(),
			TotalCost:     scored.Offer.TotalCost,
			LeadTimeDays:  scored.Offer.LeadTimeDays,
			PaymentTerms:  scored.Offer.PaymentTerms,
			WeightedScore: scored.Scores.Weighted,
			OccurredAt:    envelope.OccurredAt,
			Offer:         offerJSON,
		})
	}
	return rows, nil
}

type idempotencyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// Marker is the Redis-backed idempotency manager for event consumers. A key
// is claimed before processing and released on failure so the event can be
// redelivered.
type Marker struct {
	store idempotencyStore
	ttl   time.Duration
}

// NewMarker builds a marker with the given claim TTL.
func NewMarker(store idempotencyStore, ttl time.Duration) (*Marker, error) {
	if store == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Marker{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed claims the event for this consumer. It returns true
// when another delivery already holds the claim.
func (m *Marker) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	set, err := m.store.SetNX(ctx, m.key(consumer, eventID), "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Delete releases the claim so a redelivery can retry the event.
func (m *Marker) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	return m.store.Del(ctx, m.key(consumer, eventID))
}

func (m *Marker) key(consumer string, eventID uuid.UUID) string {
	return fmt.Sprintf("ng:consumer:%s:%s", consumer, eventID)
}
