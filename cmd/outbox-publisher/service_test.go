package main

import (
	"context"
	"errors"
	"io"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sourcelane/negotiator-backend/pkg/config"
	"github.com/sourcelane/negotiator-backend/pkg/db/models"
	"github.com/sourcelane/negotiator-backend/pkg/enums"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
)

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublished(limit int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublished(id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminal(id uuid.UUID, err error) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQ struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQ) Insert(_ context.Context, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return fakePublishResult{}
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeLive struct {
	channels []string
	payloads [][]byte
	err      error
}

func (f *fakeLive) PublishEvent(_ context.Context, negotiationID string, payload []byte) error {
	f.channels = append(f.channels, negotiationID)
	f.payloads = append(f.payloads, payload)
	return f.err
}

func newTestService(t *testing.T, repo outboxRepository, dlq dlqRepository, pub publisher, live livePublisher, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      10,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:     &config.Config{Outbox: outboxCfg},
		Logger:     logg,
		Repository: repo,
		DLQ:        dlq,
		Publisher:  pub,
		Live:       live,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func outboxEvent(aggregateID uuid.UUID, eventType enums.NegotiationEventType) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.OutboxAggregateNegotiation,
		AggregateID:   aggregateID,
		Payload:       []byte(`{"version":1}`),
	}
}

func TestProcessBatchPreservesPerNegotiationOrder(t *testing.T) {
	negotiationID := uuid.New()
	otherID := uuid.New()
	first := outboxEvent(negotiationID, enums.EventRoundStart)
	second := outboxEvent(negotiationID, enums.EventOffersSnapshot)
	unrelated := outboxEvent(otherID, enums.EventRoundStart)

	repo := &fakeRepo{events: []models.OutboxEvent{first, second, unrelated}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	live := &fakeLive{}
	service := newTestService(t, repo, &fakeDLQ{}, pub, live, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}

	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("unexpected failed rows: %v", repo.failed)
	}
	// The second event of the failed negotiation waits for the next poll.
	if len(repo.published) != 1 || repo.published[0] != unrelated.ID {
		t.Fatalf("unexpected published rows: %v", repo.published)
	}
	if len(pub.messages) != 2 {
		t.Fatalf("expected two publish attempts, got %d", len(pub.messages))
	}
}

func TestProcessBatchParksExhaustedEventInDLQ(t *testing.T) {
	event := outboxEvent(uuid.New(), enums.EventRoundStart)
	event.AttemptCount = 5

	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{}
	service := newTestService(t, repo, dlq, pub, &fakeLive{}, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(pub.messages) != 0 {
		t.Fatalf("exhausted event should not be published")
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected one dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq entry references event %s, want %s", entry.EventID, event.ID)
	}
	if entry.ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected dlq reason %q", entry.ErrorReason)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("exhausted event should be marked terminal: %v", repo.terminal)
	}
}

func TestProcessBatchParksNonRetryableFailureInDLQ(t *testing.T) {
	negotiationID := uuid.New()
	rejected := outboxEvent(negotiationID, enums.EventRoundStart)
	next := outboxEvent(negotiationID, enums.EventOffersSnapshot)

	repo := &fakeRepo{events: []models.OutboxEvent{rejected, next}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: status.Error(codes.InvalidArgument, "message too large")},
			fakePublishResult{},
		},
	}
	service := newTestService(t, repo, dlq, pub, &fakeLive{}, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}

	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected dlq entries: %+v", dlq.entries)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("non-retryable failure should not count as retryable: %v", repo.failed)
	}
	// The dead event does not hold back the rest of its negotiation.
	if len(repo.published) != 1 || repo.published[0] != next.ID {
		t.Fatalf("unexpected published rows: %v", repo.published)
	}
}

func TestProcessBatchFansOutToLiveChannel(t *testing.T) {
	negotiationID := uuid.New()
	event := outboxEvent(negotiationID, enums.EventMessage)

	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	live := &fakeLive{}
	service := newTestService(t, repo, &fakeDLQ{}, &fakePublisher{}, live, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(live.channels) != 1 || live.channels[0] != negotiationID.String() {
		t.Fatalf("unexpected live channels: %v", live.channels)
	}
	if string(live.payloads[0]) != `{"version":1}` {
		t.Fatalf("live payload should be the outbox payload")
	}
}

func TestProcessBatchToleratesLiveFanoutFailure(t *testing.T) {
	event := outboxEvent(uuid.New(), enums.EventMessage)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	live := &fakeLive{err: errors.New("redis down")}
	service := newTestService(t, repo, &fakeDLQ{}, &fakePublisher{}, live, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("live failure must not fail the batch: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.published) != 1 {
		t.Fatalf("event should still be marked published")
	}
}
