package rounds

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
	"github.com/sourcelane/negotiator-backend/pkg/errors"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
	"github.com/sourcelane/negotiator-backend/pkg/outbox"
)

type stubRunner struct {
	run func(ctx context.Context, negotiationID uuid.UUID) error

	calls []uuid.UUID
}

func (s *stubRunner) Run(ctx context.Context, negotiationID uuid.UUID) error {
	s.calls = append(s.calls, negotiationID)
	if s.run != nil {
		return s.run(ctx, negotiationID)
	}
	return nil
}

func consumerFixture(runner *stubRunner) *Consumer {
	return &Consumer{
		runner: runner,
		sem:    semaphore.NewWeighted(1),
		logg:   logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard}),
	}
}

func TestProcessRunsStartedNegotiation(t *testing.T) {
	id := uuid.New()
	runner := &stubRunner{}
	c := consumerFixture(runner)

	result := c.Process(context.Background(), enums.EventNegotiationStarted, outbox.PayloadEnvelope{NegotiationID: id})
	if result.Nack {
		t.Fatal("expected ack")
	}
	if len(runner.calls) != 1 || runner.calls[0] != id {
		t.Fatalf("runner calls = %v", runner.calls)
	}
}

func TestProcessIgnoresFanoutEvents(t *testing.T) {
	runner := &stubRunner{}
	c := consumerFixture(runner)

	result := c.Process(context.Background(), enums.EventRoundStart, outbox.PayloadEnvelope{NegotiationID: uuid.New()})
	if result.Nack {
		t.Fatal("expected ack")
	}
	if len(runner.calls) != 0 {
		t.Fatalf("runner should not be reached, calls = %v", runner.calls)
	}
}

func TestProcessAcksFinishedNegotiationRedelivery(t *testing.T) {
	runner := &stubRunner{
		run: func(ctx context.Context, negotiationID uuid.UUID) error {
			return errors.New(errors.CodeStateConflict, "negotiation is not running")
		},
	}
	c := consumerFixture(runner)

	result := c.Process(context.Background(), enums.EventNegotiationStarted, outbox.PayloadEnvelope{NegotiationID: uuid.New()})
	if result.Nack {
		t.Fatal("redelivered terminal negotiation should be acked")
	}
}

func TestProcessNacksOnCancellation(t *testing.T) {
	runner := &stubRunner{
		run: func(ctx context.Context, negotiationID uuid.UUID) error {
			return context.Canceled
		},
	}
	c := consumerFixture(runner)

	result := c.Process(context.Background(), enums.EventNegotiationStarted, outbox.PayloadEnvelope{NegotiationID: uuid.New()})
	if !result.Nack {
		t.Fatal("cancellation should nack for redelivery")
	}
}
