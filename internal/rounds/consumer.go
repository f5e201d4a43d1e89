package rounds

import (
	"context"
	"encoding/json"
	stdErrors "errors"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
	"github.com/sourcelane/negotiator-backend/pkg/errors"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
	"github.com/sourcelane/negotiator-backend/pkg/outbox"
)

const defaultMaxConcurrent = 4

type negotiationRunner interface {
	Run(ctx context.Context, negotiationID uuid.UUID) error
}

// Consumer watches the negotiation subscription and drives each freshly
// opened negotiation end to end.
type Consumer struct {
	runner       negotiationRunner
	subscription *pubsub.Subscriber
	sem          *semaphore.Weighted
	logg         *logger.Logger
}

// NewConsumer builds a consumer over the negotiation subscription.
func NewConsumer(runner negotiationRunner, subscription *pubsub.Subscriber, logg *logger.Logger, maxConcurrent int64) (*Consumer, error) {
	if runner == nil {
		return nil, stdErrors.New("negotiation runner is required")
	}
	if subscription == nil {
		return nil, stdErrors.New("negotiation subscription is required")
	}
	if logg == nil {
		return nil, stdErrors.New("logger is required")
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &Consumer{
		runner:       runner,
		subscription: subscription,
		sem:          semaphore.NewWeighted(maxConcurrent),
		logg:         logg,
	}, nil
}

// Run processes messages until the context is canceled or the subscription
// errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var envelope outbox.PayloadEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			c.logg.Error(ctx, "dropping undecodable negotiation event", err)
			msg.Ack()
			return
		}
		result := c.Process(ctx, enums.NegotiationEventType(msg.Attributes["event_type"]), envelope)
		if result.Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// ProcessResult tells the transport whether to redeliver.
type ProcessResult struct {
	Nack bool
}

// Process runs one negotiation when the event opens one. Every other event
// type on the topic is fan-out for clients and acked untouched.
func (c *Consumer) Process(ctx context.Context, eventType enums.NegotiationEventType, envelope outbox.PayloadEnvelope) ProcessResult {
	if eventType != enums.EventNegotiationStarted {
		return ProcessResult{}
	}

	logCtx := c.logg.WithNegotiationID(ctx, envelope.NegotiationID.String())

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return ProcessResult{Nack: true}
	}
	defer c.sem.Release(1)

	if err := c.runner.Run(logCtx, envelope.NegotiationID); err != nil {
		if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
			return ProcessResult{Nack: true}
		}
		if errors.As(err).Code() == errors.CodeStateConflict {
			// Redelivery of an already finished negotiation.
			c.logg.Info(logCtx, "skipping negotiation that is no longer running")
			return ProcessResult{}
		}
		// The driver already parked the negotiation in the error state.
		c.logg.Error(logCtx, "negotiation run failed", err)
	}
	return ProcessResult{}
}
