package negotiation

import (
	"context"
	"encoding/json"
	"io"

	"github.com/google/uuid"

	pkgerrors "github.com/sourcelane/negotiator-backend/pkg/errors"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
	"github.com/sourcelane/negotiator-backend/pkg/redis"
)

// LiveStreamSource opens observer event streams over the Redis live channel.
// A stream carries only events published after it opens; history comes from
// the snapshot.
type LiveStreamSource struct {
	client *redis.Client
	logg   *logger.Logger
}

// NewLiveStreamSource wires the Redis client into the session's stream
// contract.
func NewLiveStreamSource(client *redis.Client, logg *logger.Logger) (*LiveStreamSource, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "redis client required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &LiveStreamSource{client: client, logg: logg}, nil
}

// OpenStream subscribes to the negotiation's live channel.
func (s *LiveStreamSource) OpenStream(ctx context.Context, negotiationID uuid.UUID) (EventStream, error) {
	sub, err := s.client.Subscribe(ctx, negotiationID.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "opening live event stream")
	}
	return &liveEventStream{sub: sub, logg: s.logg}, nil
}

type liveEventStream struct {
	sub  *redis.Subscription
	logg *logger.Logger
}

// Next blocks for the next event on the channel. Malformed payloads are
// logged and skipped.
func (s *liveEventStream) Next(ctx context.Context) (Event, error) {
	for {
		payload, err := s.sub.Next(ctx)
		if err != nil {
			if redis.IsClosed(err) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dropping malformed live event")
			continue
		}
		return event, nil
	}
}

func (s *liveEventStream) Close() error {
	return s.sub.Close()
}
