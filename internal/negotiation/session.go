package negotiation

import (
	"context"
	stdErrors "errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
	"github.com/sourcelane/negotiator-backend/pkg/errors"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
)

// SnapshotSource serves persisted negotiation state.
type SnapshotSource interface {
	// FetchState rebuilds the current aggregate from persistence.
	FetchState(ctx context.Context, negotiationID uuid.UUID) (State, error)
}

// EventStream is an open live subscription. Next blocks until an event
// arrives, the stream closes (io.EOF), or ctx is done.
type EventStream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// StreamSource opens the live tail of a negotiation's event stream.
type StreamSource interface {
	OpenStream(ctx context.Context, negotiationID uuid.UUID) (EventStream, error)
}

// Observer receives every state transition the session folds, starting with
// the snapshot itself.
type Observer func(State)

// SessionParams configures an observer session.
type SessionParams struct {
	Snapshots     SnapshotSource
	Streams       StreamSource
	Logger        *logger.Logger
	RetryAttempts uint64
	RetryBackoff  time.Duration
}

// Session follows one negotiation on behalf of a client, surviving
// disconnects. On every (re)connect it loads the persisted snapshot first,
// then folds the live stream on top; an event landing in both the snapshot
// and the tail converges because the fold is idempotent for everything except
// the append-only lists, which persistence deduplicates before the snapshot
// is built.
type Session struct {
	negotiationID uuid.UUID
	snapshots     SnapshotSource
	streams       StreamSource
	logg          *logger.Logger
	attempts      uint64
	backoff       time.Duration

	retries int
}

// NewSession builds a session for one negotiation.
func NewSession(negotiationID uuid.UUID, params SessionParams) (*Session, error) {
	if params.Snapshots == nil {
		return nil, stdErrors.New("snapshot source required")
	}
	if params.Streams == nil {
		return nil, stdErrors.New("stream source required")
	}
	if params.Logger == nil {
		return nil, stdErrors.New("logger required")
	}
	if params.RetryAttempts == 0 {
		params.RetryAttempts = 3
	}
	if params.RetryBackoff <= 0 {
		params.RetryBackoff = 2 * time.Second
	}
	return &Session{
		negotiationID: negotiationID,
		snapshots:     params.Snapshots,
		streams:       params.Streams,
		logg:          params.Logger,
		attempts:      params.RetryAttempts,
		backoff:       params.RetryBackoff,
	}, nil
}

// Retries reports how many transport retries the session has burned so far.
func (s *Session) Retries() int {
	return s.retries
}

// Follow drives the session until the negotiation reaches a terminal status,
// the stream closes, or ctx is cancelled. Cancellation aborts promptly at
// both suspension points: waiting for the snapshot and waiting for the next
// live event.
func (s *Session) Follow(ctx context.Context, observe Observer) (State, error) {
	ctx = s.logg.WithNegotiationID(ctx, s.negotiationID.String())

	state, err := s.loadSnapshot(ctx)
	if err != nil {
		return State{}, err
	}
	observe(state)

	// A negotiation that already finished has nothing left to stream.
	if sessionDone(state.Status) {
		return state, nil
	}

	return s.followStream(ctx, state, observe)
}

func (s *Session) loadSnapshot(ctx context.Context) (State, error) {
	var state State
	backoff := retry.WithMaxRetries(s.attempts, retry.NewConstant(s.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var fetchErr error
		state, fetchErr = s.snapshots.FetchState(ctx, s.negotiationID)
		if fetchErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fetchErr
		}
		if appErr := errors.As(fetchErr); appErr != nil && appErr.Code() == errors.CodeNotFound {
			return fetchErr
		}
		s.retries++
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"error":   fetchErr.Error(),
			"retries": s.retries,
		}), "snapshot fetch failed, retrying")
		return retry.RetryableError(fetchErr)
	})
	if err != nil {
		if appErr := errors.As(err); appErr != nil {
			return State{}, appErr
		}
		return State{}, errors.Wrap(errors.CodeDependency, err, "load negotiation snapshot")
	}
	return state, nil
}

func (s *Session) followStream(ctx context.Context, state State, observe Observer) (State, error) {
	for {
		stream, err := s.openStream(ctx)
		if err != nil {
			return state, err
		}

		state, err = s.drain(ctx, stream, state, observe)
		_ = stream.Close()

		switch {
		case err == nil:
			if sessionDone(state.Status) {
				return state, nil
			}
			// Stream closed cleanly before the terminal event arrived;
			// re-check persistence rather than trusting the tail.
			refreshed, snapErr := s.loadSnapshot(ctx)
			if snapErr != nil {
				return state, snapErr
			}
			observe(refreshed)
			return refreshed, nil
		case stdErrors.Is(err, context.Canceled), stdErrors.Is(err, context.DeadlineExceeded):
			return state, err
		default:
			s.retries++
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"error":   err.Error(),
				"retries": s.retries,
			}), "event stream dropped, reconnecting")
			if uint64(s.retries) > s.attempts {
				return state, errors.Wrap(errors.CodeDependency, err, "event stream retries exhausted")
			}
			select {
			case <-ctx.Done():
				return state, ctx.Err()
			case <-time.After(s.backoff):
			}
			// Resume from a fresh snapshot so nothing delivered while
			// disconnected is lost.
			refreshed, snapErr := s.loadSnapshot(ctx)
			if snapErr != nil {
				return state, snapErr
			}
			state = refreshed
			observe(state)
			if sessionDone(state.Status) {
				return state, nil
			}
		}
	}
}

func (s *Session) openStream(ctx context.Context) (EventStream, error) {
	var stream EventStream
	backoff := retry.WithMaxRetries(s.attempts, retry.NewConstant(s.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var openErr error
		stream, openErr = s.streams.OpenStream(ctx, s.negotiationID)
		if openErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return openErr
		}
		s.retries++
		return retry.RetryableError(openErr)
	})
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "open negotiation stream")
	}
	return stream, nil
}

func (s *Session) drain(ctx context.Context, stream EventStream, state State, observe Observer) (State, error) {
	for {
		event, err := stream.Next(ctx)
		if stdErrors.Is(err, io.EOF) {
			return state, nil
		}
		if err != nil {
			return state, err
		}
		state = Apply(state, event)
		observe(state)
		if sessionDone(state.Status) {
			return state, nil
		}
	}
}

func sessionDone(status enums.NegotiationStatus) bool {
	return status.IsTerminal() || status == enums.NegotiationStatusError
}
