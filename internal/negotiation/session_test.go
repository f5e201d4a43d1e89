package negotiation

import (
	"context"
	stdErrors "errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
)

type stubSnapshots struct {
	states []State
	errs   []error
	calls  int
}

func (s *stubSnapshots) FetchState(_ context.Context, _ uuid.UUID) (State, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return State{}, s.errs[idx]
	}
	if idx < len(s.states) {
		return s.states[idx], nil
	}
	return s.states[len(s.states)-1], nil
}

type scriptedStream struct {
	events []Event
	err    error
	pos    int
	block  bool
}

func (s *scriptedStream) Next(ctx context.Context) (Event, error) {
	if s.pos < len(s.events) {
		event := s.events[s.pos]
		s.pos++
		return event, nil
	}
	if s.block {
		<-ctx.Done()
		return Event{}, ctx.Err()
	}
	if s.err != nil {
		return Event{}, s.err
	}
	return Event{}, io.EOF
}

func (s *scriptedStream) Close() error { return nil }

type stubStreams struct {
	streams []*scriptedStream
	errs    []error
	calls   int
}

func (s *stubStreams) OpenStream(_ context.Context, _ uuid.UUID) (EventStream, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	if idx < len(s.streams) {
		return s.streams[idx], nil
	}
	return s.streams[len(s.streams)-1], nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: "session-test",
		Level:       zerolog.Disabled,
		Output:      io.Discard,
	})
}

func sessionFixture(t *testing.T, negotiationID uuid.UUID, snapshots SnapshotSource, streams StreamSource) *Session {
	t.Helper()
	session, err := NewSession(negotiationID, SessionParams{
		Snapshots:     snapshots,
		Streams:       streams,
		Logger:        testLogger(),
		RetryAttempts: 2,
		RetryBackoff:  time.Millisecond,
	})
	require.NoError(t, err)
	return session
}

func inFlightState(t *testing.T, negotiationID uuid.UUID, profile SupplierProfile, rounds int) State {
	t.Helper()
	state := NewState(negotiationID)
	state = Apply(state, mustEvent(t, negotiationID, enums.EventNegotiationStarted, NegotiationStartedPayload{QuotationID: uuid.New()}))
	state = Apply(state, mustEvent(t, negotiationID, enums.EventSupplierStarted, SupplierStartedPayload{Profile: profile}))
	for round := 1; round <= rounds; round++ {
		state = Apply(state, mustEvent(t, negotiationID, enums.EventRoundStart, RoundStartPayload{
			SupplierID: profile.ID, RoundNumber: round, Phase: enums.PhaseInitial,
		}))
		state = Apply(state, mustEvent(t, negotiationID, enums.EventOfferExtracted, OfferExtractedPayload{
			SupplierID: profile.ID, RoundNumber: round, Phase: enums.PhaseInitial,
			Offer: Offer{TotalCost: 5000 - float64(round)*100},
		}))
	}
	return state
}

func TestFollowCompletedNegotiationSkipsStream(t *testing.T) {
	negotiationID := uuid.New()
	done := NewState(negotiationID)
	done.Status = enums.NegotiationStatusComplete
	done.Decision = &FinalDecision{SelectedSupplierID: uuid.New(), Summary: "done"}

	snapshots := &stubSnapshots{states: []State{done}}
	streams := &stubStreams{}
	session := sessionFixture(t, negotiationID, snapshots, streams)

	var observed []State
	state, err := session.Follow(context.Background(), func(s State) { observed = append(observed, s) })
	require.NoError(t, err)

	assert.Equal(t, enums.NegotiationStatusComplete, state.Status)
	assert.Len(t, observed, 1)
	assert.Zero(t, streams.calls, "no stream should be opened for a finished negotiation")
}

func TestFollowFoldsLiveTailOnSnapshot(t *testing.T) {
	negotiationID := uuid.New()
	profile := profileFixture("Acme Packaging", false)
	snapshot := inFlightState(t, negotiationID, profile, 2)

	live := &scriptedStream{events: []Event{
		mustEvent(t, negotiationID, enums.EventRoundStart, RoundStartPayload{
			SupplierID: profile.ID, RoundNumber: 3, Phase: enums.PhaseInitial,
		}),
		mustEvent(t, negotiationID, enums.EventOfferExtracted, OfferExtractedPayload{
			SupplierID: profile.ID, RoundNumber: 3, Phase: enums.PhaseInitial,
			Offer: Offer{TotalCost: 4700},
		}),
		mustEvent(t, negotiationID, enums.EventDecision, DecisionPayload{
			Decision: FinalDecision{SelectedSupplierID: profile.ID, Summary: "only supplier standing"},
		}),
	}}

	session := sessionFixture(t, negotiationID, &stubSnapshots{states: []State{snapshot}}, &stubStreams{streams: []*scriptedStream{live}})

	var observed []State
	state, err := session.Follow(context.Background(), func(s State) { observed = append(observed, s) })
	require.NoError(t, err)

	assert.Equal(t, enums.NegotiationStatusComplete, state.Status)
	require.NotNil(t, state.Supplier(profile.ID))
	assert.Len(t, state.Supplier(profile.ID).Rounds, 3)
	// Snapshot plus one notification per live event.
	assert.Len(t, observed, 4)
	assert.Zero(t, session.Retries())
}

func TestFollowReconnectsAfterStreamDrop(t *testing.T) {
	negotiationID := uuid.New()
	profile := profileFixture("Acme Packaging", false)
	first := inFlightState(t, negotiationID, profile, 1)
	second := inFlightState(t, negotiationID, profile, 2)

	dropped := &scriptedStream{err: stdErrors.New("connection reset")}
	recovered := &scriptedStream{events: []Event{
		mustEvent(t, negotiationID, enums.EventDecision, DecisionPayload{
			Decision: FinalDecision{SelectedSupplierID: profile.ID, Summary: "held best terms"},
		}),
	}}

	session := sessionFixture(t, negotiationID,
		&stubSnapshots{states: []State{first, second}},
		&stubStreams{streams: []*scriptedStream{dropped, recovered}},
	)

	state, err := session.Follow(context.Background(), func(State) {})
	require.NoError(t, err)

	assert.Equal(t, enums.NegotiationStatusComplete, state.Status)
	assert.Len(t, state.Supplier(profile.ID).Rounds, 2, "reconnect snapshot should include the round missed while disconnected")
	assert.Equal(t, 1, session.Retries())
}

func TestFollowRetriesSnapshotFetch(t *testing.T) {
	negotiationID := uuid.New()
	done := NewState(negotiationID)
	done.Status = enums.NegotiationStatusComplete

	snapshots := &stubSnapshots{
		errs:   []error{stdErrors.New("db unavailable"), nil},
		states: []State{{}, done},
	}
	session := sessionFixture(t, negotiationID, snapshots, &stubStreams{})

	state, err := session.Follow(context.Background(), func(State) {})
	require.NoError(t, err)
	assert.Equal(t, enums.NegotiationStatusComplete, state.Status)
	assert.Equal(t, 1, session.Retries())
}

func TestFollowAbortsOnCancelWhileStreaming(t *testing.T) {
	negotiationID := uuid.New()
	profile := profileFixture("Acme Packaging", false)
	snapshot := inFlightState(t, negotiationID, profile, 1)

	blocking := &scriptedStream{block: true}
	session := sessionFixture(t, negotiationID,
		&stubSnapshots{states: []State{snapshot}},
		&stubStreams{streams: []*scriptedStream{blocking}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := session.Follow(ctx, func(State) {})
	require.Error(t, err)
	assert.True(t, stdErrors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), time.Second)
}
