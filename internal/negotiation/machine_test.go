package negotiation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
)

func mustEvent(t *testing.T, negotiationID uuid.UUID, eventType enums.NegotiationEventType, payload any) Event {
	t.Helper()
	event, err := NewEvent(negotiationID, eventType, payload)
	require.NoError(t, err)
	return event
}

func profileFixture(name string, primary bool) SupplierProfile {
	return SupplierProfile{
		ID:            uuid.New(),
		Name:          name,
		QualityRating: 4.0,
		LeadTimeDays:  20,
		PriceLevel:    enums.PriceLevelMid,
		PrimarySource: primary,
	}
}

func TestApplyNegotiationStarted(t *testing.T) {
	negotiationID := uuid.New()
	quotationID := uuid.New()
	state := NewState(negotiationID)

	state = Apply(state, mustEvent(t, negotiationID, enums.EventNegotiationStarted, NegotiationStartedPayload{
		QuotationID: quotationID,
		ScoringMode: enums.ScoringModeBalanced,
	}))

	assert.Equal(t, enums.NegotiationStatusNegotiating, state.Status)
	assert.Equal(t, quotationID, state.QuotationID)
	assert.Equal(t, enums.ScoringModeBalanced, state.ScoringMode)
}

func TestApplySupplierStartedIsIdempotent(t *testing.T) {
	negotiationID := uuid.New()
	profile := profileFixture("Acme Packaging", false)
	event := mustEvent(t, negotiationID, enums.EventSupplierStarted, SupplierStartedPayload{Profile: profile})

	once := Apply(NewState(negotiationID), event)
	twice := Apply(once, event)

	require.Len(t, twice.Suppliers, 1)
	assert.Equal(t, once.Suppliers, twice.Suppliers)
	assert.Equal(t, enums.SupplierStatusNegotiating, twice.Suppliers[0].Status)
}

func TestApplyOrdersPrimarySupplierFirst(t *testing.T) {
	negotiationID := uuid.New()
	secondary := profileFixture("Budget Box Co", false)
	primary := profileFixture("Prime Cartons", true)

	state := NewState(negotiationID)
	state = Apply(state, mustEvent(t, negotiationID, enums.EventSupplierStarted, SupplierStartedPayload{Profile: secondary}))
	state = Apply(state, mustEvent(t, negotiationID, enums.EventSupplierStarted, SupplierStartedPayload{Profile: primary}))

	require.Len(t, state.Suppliers, 2)
	assert.Equal(t, primary.ID, state.Suppliers[0].Profile.ID)
	assert.Equal(t, secondary.ID, state.Suppliers[1].Profile.ID)
}

func TestApplyRejectsSecondPrimarySupplier(t *testing.T) {
	negotiationID := uuid.New()
	first := profileFixture("Prime Cartons", true)
	second := profileFixture("Also Primary", true)

	state := NewState(negotiationID)
	state = Apply(state, mustEvent(t, negotiationID, enums.EventSupplierStarted, SupplierStartedPayload{Profile: first}))
	state = Apply(state, mustEvent(t, negotiationID, enums.EventSupplierStarted, SupplierStartedPayload{Profile: second}))

	require.Len(t, state.Suppliers, 1)
	assert.Equal(t, first.ID, state.Suppliers[0].Profile.ID)
}

func TestApplyUnknownSupplierIsNoOp(t *testing.T) {
	negotiationID := uuid.New()
	state := NewState(negotiationID)

	next := Apply(state, mustEvent(t, negotiationID, enums.EventRoundStart, RoundStartPayload{
		SupplierID:  uuid.New(),
		RoundNumber: 1,
		Phase:       enums.PhaseInitial,
	}))
	assert.Equal(t, state, next)

	next = Apply(state, mustEvent(t, negotiationID, enums.EventMessage, MessagePayload{
		MessageID:  uuid.New(),
		SupplierID: uuid.New(),
		Role:       enums.MessageRoleSupplierAgent,
		Content:    "hello",
	}))
	assert.Equal(t, state, next)
}

func TestApplyUnknownEventTypeIsNoOp(t *testing.T) {
	negotiationID := uuid.New()
	state := Apply(NewState(negotiationID), mustEvent(t, negotiationID, enums.EventNegotiationStarted, NegotiationStartedPayload{QuotationID: uuid.New()}))

	event := mustEvent(t, negotiationID, enums.EventMessage, MessagePayload{})
	event.Type = "supplier_teleported"
	assert.Equal(t, state, Apply(state, event))
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	negotiationID := uuid.New()
	profile := profileFixture("Acme Packaging", false)

	base := Apply(NewState(negotiationID), mustEvent(t, negotiationID, enums.EventSupplierStarted, SupplierStartedPayload{Profile: profile}))
	before := base.clone()

	_ = Apply(base, mustEvent(t, negotiationID, enums.EventMessage, MessagePayload{
		MessageID:   uuid.New(),
		SupplierID:  profile.ID,
		Role:        enums.MessageRoleBrandAgent,
		Content:     "opening position",
		RoundNumber: 1,
		Phase:       enums.PhaseInitial,
	}))
	_ = Apply(base, mustEvent(t, negotiationID, enums.EventSupplierComplete, SupplierCompletePayload{SupplierID: profile.ID}))

	assert.Equal(t, before, base)
}

func TestApplyRoundLifecycle(t *testing.T) {
	negotiationID := uuid.New()
	profile := profileFixture("Acme Packaging", false)
	state := Apply(NewState(negotiationID), mustEvent(t, negotiationID, enums.EventSupplierStarted, SupplierStartedPayload{Profile: profile}))

	state = Apply(state, mustEvent(t, negotiationID, enums.EventRoundStart, RoundStartPayload{
		SupplierID:  profile.ID,
		RoundNumber: 1,
		Phase:       enums.PhaseInitial,
	}))
	state = Apply(state, mustEvent(t, negotiationID, enums.EventOfferExtracted, OfferExtractedPayload{
		SupplierID:  profile.ID,
		RoundNumber: 1,
		Phase:       enums.PhaseInitial,
		Offer:       Offer{TotalCost: 4800, LeadTimeDays: 21, PaymentTerms: "net-30"},
	}))
	state = Apply(state, mustEvent(t, negotiationID, enums.EventSupplierWaiting, SupplierWaitingPayload{SupplierID: profile.ID}))

	sup := state.Supplier(profile.ID)
	require.NotNil(t, sup)
	assert.Equal(t, enums.SupplierStatusWaiting, sup.Status)
	assert.Equal(t, 1, sup.CurrentRound)
	require.Len(t, sup.Rounds, 1)
	assert.InDelta(t, 4800, sup.Rounds[0].Offer.TotalCost, 1e-9)

	state = Apply(state, mustEvent(t, negotiationID, enums.EventSupplierComplete, SupplierCompletePayload{SupplierID: profile.ID}))
	assert.Equal(t, enums.SupplierStatusComplete, state.Supplier(profile.ID).Status)
}

func TestApplyCurveballMergesOutOfOrder(t *testing.T) {
	negotiationID := uuid.New()
	profile := profileFixture("Acme Packaging", false)
	state := Apply(NewState(negotiationID), mustEvent(t, negotiationID, enums.EventSupplierStarted, SupplierStartedPayload{Profile: profile}))

	// Analysis lands before detection on a lossy replay.
	state = Apply(state, mustEvent(t, negotiationID, enums.EventCurveballAnalysis, CurveballAnalysisPayload{
		Analysis: "material shortage raises unit cost",
	}))
	require.NotNil(t, state.Curveball)
	assert.Equal(t, "material shortage raises unit cost", state.Curveball.Analysis)

	state = Apply(state, mustEvent(t, negotiationID, enums.EventCurveballDetected, CurveballDetectedPayload{
		SupplierID:  profile.ID,
		Description: "resin supply disruption",
	}))
	require.NotNil(t, state.Curveball)
	assert.Equal(t, profile.ID, state.Curveball.SupplierID)
	assert.Equal(t, "resin supply disruption", state.Curveball.Description)
	assert.Equal(t, "material shortage raises unit cost", state.Curveball.Analysis)
}

func TestApplyCurveballDetectedSynthesizesSystemMessage(t *testing.T) {
	negotiationID := uuid.New()
	profile := profileFixture("Acme Packaging", false)
	state := Apply(NewState(negotiationID), mustEvent(t, negotiationID, enums.EventSupplierStarted, SupplierStartedPayload{Profile: profile}))

	state = Apply(state, mustEvent(t, negotiationID, enums.EventCurveballDetected, CurveballDetectedPayload{
		SupplierID:  profile.ID,
		Description: "resin supply disruption",
	}))

	sup := state.Supplier(profile.ID)
	require.NotNil(t, sup)
	require.Len(t, sup.Messages, 1)
	assert.Equal(t, enums.MessageRoleSystem, sup.Messages[0].Role)
	assert.Equal(t, "resin supply disruption", sup.Messages[0].Content)
	assert.Equal(t, enums.PhasePostCurveball, sup.Messages[0].Phase)
}

func TestApplyCurveballSystemMessageNotDuplicated(t *testing.T) {
	negotiationID := uuid.New()
	profile := profileFixture("Acme Packaging", false)
	detected := mustEvent(t, negotiationID, enums.EventCurveballDetected, CurveballDetectedPayload{
		SupplierID:  profile.ID,
		Description: "resin supply disruption",
	})
	message := mustEvent(t, negotiationID, enums.EventMessage, MessagePayload{
		MessageID:  uuid.New(),
		SupplierID: profile.ID,
		Role:       enums.MessageRoleSystem,
		Content:    "resin supply disruption",
		Phase:      enums.PhasePostCurveball,
	})
	base := Apply(NewState(negotiationID), mustEvent(t, negotiationID, enums.EventSupplierStarted, SupplierStartedPayload{Profile: profile}))

	// One system line regardless of which copy folds first, and detection
	// redelivery converges too.
	forward := Apply(Apply(base, message), detected)
	backward := Apply(Apply(Apply(base, detected), message), detected)
	assert.Len(t, forward.Supplier(profile.ID).Messages, 1)
	assert.Len(t, backward.Supplier(profile.ID).Messages, 1)
}

func TestApplyErrorKeepsAccumulatedState(t *testing.T) {
	negotiationID := uuid.New()
	profile := profileFixture("Acme Packaging", false)

	state := Apply(NewState(negotiationID), mustEvent(t, negotiationID, enums.EventNegotiationStarted, NegotiationStartedPayload{QuotationID: uuid.New()}))
	state = Apply(state, mustEvent(t, negotiationID, enums.EventSupplierStarted, SupplierStartedPayload{Profile: profile}))
	state = Apply(state, mustEvent(t, negotiationID, enums.EventOfferExtracted, OfferExtractedPayload{
		SupplierID:  profile.ID,
		RoundNumber: 1,
		Phase:       enums.PhaseInitial,
		Offer:       Offer{TotalCost: 4800},
	}))

	state = Apply(state, mustEvent(t, negotiationID, enums.EventError, ErrorPayload{Message: "model upstream timed out"}))

	assert.Equal(t, enums.NegotiationStatusError, state.Status)
	assert.Equal(t, "model upstream timed out", state.ErrorMessage)
	require.Len(t, state.Suppliers, 1)
	require.Len(t, state.Suppliers[0].Rounds, 1)
}

func TestApplyDecisionCompletesNegotiation(t *testing.T) {
	negotiationID := uuid.New()
	winner := uuid.New()

	state := Apply(NewState(negotiationID), mustEvent(t, negotiationID, enums.EventNegotiationStarted, NegotiationStartedPayload{QuotationID: uuid.New()}))
	state = Apply(state, mustEvent(t, negotiationID, enums.EventNegotiationComplete, struct{}{}))
	assert.Equal(t, enums.NegotiationStatusGeneratingDecision, state.Status)

	state = Apply(state, mustEvent(t, negotiationID, enums.EventDecision, DecisionPayload{
		Decision: FinalDecision{SelectedSupplierID: winner, Summary: "best weighted score with acceptable lead time"},
	}))
	assert.Equal(t, enums.NegotiationStatusComplete, state.Status)
	require.NotNil(t, state.Decision)
	assert.Equal(t, winner, state.Decision.SelectedSupplierID)
}

func TestReplayReconnectResumesFromSnapshot(t *testing.T) {
	negotiationID := uuid.New()
	profile := profileFixture("Acme Packaging", false)

	// Snapshot rebuilt from persistence covers two completed rounds.
	snapshot := NewState(negotiationID)
	snapshot = Apply(snapshot, mustEvent(t, negotiationID, enums.EventNegotiationStarted, NegotiationStartedPayload{QuotationID: uuid.New()}))
	snapshot = Apply(snapshot, mustEvent(t, negotiationID, enums.EventSupplierStarted, SupplierStartedPayload{Profile: profile}))
	for round := 1; round <= 2; round++ {
		snapshot = Apply(snapshot, mustEvent(t, negotiationID, enums.EventRoundStart, RoundStartPayload{
			SupplierID: profile.ID, RoundNumber: round, Phase: enums.PhaseInitial,
		}))
		snapshot = Apply(snapshot, mustEvent(t, negotiationID, enums.EventOfferExtracted, OfferExtractedPayload{
			SupplierID: profile.ID, RoundNumber: round, Phase: enums.PhaseInitial,
			Offer: Offer{TotalCost: 5000 - float64(round)*100},
		}))
	}

	// Live tail after reconnect carries the third round.
	live := []Event{
		mustEvent(t, negotiationID, enums.EventRoundStart, RoundStartPayload{
			SupplierID: profile.ID, RoundNumber: 3, Phase: enums.PhaseInitial,
		}),
		mustEvent(t, negotiationID, enums.EventOfferExtracted, OfferExtractedPayload{
			SupplierID: profile.ID, RoundNumber: 3, Phase: enums.PhaseInitial,
			Offer: Offer{TotalCost: 4700},
		}),
		mustEvent(t, negotiationID, enums.EventSupplierComplete, SupplierCompletePayload{SupplierID: profile.ID}),
	}

	state := Replay(snapshot, live)

	sup := state.Supplier(profile.ID)
	require.NotNil(t, sup)
	require.Len(t, sup.Rounds, 3)
	assert.Equal(t, 3, sup.CurrentRound)
	assert.Equal(t, enums.SupplierStatusComplete, sup.Status)
	assert.InDelta(t, 4700, sup.Rounds[2].Offer.TotalCost, 1e-9)
}

func TestNewEventStampsEnvelope(t *testing.T) {
	negotiationID := uuid.New()
	before := time.Now().UTC()
	event := mustEvent(t, negotiationID, enums.EventSupplierWaiting, SupplierWaitingPayload{SupplierID: uuid.New()})

	assert.Equal(t, negotiationID, event.NegotiationID)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.False(t, event.OccurredAt.Before(before.Add(-time.Second)))
	assert.NotEmpty(t, event.Payload)
}
