package negotiation

import (
	"encoding/json"

	"github.com/sourcelane/negotiator-backend/pkg/enums"
)

// Apply folds one event into the state and returns the next state. It is a
// pure function: the input state is never mutated, so callers can replay the
// same stream any number of times and land on the same aggregate.
//
// The transport redelivers, so every handler tolerates bad input: events that
// reference suppliers the stream has not introduced, payloads that fail to
// decode, and unknown event types are all silent no-ops. Redelivering
// supplier_started or a status transition converges to the same state;
// message and round lists are append-only and accept duplicates, except
// system lines which dedupe by content against the curveball fold.
func Apply(state State, event Event) State {
	next := state.clone()

	switch event.Type {
	case enums.EventNegotiationStarted:
		var p NegotiationStartedPayload
		if !decode(event, &p) {
			return state
		}
		next.NegotiationID = event.NegotiationID
		next.QuotationID = p.QuotationID
		next.ScoringMode = p.ScoringMode
		next.Status = enums.NegotiationStatusNegotiating

	case enums.EventSupplierStarted:
		var p SupplierStartedPayload
		if !decode(event, &p) {
			return state
		}
		if existing := next.Supplier(p.Profile.ID); existing != nil {
			existing.Status = enums.SupplierStatusNegotiating
			break
		}
		// At most one primary-source supplier per negotiation.
		if p.Profile.PrimarySource && next.PrimarySupplier() != nil {
			return state
		}
		sup := SupplierState{
			Profile: p.Profile,
			Status:  enums.SupplierStatusNegotiating,
			Phase:   enums.PhaseInitial,
		}
		if p.Profile.PrimarySource {
			next.Suppliers = append([]SupplierState{sup}, next.Suppliers...)
		} else {
			next.Suppliers = append(next.Suppliers, sup)
		}

	case enums.EventSupplierWaiting:
		var p SupplierWaitingPayload
		if !decode(event, &p) {
			return state
		}
		sup := next.Supplier(p.SupplierID)
		if sup == nil {
			return state
		}
		sup.Status = enums.SupplierStatusWaiting

	case enums.EventRoundStart:
		var p RoundStartPayload
		if !decode(event, &p) {
			return state
		}
		sup := next.Supplier(p.SupplierID)
		if sup == nil {
			return state
		}
		sup.Status = enums.SupplierStatusNegotiating
		sup.CurrentRound = p.RoundNumber
		sup.Phase = p.Phase

	case enums.EventSupplierComplete:
		var p SupplierCompletePayload
		if !decode(event, &p) {
			return state
		}
		sup := next.Supplier(p.SupplierID)
		if sup == nil {
			return state
		}
		sup.Status = enums.SupplierStatusComplete

	case enums.EventMessage:
		var p MessagePayload
		if !decode(event, &p) {
			return state
		}
		sup := next.Supplier(p.SupplierID)
		if sup == nil {
			return state
		}
		// The curveball fold synthesizes the system line itself; skip the
		// producer's copy when both travel on the same stream.
		if p.Role == enums.MessageRoleSystem && hasSystemMessage(sup, p.Content) {
			break
		}
		sup.Messages = append(sup.Messages, Message{
			ID:          p.MessageID,
			Role:        p.Role,
			Content:     p.Content,
			RoundNumber: p.RoundNumber,
			Phase:       p.Phase,
		})

	case enums.EventOfferExtracted:
		var p OfferExtractedPayload
		if !decode(event, &p) {
			return state
		}
		sup := next.Supplier(p.SupplierID)
		if sup == nil {
			return state
		}
		sup.Rounds = append(sup.Rounds, Round{
			RoundNumber: p.RoundNumber,
			Phase:       p.Phase,
			Offer:       p.Offer,
		})

	case enums.EventOffersSnapshot:
		var p OffersSnapshotPayload
		if !decode(event, &p) {
			return state
		}
		next.Snapshots = append(next.Snapshots, p)

	case enums.EventRoundAnalysis:
		var p RoundAnalysisPayload
		if !decode(event, &p) {
			return state
		}
		next.Analyses = append(next.Analyses, p)

	case enums.EventCurveballDetected:
		var p CurveballDetectedPayload
		if !decode(event, &p) {
			return state
		}
		if next.Curveball == nil {
			next.Curveball = &Curveball{DetectedAt: event.OccurredAt}
		}
		next.Curveball.SupplierID = p.SupplierID
		next.Curveball.Description = p.Description
		// The disruption surfaces in the affected supplier's transcript as a
		// system line, synthesized here so a replay of detection alone still
		// shows it.
		if sup := next.Supplier(p.SupplierID); sup != nil && !hasSystemMessage(sup, p.Description) {
			sup.Messages = append(sup.Messages, Message{
				Role:    enums.MessageRoleSystem,
				Content: p.Description,
				Phase:   enums.PhasePostCurveball,
			})
		}

	case enums.EventCurveballAnalysis:
		var p CurveballAnalysisPayload
		if !decode(event, &p) {
			return state
		}
		// Analysis can outrun detection on a lossy replay; keep whatever
		// arrives and let the missing half merge in later.
		if next.Curveball == nil {
			next.Curveball = &Curveball{DetectedAt: event.OccurredAt}
		}
		next.Curveball.Analysis = p.Analysis

	case enums.EventNegotiationComplete:
		next.Status = enums.NegotiationStatusGeneratingDecision

	case enums.EventDecision:
		var p DecisionPayload
		if !decode(event, &p) {
			return state
		}
		next.Decision = &p.Decision
		next.Status = enums.NegotiationStatusComplete

	case enums.EventError:
		var p ErrorPayload
		if !decode(event, &p) {
			return state
		}
		// Error is terminal but keeps everything accumulated so far, so a
		// client can still render the partial negotiation.
		next.Status = enums.NegotiationStatusError
		next.ErrorMessage = p.Message

	default:
		return state
	}

	return next
}

// Replay folds a batch of events over a starting state.
func Replay(state State, events []Event) State {
	for _, event := range events {
		state = Apply(state, event)
	}
	return state
}

func hasSystemMessage(sup *SupplierState, content string) bool {
	for _, msg := range sup.Messages {
		if msg.Role == enums.MessageRoleSystem && msg.Content == content {
			return true
		}
	}
	return false
}

func decode(event Event, dst any) bool {
	if len(event.Payload) == 0 {
		return false
	}
	return json.Unmarshal(event.Payload, dst) == nil
}
