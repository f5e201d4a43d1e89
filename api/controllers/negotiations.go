package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sourcelane/negotiator-backend/api/responses"
	"github.com/sourcelane/negotiator-backend/api/validators"
	"github.com/sourcelane/negotiator-backend/internal/negotiation"
	pkgerrors "github.com/sourcelane/negotiator-backend/pkg/errors"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
)

// StreamFactory builds a follow session for one negotiation.
type StreamFactory func(negotiationID uuid.UUID) (*negotiation.Session, error)

// StartNegotiation opens a negotiation for a quotation.
func StartNegotiation(svc negotiation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiation service unavailable"))
			return
		}

		var payload negotiation.StartNegotiationInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Start(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// NegotiationDetail returns the persisted negotiation record.
func NegotiationDetail(svc negotiation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiation service unavailable"))
			return
		}

		id, err := parseNegotiationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, record)
	}
}

// NegotiationState rebuilds the full aggregate the way a reconnecting client
// would see it.
func NegotiationState(svc negotiation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiation service unavailable"))
			return
		}

		id, err := parseNegotiationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, err := svc.FetchState(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, state)
	}
}

// NegotiationStatus is the cheap probe a client checks before opening the
// event stream.
func NegotiationStatus(svc negotiation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiation service unavailable"))
			return
		}

		id, err := parseNegotiationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.Status(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, status)
	}
}

// NegotiationStatusByQuotation resolves status through the quotation the
// negotiation was opened for.
func NegotiationStatusByQuotation(svc negotiation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiation service unavailable"))
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "quotationId"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "quotation id is required"))
			return
		}
		quotationID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid quotation id"))
			return
		}

		status, err := svc.StatusByQuotation(r.Context(), quotationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, status)
	}
}

// RecordDecision closes a negotiation with its final outcome.
func RecordDecision(svc negotiation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiation service unavailable"))
			return
		}

		id, err := parseNegotiationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload negotiation.RecordDecisionInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.NegotiationID = id

		decision, err := svc.RecordDecision(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, decision)
	}
}

// NegotiationEvents streams state transitions over SSE. The session loads the
// persisted snapshot first and folds the live feed on top, so a client that
// reconnects mid-negotiation never misses a transition.
func NegotiationEvents(sessions StreamFactory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stream source unavailable"))
			return
		}

		id, err := parseNegotiationID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		session, err := sessions(id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "opening negotiation stream"))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		seq := 0
		_, err = session.Follow(r.Context(), func(state negotiation.State) {
			seq++
			writeSSEState(w, seq, state)
			flusher.Flush()
		})
		if err != nil && logg != nil {
			logg.Error(r.Context(), "negotiation stream ended with error", err)
		}

		fmt.Fprint(w, "event: done\ndata: {}\n\n")
		flusher.Flush()
	}
}

func writeSSEState(w http.ResponseWriter, seq int, state negotiation.State) {
	body, err := json.Marshal(state)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\nevent: state\ndata: %s\n\n", seq, body)
}

func parseNegotiationID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "negotiation id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid negotiation id")
	}
	return id, nil
}
