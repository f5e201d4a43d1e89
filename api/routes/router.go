package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sourcelane/negotiator-backend/api/controllers"
	"github.com/sourcelane/negotiator-backend/api/middleware"
	"github.com/sourcelane/negotiator-backend/internal/negotiation"
	"github.com/sourcelane/negotiator-backend/pkg/config"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
)

const (
	scopeNegotiationsRead  = "negotiations:read"
	scopeNegotiationsWrite = "negotiations:write"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readiness map[string]controllers.Pinger,
	negotiationService negotiation.Service,
	sessions controllers.StreamFactory,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/negotiations", func(r chi.Router) {
			r.With(middleware.RequireScope(scopeNegotiationsWrite, logg)).
				Post("/", controllers.StartNegotiation(negotiationService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScope(scopeNegotiationsRead, logg))
				r.Get("/{id}", controllers.NegotiationDetail(negotiationService, logg))
				r.Get("/{id}/state", controllers.NegotiationState(negotiationService, logg))
				r.Get("/{id}/status", controllers.NegotiationStatus(negotiationService, logg))
				r.Get("/{id}/events", controllers.NegotiationEvents(sessions, logg))
				r.Get("/by-quotation/{quotationId}/status", controllers.NegotiationStatusByQuotation(negotiationService, logg))
			})

			r.With(middleware.RequireScope(scopeNegotiationsWrite, logg)).
				Post("/{id}/decision", controllers.RecordDecision(negotiationService, logg))
		})
	})

	return r
}
