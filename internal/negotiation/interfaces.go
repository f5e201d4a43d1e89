package negotiation

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sourcelane/negotiator-backend/pkg/db/models"
)

// Repository defines persistence operations for negotiation tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateNegotiation(ctx context.Context, negotiation *models.Negotiation) (*models.Negotiation, error)
	CreateQuotationItems(ctx context.Context, items []models.QuotationItem) error
	CreateSuppliers(ctx context.Context, suppliers []models.Supplier) error
	FindNegotiation(ctx context.Context, id uuid.UUID) (*models.Negotiation, error)
	FindNegotiationByQuotation(ctx context.Context, quotationID uuid.UUID) (*models.Negotiation, error)
	UpdateNegotiation(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindSupplier(ctx context.Context, id uuid.UUID) (*models.Supplier, error)
	UpdateSupplier(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CreateRound(ctx context.Context, round *models.NegotiationRound) (*models.NegotiationRound, error)
	FindRounds(ctx context.Context, negotiationID uuid.UUID) ([]models.NegotiationRound, error)
	CreateMessage(ctx context.Context, message *models.NegotiationMessage) (*models.NegotiationMessage, error)
	FindMessages(ctx context.Context, negotiationID uuid.UUID) ([]models.NegotiationMessage, error)
	CreateOffer(ctx context.Context, offer *models.Offer) (*models.Offer, error)
	FindOffers(ctx context.Context, negotiationID uuid.UUID) ([]models.Offer, error)
	CreateDecision(ctx context.Context, decision *models.Decision) (*models.Decision, error)
	FindDecision(ctx context.Context, negotiationID uuid.UUID) (*models.Decision, error)
}
