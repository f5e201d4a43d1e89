package negotiation

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sourcelane/negotiator-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a negotiation repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateNegotiation(ctx context.Context, negotiation *models.Negotiation) (*models.Negotiation, error) {
	if err := r.db.WithContext(ctx).Create(negotiation).Error; err != nil {
		return nil, err
	}
	return negotiation, nil
}

func (r *repository) CreateQuotationItems(ctx context.Context, items []models.QuotationItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) CreateSuppliers(ctx context.Context, suppliers []models.Supplier) error {
	if len(suppliers) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&suppliers).Error
}

func (r *repository) FindNegotiation(ctx context.Context, id uuid.UUID) (*models.Negotiation, error) {
	var negotiation models.Negotiation
	err := r.db.WithContext(ctx).
		Preload("Suppliers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("QuotationItems").
		Where("id = ?", id).
		First(&negotiation).Error
	if err != nil {
		return nil, err
	}
	return &negotiation, nil
}

func (r *repository) FindNegotiationByQuotation(ctx context.Context, quotationID uuid.UUID) (*models.Negotiation, error) {
	var negotiation models.Negotiation
	err := r.db.WithContext(ctx).
		Preload("Suppliers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("QuotationItems").
		Where("quotation_id = ?", quotationID).
		Order("created_at DESC").
		First(&negotiation).Error
	if err != nil {
		return nil, err
	}
	return &negotiation, nil
}

func (r *repository) UpdateNegotiation(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Negotiation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) FindSupplier(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	var supplier models.Supplier
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&supplier).Error
	if err != nil {
		return nil, err
	}
	return &supplier, nil
}

func (r *repository) UpdateSupplier(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Supplier{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) CreateRound(ctx context.Context, round *models.NegotiationRound) (*models.NegotiationRound, error) {
	if err := r.db.WithContext(ctx).Create(round).Error; err != nil {
		return nil, err
	}
	return round, nil
}

func (r *repository) FindRounds(ctx context.Context, negotiationID uuid.UUID) ([]models.NegotiationRound, error) {
	var rounds []models.NegotiationRound
	err := r.db.WithContext(ctx).
		Where("negotiation_id = ?", negotiationID).
		Order("created_at ASC").
		Find(&rounds).Error
	if err != nil {
		return nil, err
	}
	return rounds, nil
}

func (r *repository) CreateMessage(ctx context.Context, message *models.NegotiationMessage) (*models.NegotiationMessage, error) {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, err
	}
	return message, nil
}

func (r *repository) FindMessages(ctx context.Context, negotiationID uuid.UUID) ([]models.NegotiationMessage, error) {
	var messages []models.NegotiationMessage
	err := r.db.WithContext(ctx).
		Where("negotiation_id = ?", negotiationID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *repository) CreateOffer(ctx context.Context, offer *models.Offer) (*models.Offer, error) {
	if err := r.db.WithContext(ctx).Create(offer).Error; err != nil {
		return nil, err
	}
	return offer, nil
}

func (r *repository) FindOffers(ctx context.Context, negotiationID uuid.UUID) ([]models.Offer, error) {
	var offers []models.Offer
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("negotiation_id = ?", negotiationID).
		Order("created_at ASC").
		Find(&offers).Error
	if err != nil {
		return nil, err
	}
	return offers, nil
}

func (r *repository) CreateDecision(ctx context.Context, decision *models.Decision) (*models.Decision, error) {
	if err := r.db.WithContext(ctx).Create(decision).Error; err != nil {
		return nil, err
	}
	return decision, nil
}

func (r *repository) FindDecision(ctx context.Context, negotiationID uuid.UUID) (*models.Decision, error) {
	var decision models.Decision
	err := r.db.WithContext(ctx).
		Where("negotiation_id = ?", negotiationID).
		First(&decision).Error
	if err != nil {
		return nil, err
	}
	return &decision, nil
}
