package negotiation

import (
	"context"
	stdErrors "errors"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sourcelane/negotiator-backend/pkg/db/models"
	"github.com/sourcelane/negotiator-backend/pkg/enums"
	"github.com/sourcelane/negotiator-backend/pkg/errors"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
	"github.com/sourcelane/negotiator-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines negotiation lifecycle operations.
type Service interface {
	Start(ctx context.Context, input StartNegotiationInput) (*models.Negotiation, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Negotiation, error)
	Status(ctx context.Context, id uuid.UUID) (*StatusView, error)
	StatusByQuotation(ctx context.Context, quotationID uuid.UUID) (*StatusView, error)
	RecordDecision(ctx context.Context, input RecordDecisionInput) (*models.Decision, error)
	FetchState(ctx context.Context, id uuid.UUID) (State, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires the negotiation service.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, logg *logger.Logger) Service {
	return &service{repo: repo, tx: tx, outbox: publisher, logg: logg}
}

// Start opens a negotiation: the baseline, the supplier pool and the opening
// events commit in one transaction.
func (s *service) Start(ctx context.Context, input StartNegotiationInput) (*models.Negotiation, error) {
	mode := enums.ScoringModeBalanced
	if input.ScoringMode != "" {
		parsed, err := enums.ParseScoringMode(input.ScoringMode)
		if err != nil {
			return nil, errors.New(errors.CodeValidation, "unknown scoring mode").WithDetails(input.ScoringMode)
		}
		mode = parsed
	}

	primaries := 0
	for _, supplier := range input.Suppliers {
		if supplier.PrimarySource {
			primaries++
		}
	}
	if primaries > 1 {
		return nil, errors.New(errors.CodeValidation, "at most one primary-source supplier is allowed")
	}

	negotiation := &models.Negotiation{
		QuotationID: input.QuotationID,
		Status:      enums.NegotiationStatusNegotiating,
		ScoringMode: mode,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.CreateNegotiation(ctx, negotiation); err != nil {
			return err
		}

		items := make([]models.QuotationItem, 0, len(input.Items))
		for _, item := range input.Items {
			unit := decimal.NewFromFloat(item.UnitPrice)
			items = append(items, models.QuotationItem{
				NegotiationID: negotiation.ID,
				SKU:           item.SKU,
				Description:   item.Description,
				Quantity:      item.Quantity,
				UnitPrice:     unit,
				TotalPrice:    unit.Mul(decimal.NewFromInt(int64(item.Quantity))),
			})
		}
		if err := repo.CreateQuotationItems(ctx, items); err != nil {
			return err
		}

		suppliers := make([]models.Supplier, 0, len(input.Suppliers))
		for _, supplier := range input.Suppliers {
			level, err := enums.ParsePriceLevel(supplier.PriceLevel)
			if err != nil {
				return errors.New(errors.CodeValidation, "unknown price level").WithDetails(supplier.PriceLevel)
			}
			suppliers = append(suppliers, models.Supplier{
				NegotiationID: negotiation.ID,
				Name:          supplier.Name,
				Code:          supplier.Code,
				QualityRating: supplier.QualityRating,
				PriceLevel:    level,
				LeadTimeDays:  supplier.LeadTimeDays,
				PaymentTerms:  supplier.PaymentTerms,
				PrimarySource: supplier.PrimarySource,
				Status:        enums.SupplierStatusWaiting,
			})
		}
		// The primary source always negotiates first.
		sort.SliceStable(suppliers, func(i, j int) bool {
			return suppliers[i].PrimarySource && !suppliers[j].PrimarySource
		})
		for i := range suppliers {
			suppliers[i].Position = i
		}
		if err := repo.CreateSuppliers(ctx, suppliers); err != nil {
			return err
		}
		negotiation.Suppliers = suppliers
		negotiation.QuotationItems = items

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNegotiationStarted,
			AggregateType: enums.OutboxAggregateNegotiation,
			AggregateID:   negotiation.ID,
			Data: NegotiationStartedPayload{
				QuotationID: input.QuotationID,
				ScoringMode: mode,
			},
			Version: 1,
		}); err != nil {
			return err
		}

		// Introduce every supplier on the stream in pool order so replaying
		// from the first event rebuilds the pool without the snapshot.
		for _, supplier := range suppliers {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventSupplierStarted,
				AggregateType: enums.OutboxAggregateNegotiation,
				AggregateID:   negotiation.ID,
				Data:          SupplierStartedPayload{Profile: SupplierProfileFromModel(supplier)},
				Version:       1,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if appErr := errors.As(err); appErr != nil {
			return nil, appErr
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "start negotiation")
	}

	s.logg.Info(s.logg.WithNegotiationID(ctx, negotiation.ID.String()), "negotiation started")
	return negotiation, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Negotiation, error) {
	negotiation, err := s.repo.FindNegotiation(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "negotiation not found")
	}
	return negotiation, nil
}

func (s *service) Status(ctx context.Context, id uuid.UUID) (*StatusView, error) {
	negotiation, err := s.repo.FindNegotiation(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "negotiation not found")
	}
	return s.statusView(ctx, negotiation)
}

func (s *service) StatusByQuotation(ctx context.Context, quotationID uuid.UUID) (*StatusView, error) {
	negotiation, err := s.repo.FindNegotiationByQuotation(ctx, quotationID)
	if err != nil {
		return nil, notFoundOr(err, "no negotiation for quotation")
	}
	return s.statusView(ctx, negotiation)
}

func (s *service) statusView(ctx context.Context, negotiation *models.Negotiation) (*StatusView, error) {
	view := &StatusView{
		NegotiationID: negotiation.ID,
		QuotationID:   negotiation.QuotationID,
		Status:        negotiation.Status,
	}
	if negotiation.Status != enums.NegotiationStatusComplete {
		return view, nil
	}
	decision, err := s.repo.FindDecision(ctx, negotiation.ID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return view, nil
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "load decision")
	}
	view.Decision = &FinalDecision{
		SelectedSupplierID: decision.SelectedSupplierID,
		Summary:            decision.Summary,
	}
	return view, nil
}

// RecordDecision closes a negotiation. The decision row, the status flip and
// the terminal events commit together; redelivered calls converge on the
// first recorded decision.
func (s *service) RecordDecision(ctx context.Context, input RecordDecisionInput) (*models.Decision, error) {
	negotiation, err := s.repo.FindNegotiation(ctx, input.NegotiationID)
	if err != nil {
		return nil, notFoundOr(err, "negotiation not found")
	}
	if negotiation.Status == enums.NegotiationStatusComplete {
		existing, err := s.repo.FindDecision(ctx, input.NegotiationID)
		if err == nil {
			return existing, nil
		}
		return nil, errors.New(errors.CodeStateConflict, "negotiation already complete")
	}
	if negotiation.Status == enums.NegotiationStatusError {
		return nil, errors.New(errors.CodeStateConflict, "negotiation is in error state")
	}

	supplierKnown := false
	for _, supplier := range negotiation.Suppliers {
		if supplier.ID == input.SelectedSupplierID {
			supplierKnown = true
			break
		}
	}
	if !supplierKnown {
		return nil, errors.New(errors.CodeValidation, "selected supplier does not belong to this negotiation")
	}

	decision := &models.Decision{
		NegotiationID:      input.NegotiationID,
		SelectedSupplierID: input.SelectedSupplierID,
		Summary:            input.Summary,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.CreateDecision(ctx, decision); err != nil {
			return err
		}
		if err := repo.UpdateNegotiation(ctx, input.NegotiationID, map[string]any{
			"status": enums.NegotiationStatusComplete,
		}); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDecision,
			AggregateType: enums.OutboxAggregateNegotiation,
			AggregateID:   input.NegotiationID,
			Data: DecisionPayload{Decision: FinalDecision{
				SelectedSupplierID: input.SelectedSupplierID,
				Summary:            input.Summary,
			}},
			Version: 1,
		})
	})
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "record decision")
	}

	s.logg.Info(s.logg.WithNegotiationID(ctx, input.NegotiationID.String()), "negotiation decision recorded")
	return decision, nil
}

// FetchState rebuilds the full aggregate from persisted rows. It backs both
// the detail endpoint and the snapshot half of resume-after-disconnect.
func (s *service) FetchState(ctx context.Context, id uuid.UUID) (State, error) {
	negotiation, err := s.repo.FindNegotiation(ctx, id)
	if err != nil {
		return State{}, notFoundOr(err, "negotiation not found")
	}
	rounds, err := s.repo.FindRounds(ctx, id)
	if err != nil {
		return State{}, errors.Wrap(errors.CodeInternal, err, "load rounds")
	}
	messages, err := s.repo.FindMessages(ctx, id)
	if err != nil {
		return State{}, errors.Wrap(errors.CodeInternal, err, "load messages")
	}
	offers, err := s.repo.FindOffers(ctx, id)
	if err != nil {
		return State{}, errors.Wrap(errors.CodeInternal, err, "load offers")
	}

	offersByID := make(map[uuid.UUID]models.Offer, len(offers))
	for _, offer := range offers {
		offersByID[offer.ID] = offer
	}

	state := State{
		NegotiationID: negotiation.ID,
		QuotationID:   negotiation.QuotationID,
		Status:        negotiation.Status,
		ScoringMode:   negotiation.ScoringMode,
	}
	if negotiation.CurveballText != nil {
		state.Curveball = &Curveball{Description: *negotiation.CurveballText}
		if negotiation.CurveballAnalysis != nil {
			state.Curveball.Analysis = *negotiation.CurveballAnalysis
		}
	}

	for _, supplier := range negotiation.Suppliers {
		sup := SupplierState{
			Profile:      SupplierProfileFromModel(supplier),
			Status:       supplier.Status,
			CurrentRound: supplier.CurrentRound,
			Phase:        enums.PhaseInitial,
		}
		for _, round := range rounds {
			if round.SupplierID != supplier.ID {
				continue
			}
			entry := Round{RoundNumber: round.RoundNumber, Phase: round.Phase}
			if round.OfferID != nil {
				if offer, ok := offersByID[*round.OfferID]; ok {
					entry.Offer = OfferFromModel(offer)
				}
			}
			sup.Rounds = append(sup.Rounds, entry)
			sup.Phase = round.Phase
		}
		for _, message := range messages {
			if message.SupplierID != supplier.ID {
				continue
			}
			sup.Messages = append(sup.Messages, Message{
				ID:          message.ID,
				Role:        message.Role,
				Content:     message.Content,
				RoundNumber: message.RoundNumber,
				Phase:       message.Phase,
			})
		}
		state.Suppliers = append(state.Suppliers, sup)
	}

	if negotiation.Status == enums.NegotiationStatusComplete {
		decision, err := s.repo.FindDecision(ctx, id)
		if err == nil {
			state.Decision = &FinalDecision{
				SelectedSupplierID: decision.SelectedSupplierID,
				Summary:            decision.Summary,
			}
		} else if !stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return State{}, errors.Wrap(errors.CodeInternal, err, "load decision")
		}
	}

	return state, nil
}

func notFoundOr(err error, message string) error {
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.New(errors.CodeNotFound, message)
	}
	return errors.Wrap(errors.CodeInternal, err, message)
}
