package rounds

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sourcelane/negotiator-backend/internal/extraction"
	"github.com/sourcelane/negotiator-backend/internal/negotiation"
	"github.com/sourcelane/negotiator-backend/internal/scoring"
	"github.com/sourcelane/negotiator-backend/pkg/db/models"
	"github.com/sourcelane/negotiator-backend/pkg/enums"
	"github.com/sourcelane/negotiator-backend/pkg/errors"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
	"github.com/sourcelane/negotiator-backend/pkg/metrics"
	"github.com/sourcelane/negotiator-backend/pkg/outbox"
	"github.com/sourcelane/negotiator-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Params wires a Driver.
type Params struct {
	Repo      negotiation.Repository
	Decisions negotiation.Service
	Tx        txRunner
	Outbox    outboxPublisher
	Extractor *extraction.Extractor
	Engine    *scoring.Engine
	Chat      Conversationalist
	Logger    *logger.Logger
	Metrics   *metrics.NegotiationMetrics
	MaxRounds int
}

// Driver runs negotiations round by round: it produces both sides of each
// exchange through the text service, structures the supplier reply, rescores
// the pool and persists the round together with its stream events.
type Driver struct {
	repo      negotiation.Repository
	decisions negotiation.Service
	tx        txRunner
	outbox    outboxPublisher
	extractor *extraction.Extractor
	engine    *scoring.Engine
	chat      Conversationalist
	logg      *logger.Logger
	mx        *metrics.NegotiationMetrics
	maxRounds int
}

// NewDriver builds a round driver.
func NewDriver(params Params) (*Driver, error) {
	if params.Repo == nil || params.Tx == nil || params.Outbox == nil {
		return nil, stdErrors.New("repo, tx runner and outbox are required")
	}
	if params.Extractor == nil || params.Engine == nil || params.Chat == nil {
		return nil, stdErrors.New("extractor, engine and chat are required")
	}
	if params.Logger == nil {
		return nil, stdErrors.New("logger required")
	}
	if params.MaxRounds <= 0 {
		params.MaxRounds = 3
	}
	return &Driver{
		repo:      params.Repo,
		decisions: params.Decisions,
		tx:        params.Tx,
		outbox:    params.Outbox,
		extractor: params.Extractor,
		engine:    params.Engine,
		chat:      params.Chat,
		logg:      params.Logger,
		mx:        params.Metrics,
		maxRounds: params.MaxRounds,
	}, nil
}

// Run drives a negotiation end to end: every supplier through its rounds in
// pool order, a post-curveball pass when one was injected, then the decision.
// A failing step parks the negotiation in the error state with everything
// accumulated so far intact.
func (d *Driver) Run(ctx context.Context, negotiationID uuid.UUID) error {
	ctx = d.logg.WithNegotiationID(ctx, negotiationID.String())

	if err := d.run(ctx, negotiationID); err != nil {
		if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
			return err
		}
		d.markFailed(ctx, negotiationID, err)
		return err
	}
	return nil
}

func (d *Driver) run(ctx context.Context, negotiationID uuid.UUID) error {
	row, err := d.repo.FindNegotiation(ctx, negotiationID)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "load negotiation")
	}
	if row.Status != enums.NegotiationStatusNegotiating {
		return errors.New(errors.CodeStateConflict, "negotiation is not running").WithDetails(row.Status)
	}

	for _, supplier := range row.Suppliers {
		if err := d.runSupplier(ctx, negotiationID, supplier.ID); err != nil {
			return err
		}
	}

	// A curveball injected mid-run earns every supplier one more round.
	row, err = d.repo.FindNegotiation(ctx, negotiationID)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "reload negotiation")
	}
	if row.CurveballText != nil {
		for _, supplier := range row.Suppliers {
			if err := d.RunRound(ctx, negotiationID, supplier.ID); err != nil {
				return err
			}
			if err := d.completeSupplier(ctx, negotiationID, supplier.ID); err != nil {
				return err
			}
		}
	}

	if err := d.finish(ctx, negotiationID); err != nil {
		return err
	}
	return d.decide(ctx, negotiationID)
}

func (d *Driver) runSupplier(ctx context.Context, negotiationID, supplierID uuid.UUID) error {
	for {
		supplier, err := d.repo.FindSupplier(ctx, supplierID)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "load supplier")
		}
		if supplier.CurrentRound >= d.maxRounds {
			return d.completeSupplier(ctx, negotiationID, supplierID)
		}
		if err := d.RunRound(ctx, negotiationID, supplierID); err != nil {
			return err
		}
	}
}

// RunRound executes one exchange for one supplier: brand turn, supplier turn,
// extraction, pool rescoring, persistence and events in a single transaction.
func (d *Driver) RunRound(ctx context.Context, negotiationID, supplierID uuid.UUID) error {
	row, err := d.repo.FindNegotiation(ctx, negotiationID)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "load negotiation")
	}
	if row.Status != enums.NegotiationStatusNegotiating {
		return errors.New(errors.CodeStateConflict, "negotiation is not running").WithDetails(row.Status)
	}

	var supplierRow *models.Supplier
	for i := range row.Suppliers {
		if row.Suppliers[i].ID == supplierID {
			supplierRow = &row.Suppliers[i]
			break
		}
	}
	if supplierRow == nil {
		return errors.New(errors.CodeNotFound, "supplier not in negotiation")
	}

	roundNumber := supplierRow.CurrentRound + 1
	phase := enums.PhaseInitial
	curveball := ""
	if row.CurveballText != nil {
		phase = enums.PhasePostCurveball
		curveball = *row.CurveballText
	}
	path := enums.MessagePathFast
	if roundNumber == 1 || phase == enums.PhasePostCurveball {
		path = enums.MessagePathFull
	}

	ctx = d.logg.WithRound(d.logg.WithSupplierID(ctx, supplierID.String()), roundNumber)

	baseline := make([]negotiation.QuotationItem, 0, len(row.QuotationItems))
	for _, item := range row.QuotationItems {
		baseline = append(baseline, negotiation.QuotationItemFromModel(item))
	}
	transcript, err := d.transcript(ctx, negotiationID, supplierID)
	if err != nil {
		return err
	}

	req := ReplyRequest{
		NegotiationID: negotiationID,
		Supplier:      negotiation.SupplierProfileFromModel(*supplierRow),
		RoundNumber:   roundNumber,
		Phase:         phase,
		Path:          path,
		Baseline:      baseline,
		Transcript:    transcript,
		Curveball:     curveball,
	}

	brandText, err := d.chat.BrandMessage(ctx, req)
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "generate brand message")
	}
	req.BrandMessage = brandText

	supplierText, err := d.chat.SupplierReply(ctx, req)
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "generate supplier reply")
	}

	offer, err := d.extractor.ExtractOffer(ctx, extraction.Request{
		NegotiationID: negotiationID,
		RoundNumber:   roundNumber,
		Message:       supplierText,
		Profile:       req.Supplier,
		Baseline:      baseline,
	})
	if err != nil {
		return fmt.Errorf("extract offer: %w", err)
	}

	scored, err := d.rescorePool(ctx, row, supplierID, offer)
	if err != nil {
		return err
	}

	analysis, err := d.chat.RoundAnalysis(ctx, AnalysisRequest{
		NegotiationID: negotiationID,
		RoundNumber:   roundNumber,
		Phase:         phase,
		Offers:        scored,
	})
	if err != nil {
		// The round is still persisted; analysis is advisory.
		d.logg.Error(ctx, "round analysis failed", err)
		analysis = ""
	}

	err = d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := d.repo.WithTx(tx)

		if err := d.outbox.Emit(ctx, tx, d.event(negotiationID, enums.EventRoundStart, negotiation.RoundStartPayload{
			SupplierID: supplierID, RoundNumber: roundNumber, Phase: phase,
		})); err != nil {
			return err
		}

		if err := repo.UpdateSupplier(ctx, supplierID, map[string]any{
			"status":        enums.SupplierStatusNegotiating,
			"current_round": roundNumber,
		}); err != nil {
			return err
		}

		brandRow := &models.NegotiationMessage{
			NegotiationID: negotiationID,
			SupplierID:    supplierID,
			Role:          enums.MessageRoleBrandAgent,
			Content:       brandText,
			RoundNumber:   roundNumber,
			Phase:         phase,
			Path:          &path,
		}
		if _, err := repo.CreateMessage(ctx, brandRow); err != nil {
			return err
		}
		if err := d.outbox.Emit(ctx, tx, d.messageEvent(negotiationID, brandRow)); err != nil {
			return err
		}

		supplierMsgRow := &models.NegotiationMessage{
			NegotiationID: negotiationID,
			SupplierID:    supplierID,
			Role:          enums.MessageRoleSupplierAgent,
			Content:       supplierText,
			RoundNumber:   roundNumber,
			Phase:         phase,
			Path:          &path,
		}
		if _, err := repo.CreateMessage(ctx, supplierMsgRow); err != nil {
			return err
		}
		if err := d.outbox.Emit(ctx, tx, d.messageEvent(negotiationID, supplierMsgRow)); err != nil {
			return err
		}

		offerRow := negotiation.OfferToModel(offer)
		offerRow.NegotiationID = negotiationID
		offerRow.SupplierID = supplierID
		offerRow.RoundNumber = roundNumber
		offerRow.Phase = phase
		for _, entry := range scored {
			if entry.SupplierID == supplierID {
				offerRow.Scores = scoresToMap(entry.Scores)
			}
		}
		if _, err := repo.CreateOffer(ctx, &offerRow); err != nil {
			return err
		}
		if _, err := repo.CreateRound(ctx, &models.NegotiationRound{
			NegotiationID: negotiationID,
			SupplierID:    supplierID,
			RoundNumber:   roundNumber,
			Phase:         phase,
			OfferID:       &offerRow.ID,
		}); err != nil {
			return err
		}

		if err := d.outbox.Emit(ctx, tx, d.event(negotiationID, enums.EventOfferExtracted, negotiation.OfferExtractedPayload{
			SupplierID: supplierID, RoundNumber: roundNumber, Phase: phase, Offer: offer,
		})); err != nil {
			return err
		}
		if err := d.outbox.Emit(ctx, tx, d.event(negotiationID, enums.EventOffersSnapshot, negotiation.OffersSnapshotPayload{
			RoundNumber: roundNumber, Phase: phase, Offers: scored,
		})); err != nil {
			return err
		}
		if analysis != "" {
			if err := d.outbox.Emit(ctx, tx, d.event(negotiationID, enums.EventRoundAnalysis, negotiation.RoundAnalysisPayload{
				RoundNumber: roundNumber, Analysis: analysis,
			})); err != nil {
				return err
			}
		}
		if err := d.outbox.Emit(ctx, tx, d.event(negotiationID, enums.EventSupplierWaiting, negotiation.SupplierWaitingPayload{
			SupplierID: supplierID,
		})); err != nil {
			return err
		}
		return repo.UpdateSupplier(ctx, supplierID, map[string]any{
			"status": enums.SupplierStatusWaiting,
		})
	})
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "persist round")
	}

	d.mx.IncRound(phase.String())
	d.logg.Info(ctx, "round completed")
	return nil
}

// InjectCurveball records a mid-negotiation disruption. The affected supplier
// gets a system transcript entry and the whole pool is rescored on its next
// round with the post-curveball phase.
func (d *Driver) InjectCurveball(ctx context.Context, negotiationID, supplierID uuid.UUID, description string) error {
	ctx = d.logg.WithNegotiationID(ctx, negotiationID.String())

	row, err := d.repo.FindNegotiation(ctx, negotiationID)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "load negotiation")
	}
	if row.Status != enums.NegotiationStatusNegotiating {
		return errors.New(errors.CodeStateConflict, "negotiation is not running").WithDetails(row.Status)
	}
	if row.CurveballText != nil {
		return errors.New(errors.CodeConflict, "curveball already recorded")
	}

	err = d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := d.repo.WithTx(tx)

		if err := repo.UpdateNegotiation(ctx, negotiationID, map[string]any{
			"curveball_text": description,
		}); err != nil {
			return err
		}
		systemRow := &models.NegotiationMessage{
			NegotiationID: negotiationID,
			SupplierID:    supplierID,
			Role:          enums.MessageRoleSystem,
			Content:       description,
			RoundNumber:   0,
			Phase:         enums.PhasePostCurveball,
		}
		if _, err := repo.CreateMessage(ctx, systemRow); err != nil {
			return err
		}
		if err := d.outbox.Emit(ctx, tx, d.messageEvent(negotiationID, systemRow)); err != nil {
			return err
		}
		return d.outbox.Emit(ctx, tx, d.event(negotiationID, enums.EventCurveballDetected, negotiation.CurveballDetectedPayload{
			SupplierID: supplierID, Description: description,
		}))
	})
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "record curveball")
	}

	analysis, err := d.chat.CurveballAnalysis(ctx, ReplyRequest{
		NegotiationID: negotiationID,
		Curveball:     description,
	})
	if err != nil {
		// The disruption is recorded; analysis is advisory.
		d.logg.Error(ctx, "curveball analysis failed", err)
		return nil
	}
	return d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := d.repo.WithTx(tx).UpdateNegotiation(ctx, negotiationID, map[string]any{
			"curveball_analysis": analysis,
		}); err != nil {
			return err
		}
		return d.outbox.Emit(ctx, tx, d.event(negotiationID, enums.EventCurveballAnalysis, negotiation.CurveballAnalysisPayload{
			Analysis: analysis,
		}))
	})
}

func (d *Driver) completeSupplier(ctx context.Context, negotiationID, supplierID uuid.UUID) error {
	return d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := d.repo.WithTx(tx).UpdateSupplier(ctx, supplierID, map[string]any{
			"status": enums.SupplierStatusComplete,
		}); err != nil {
			return err
		}
		return d.outbox.Emit(ctx, tx, d.event(negotiationID, enums.EventSupplierComplete, negotiation.SupplierCompletePayload{
			SupplierID: supplierID,
		}))
	})
}

func (d *Driver) finish(ctx context.Context, negotiationID uuid.UUID) error {
	return d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := d.repo.WithTx(tx).UpdateNegotiation(ctx, negotiationID, map[string]any{
			"status": enums.NegotiationStatusGeneratingDecision,
		}); err != nil {
			return err
		}
		return d.outbox.EmitIfNotExists(ctx, tx, d.event(negotiationID, enums.EventNegotiationComplete, struct{}{}))
	})
}

func (d *Driver) decide(ctx context.Context, negotiationID uuid.UUID) error {
	row, err := d.repo.FindNegotiation(ctx, negotiationID)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "load negotiation")
	}
	pool, err := d.latestPool(ctx, row, uuid.Nil, nil)
	if err != nil {
		return err
	}
	if len(pool) == 0 {
		return errors.New(errors.CodeStateConflict, "no offers to decide between")
	}
	scored := d.engine.ScoreAll(pool, row.ScoringMode)

	winner := scored[0]
	for _, entry := range scored[1:] {
		if entry.Scores.Weighted > winner.Scores.Weighted {
			winner = entry
		}
	}

	summary, err := d.chat.DecisionSummary(ctx, SummaryRequest{
		NegotiationID: negotiationID,
		ScoringMode:   row.ScoringMode,
		Offers:        scored,
		Winner:        winner.SupplierID,
	})
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "generate decision summary")
	}

	_, err = d.decisions.RecordDecision(ctx, negotiation.RecordDecisionInput{
		NegotiationID:      negotiationID,
		SelectedSupplierID: winner.SupplierID,
		Summary:            summary,
		Offers:             scored,
	})
	return err
}

// rescorePool swaps the fresh offer into the pool of each supplier's latest
// offer and rescores everything. Pool-relative dimensions make old score
// vectors stale the moment any offer changes.
func (d *Driver) rescorePool(ctx context.Context, row *models.Negotiation, supplierID uuid.UUID, fresh negotiation.Offer) ([]negotiation.ScoredOffer, error) {
	pool, err := d.latestPool(ctx, row, supplierID, &fresh)
	if err != nil {
		return nil, err
	}
	return d.engine.ScoreAll(pool, row.ScoringMode), nil
}

// latestPool assembles one entry per supplier from its most recent offer.
// When override is non-nil it replaces (or introduces) overrideID's entry.
func (d *Driver) latestPool(ctx context.Context, row *models.Negotiation, overrideID uuid.UUID, override *negotiation.Offer) ([]scoring.Entry, error) {
	offers, err := d.repo.FindOffers(ctx, row.ID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "load offers")
	}
	latest := make(map[uuid.UUID]negotiation.Offer, len(row.Suppliers))
	for _, offer := range offers {
		latest[offer.SupplierID] = negotiation.OfferFromModel(offer)
	}
	if override != nil {
		latest[overrideID] = *override
	}

	pool := make([]scoring.Entry, 0, len(latest))
	for _, supplier := range row.Suppliers {
		offer, ok := latest[supplier.ID]
		if !ok {
			continue
		}
		pool = append(pool, scoring.Entry{
			SupplierID: supplier.ID,
			Offer:      offer,
			Profile:    negotiation.SupplierProfileFromModel(supplier),
		})
	}
	return pool, nil
}

func (d *Driver) transcript(ctx context.Context, negotiationID, supplierID uuid.UUID) ([]negotiation.Message, error) {
	rows, err := d.repo.FindMessages(ctx, negotiationID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "load transcript")
	}
	messages := make([]negotiation.Message, 0, len(rows))
	for _, row := range rows {
		if row.SupplierID != supplierID {
			continue
		}
		messages = append(messages, negotiation.Message{
			ID:          row.ID,
			Role:        row.Role,
			Content:     row.Content,
			RoundNumber: row.RoundNumber,
			Phase:       row.Phase,
		})
	}
	return messages, nil
}

func (d *Driver) markFailed(ctx context.Context, negotiationID uuid.UUID, cause error) {
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := d.repo.WithTx(tx).UpdateNegotiation(ctx, negotiationID, map[string]any{
			"status": enums.NegotiationStatusError,
		}); err != nil {
			return err
		}
		return d.outbox.Emit(ctx, tx, d.event(negotiationID, enums.EventError, negotiation.ErrorPayload{
			Message: cause.Error(),
		}))
	})
	if err != nil {
		d.logg.Error(ctx, "failed to park negotiation in error state", err)
		return
	}
	d.logg.Error(ctx, "negotiation failed", cause)
}

func (d *Driver) event(negotiationID uuid.UUID, eventType enums.NegotiationEventType, data any) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.OutboxAggregateNegotiation,
		AggregateID:   negotiationID,
		Data:          data,
		Version:       1,
	}
}

func (d *Driver) messageEvent(negotiationID uuid.UUID, row *models.NegotiationMessage) outbox.DomainEvent {
	return d.event(negotiationID, enums.EventMessage, negotiation.MessagePayload{
		MessageID:   row.ID,
		SupplierID:  row.SupplierID,
		Role:        row.Role,
		Content:     row.Content,
		RoundNumber: row.RoundNumber,
		Phase:       row.Phase,
	})
}

func scoresToMap(v negotiation.ScoreVector) types.Scores {
	return types.Scores{
		"price":    v.Price,
		"quality":  v.Quality,
		"leadTime": v.LeadTime,
		"cashFlow": v.CashFlow,
		"risk":     v.Risk,
		"weighted": v.Weighted,
	}
}
