package rounds

import (
	"context"
	stdErrors "errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sourcelane/negotiator-backend/internal/extraction"
	"github.com/sourcelane/negotiator-backend/internal/negotiation"
	"github.com/sourcelane/negotiator-backend/internal/scoring"
	"github.com/sourcelane/negotiator-backend/pkg/db/models"
	"github.com/sourcelane/negotiator-backend/pkg/enums"
	"github.com/sourcelane/negotiator-backend/pkg/errors"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
	"github.com/sourcelane/negotiator-backend/pkg/outbox"
)

func setupDriverTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS negotiations (
  id TEXT PRIMARY KEY,
  quotation_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'connecting',
  scoring_mode TEXT NOT NULL DEFAULT 'balanced',
  curveball_text TEXT,
  curveball_analysis TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS quotation_items (
  id TEXT PRIMARY KEY,
  negotiation_id TEXT NOT NULL,
  sku TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  total_price TEXT NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS suppliers (
  id TEXT PRIMARY KEY,
  negotiation_id TEXT NOT NULL,
  name TEXT NOT NULL,
  code TEXT NOT NULL,
  quality_rating REAL NOT NULL,
  price_level TEXT NOT NULL,
  lead_time_days INTEGER NOT NULL,
  payment_terms TEXT NOT NULL DEFAULT '',
  primary_source INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'waiting',
  current_round INTEGER NOT NULL DEFAULT 0,
  position INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS negotiation_rounds (
  id TEXT PRIMARY KEY,
  negotiation_id TEXT NOT NULL,
  supplier_id TEXT NOT NULL,
  round_number INTEGER NOT NULL,
  phase TEXT NOT NULL DEFAULT 'initial',
  offer_id TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS negotiation_messages (
  id TEXT PRIMARY KEY,
  negotiation_id TEXT NOT NULL,
  supplier_id TEXT NOT NULL,
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  round_number INTEGER NOT NULL,
  phase TEXT NOT NULL DEFAULT 'initial',
  path TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS offers (
  id TEXT PRIMARY KEY,
  negotiation_id TEXT NOT NULL,
  supplier_id TEXT NOT NULL,
  round_number INTEGER NOT NULL,
  phase TEXT NOT NULL DEFAULT 'initial',
  total_cost TEXT NOT NULL,
  lead_time_days INTEGER NOT NULL,
  payment_terms TEXT NOT NULL DEFAULT '',
  concessions TEXT NOT NULL DEFAULT '{}',
  conditions TEXT NOT NULL DEFAULT '{}',
  scores TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS offer_items (
  id TEXT PRIMARY KEY,
  offer_id TEXT NOT NULL,
  sku TEXT NOT NULL,
  unit_price TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  volume_tiers TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS decisions (
  id TEXT PRIMARY KEY,
  negotiation_id TEXT NOT NULL UNIQUE,
  selected_supplier_id TEXT NOT NULL,
  summary TEXT NOT NULL DEFAULT '',
  payload TEXT,
  created_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type capturedPublisher struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (p *capturedPublisher) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturedPublisher) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	p.mu.Lock()
	for _, existing := range p.events {
		if existing.EventType == event.EventType && existing.AggregateID == event.AggregateID {
			p.mu.Unlock()
			return nil
		}
	}
	p.mu.Unlock()
	return p.Emit(ctx, tx, event)
}

func (p *capturedPublisher) types() []enums.NegotiationEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]enums.NegotiationEventType, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.EventType)
	}
	return out
}

type stubChat struct {
	brandErr    error
	replyErr    error
	analysisErr error
}

func (s *stubChat) BrandMessage(_ context.Context, req ReplyRequest) (string, error) {
	if s.brandErr != nil {
		return "", s.brandErr
	}
	return "brand asks for better terms", nil
}

func (s *stubChat) SupplierReply(_ context.Context, req ReplyRequest) (string, error) {
	if s.replyErr != nil {
		return "", s.replyErr
	}
	return "supplier offers revised pricing", nil
}

func (s *stubChat) RoundAnalysis(_ context.Context, req AnalysisRequest) (string, error) {
	if s.analysisErr != nil {
		return "", s.analysisErr
	}
	return "pool is converging on price", nil
}

func (s *stubChat) CurveballAnalysis(_ context.Context, _ ReplyRequest) (string, error) {
	return "expect cost pressure on resin lines", nil
}

func (s *stubChat) DecisionSummary(_ context.Context, req SummaryRequest) (string, error) {
	return "selected on weighted score", nil
}

// stubStructurer hands out canned offers in call order.
type stubStructurer struct {
	mu     sync.Mutex
	offers []negotiation.Offer
	calls  int
}

func (s *stubStructurer) StructureOffer(_ context.Context, _ extraction.Request) (negotiation.Offer, extraction.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offer := s.offers[s.calls%len(s.offers)]
	s.calls++
	return offer, extraction.Usage{PromptTokens: 100, CompletionTokens: 50}, nil
}

func driverTestLogger() *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: "rounds-test",
		Level:       zerolog.Disabled,
		Output:      io.Discard,
	})
}

// cannedOffer keeps totals inside the mid price band over a 5000 baseline so
// clipping never kicks in.
func cannedOffer(total float64, lead int) negotiation.Offer {
	unit := total / 125
	return negotiation.Offer{
		TotalCost: total,
		Items: []negotiation.OfferItem{
			{SKU: "J1", UnitPrice: unit, Quantity: 100},
			{SKU: "J2", UnitPrice: unit, Quantity: 25},
		},
		LeadTimeDays: lead,
		PaymentTerms: "net-30",
	}
}

type driverFixture struct {
	driver    *Driver
	repo      negotiation.Repository
	publisher *capturedPublisher
	db        *gorm.DB
}

func newDriverFixture(t *testing.T, chat Conversationalist, structurer extraction.Client, maxRounds int) driverFixture {
	t.Helper()

	db := setupDriverTestDB(t)
	repo := negotiation.NewRepository(db)
	publisher := &capturedPublisher{}
	logg := driverTestLogger()

	extractor, err := extraction.NewExtractor(extraction.Params{
		Client: structurer,
		Bands: extraction.PriceBands{
			CheapestLow: 0.70, CheapestHigh: 0.95,
			MidLow: 0.85, MidHigh: 1.10,
			ExpensiveLow: 1.00, ExpensiveHigh: 1.35,
		},
		Logger:      logg,
		MaxInFlight: 2,
	})
	require.NoError(t, err)

	decisions := negotiation.NewService(repo, gormTxRunner{db: db}, publisher, logg)

	driver, err := NewDriver(Params{
		Repo:      repo,
		Decisions: decisions,
		Tx:        gormTxRunner{db: db},
		Outbox:    publisher,
		Extractor: extractor,
		Engine:    scoring.NewEngine(),
		Chat:      chat,
		Logger:    logg,
		MaxRounds: maxRounds,
	})
	require.NoError(t, err)

	return driverFixture{driver: driver, repo: repo, publisher: publisher, db: db}
}

func seedDriverNegotiation(t *testing.T, repo negotiation.Repository) (*models.Negotiation, []models.Supplier) {
	t.Helper()
	ctx := context.Background()

	row, err := repo.CreateNegotiation(ctx, &models.Negotiation{
		ID:          uuid.New(),
		QuotationID: uuid.New(),
		Status:      enums.NegotiationStatusNegotiating,
		ScoringMode: enums.ScoringModeBalanced,
	})
	require.NoError(t, err)

	items := []models.QuotationItem{
		{ID: uuid.New(), NegotiationID: row.ID, SKU: "J1", Quantity: 100, UnitPrice: decimal.NewFromInt(40), TotalPrice: decimal.NewFromInt(4000)},
		{ID: uuid.New(), NegotiationID: row.ID, SKU: "J2", Quantity: 25, UnitPrice: decimal.NewFromInt(40), TotalPrice: decimal.NewFromInt(1000)},
	}
	require.NoError(t, repo.CreateQuotationItems(ctx, items))

	suppliers := []models.Supplier{
		{
			ID: uuid.New(), NegotiationID: row.ID,
			Name: "Prime Cartons", Code: "PC", QualityRating: 4.5,
			PriceLevel: enums.PriceLevelMid, LeadTimeDays: 20, PaymentTerms: "net-30",
			PrimarySource: true, Status: enums.SupplierStatusWaiting, Position: 0,
		},
		{
			ID: uuid.New(), NegotiationID: row.ID,
			Name: "Budget Box Co", Code: "BBC", QualityRating: 3.5,
			PriceLevel: enums.PriceLevelMid, LeadTimeDays: 30, PaymentTerms: "net-60",
			Status: enums.SupplierStatusWaiting, Position: 1,
		},
	}
	require.NoError(t, repo.CreateSuppliers(ctx, suppliers))
	return row, suppliers
}

func TestDriverRunRoundPersistsExchange(t *testing.T) {
	structurer := &stubStructurer{offers: []negotiation.Offer{cannedOffer(4800, 21)}}
	fixture := newDriverFixture(t, &stubChat{}, structurer, 3)
	ctx := context.Background()

	row, suppliers := seedDriverNegotiation(t, fixture.repo)
	supplierID := suppliers[0].ID

	require.NoError(t, fixture.driver.RunRound(ctx, row.ID, supplierID))

	supplier, err := fixture.repo.FindSupplier(ctx, supplierID)
	require.NoError(t, err)
	assert.Equal(t, 1, supplier.CurrentRound)
	assert.Equal(t, enums.SupplierStatusWaiting, supplier.Status)

	messages, err := fixture.repo.FindMessages(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, enums.MessageRoleBrandAgent, messages[0].Role)
	assert.Equal(t, enums.MessageRoleSupplierAgent, messages[1].Role)
	require.NotNil(t, messages[0].Path)
	assert.Equal(t, enums.MessagePathFull, *messages[0].Path)

	rounds, err := fixture.repo.FindRounds(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	require.NotNil(t, rounds[0].OfferID)

	offers, err := fixture.repo.FindOffers(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.InDelta(t, 4800, offers[0].TotalCost.InexactFloat64(), 1e-6)
	assert.NotEmpty(t, offers[0].Scores)

	assert.Equal(t, []enums.NegotiationEventType{
		enums.EventRoundStart,
		enums.EventMessage,
		enums.EventMessage,
		enums.EventOfferExtracted,
		enums.EventOffersSnapshot,
		enums.EventRoundAnalysis,
		enums.EventSupplierWaiting,
	}, fixture.publisher.types())
}

func TestDriverRunRoundEmitsRoundAnalysis(t *testing.T) {
	structurer := &stubStructurer{offers: []negotiation.Offer{cannedOffer(4800, 21)}}
	fixture := newDriverFixture(t, &stubChat{}, structurer, 3)
	ctx := context.Background()

	row, suppliers := seedDriverNegotiation(t, fixture.repo)

	require.NoError(t, fixture.driver.RunRound(ctx, row.ID, suppliers[0].ID))

	var payload negotiation.RoundAnalysisPayload
	found := false
	for _, event := range fixture.publisher.events {
		if event.EventType == enums.EventRoundAnalysis {
			payload = event.Data.(negotiation.RoundAnalysisPayload)
			found = true
		}
	}
	require.True(t, found)
	assert.Equal(t, 1, payload.RoundNumber)
	assert.Equal(t, "pool is converging on price", payload.Analysis)
}

func TestDriverRunRoundSurvivesAnalysisFailure(t *testing.T) {
	structurer := &stubStructurer{offers: []negotiation.Offer{cannedOffer(4800, 21)}}
	fixture := newDriverFixture(t, &stubChat{analysisErr: stdErrors.New("model unavailable")}, structurer, 3)
	ctx := context.Background()

	row, suppliers := seedDriverNegotiation(t, fixture.repo)

	require.NoError(t, fixture.driver.RunRound(ctx, row.ID, suppliers[0].ID))

	rounds, err := fixture.repo.FindRounds(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.NotContains(t, fixture.publisher.types(), enums.EventRoundAnalysis)
}

func TestDriverRunRoundUsesFastPathAfterFirstRound(t *testing.T) {
	structurer := &stubStructurer{offers: []negotiation.Offer{cannedOffer(4800, 21), cannedOffer(4600, 21)}}
	fixture := newDriverFixture(t, &stubChat{}, structurer, 3)
	ctx := context.Background()

	row, suppliers := seedDriverNegotiation(t, fixture.repo)
	supplierID := suppliers[0].ID

	require.NoError(t, fixture.driver.RunRound(ctx, row.ID, supplierID))
	require.NoError(t, fixture.driver.RunRound(ctx, row.ID, supplierID))

	messages, err := fixture.repo.FindMessages(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	require.NotNil(t, messages[2].Path)
	assert.Equal(t, enums.MessagePathFast, *messages[2].Path)
}

func TestDriverRunCompletesNegotiationWithDecision(t *testing.T) {
	structurer := &stubStructurer{offers: []negotiation.Offer{
		cannedOffer(4900, 20),
		cannedOffer(4600, 20),
		cannedOffer(5100, 30),
		cannedOffer(4950, 30),
	}}
	fixture := newDriverFixture(t, &stubChat{}, structurer, 2)
	ctx := context.Background()

	row, suppliers := seedDriverNegotiation(t, fixture.repo)

	require.NoError(t, fixture.driver.Run(ctx, row.ID))

	found, err := fixture.repo.FindNegotiation(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.NegotiationStatusComplete, found.Status)
	for _, supplier := range found.Suppliers {
		assert.Equal(t, enums.SupplierStatusComplete, supplier.Status)
		assert.Equal(t, 2, supplier.CurrentRound)
	}

	decision, err := fixture.repo.FindDecision(ctx, row.ID)
	require.NoError(t, err)
	assert.Contains(t, []uuid.UUID{suppliers[0].ID, suppliers[1].ID}, decision.SelectedSupplierID)
	assert.Equal(t, "selected on weighted score", decision.Summary)

	eventTypes := fixture.publisher.types()
	assert.Contains(t, eventTypes, enums.EventNegotiationComplete)
	assert.Contains(t, eventTypes, enums.EventDecision)
}

func TestDriverInjectCurveball(t *testing.T) {
	structurer := &stubStructurer{offers: []negotiation.Offer{cannedOffer(4800, 21)}}
	fixture := newDriverFixture(t, &stubChat{}, structurer, 3)
	ctx := context.Background()

	row, suppliers := seedDriverNegotiation(t, fixture.repo)
	supplierID := suppliers[0].ID

	require.NoError(t, fixture.driver.InjectCurveball(ctx, row.ID, supplierID, "resin shortage announced"))

	found, err := fixture.repo.FindNegotiation(ctx, row.ID)
	require.NoError(t, err)
	require.NotNil(t, found.CurveballText)
	assert.Equal(t, "resin shortage announced", *found.CurveballText)
	require.NotNil(t, found.CurveballAnalysis)

	messages, err := fixture.repo.FindMessages(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, enums.MessageRoleSystem, messages[0].Role)

	eventTypes := fixture.publisher.types()
	assert.Contains(t, eventTypes, enums.EventCurveballDetected)
	assert.Contains(t, eventTypes, enums.EventCurveballAnalysis)

	err = fixture.driver.InjectCurveball(ctx, row.ID, supplierID, "again")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConflict, errors.As(err).Code())
}

func TestDriverRunRoundAfterCurveballUsesPostCurveballPhase(t *testing.T) {
	structurer := &stubStructurer{offers: []negotiation.Offer{cannedOffer(4800, 21)}}
	fixture := newDriverFixture(t, &stubChat{}, structurer, 3)
	ctx := context.Background()

	row, suppliers := seedDriverNegotiation(t, fixture.repo)
	supplierID := suppliers[0].ID

	require.NoError(t, fixture.driver.InjectCurveball(ctx, row.ID, supplierID, "resin shortage announced"))
	require.NoError(t, fixture.driver.RunRound(ctx, row.ID, supplierID))

	rounds, err := fixture.repo.FindRounds(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, enums.PhasePostCurveball, rounds[0].Phase)
}

func TestDriverMarksNegotiationFailedOnChatError(t *testing.T) {
	structurer := &stubStructurer{offers: []negotiation.Offer{cannedOffer(4800, 21)}}
	fixture := newDriverFixture(t, &stubChat{brandErr: stdErrors.New("model unavailable")}, structurer, 2)
	ctx := context.Background()

	row, _ := seedDriverNegotiation(t, fixture.repo)

	err := fixture.driver.Run(ctx, row.ID)
	require.Error(t, err)

	found, err := fixture.repo.FindNegotiation(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.NegotiationStatusError, found.Status)
	assert.Contains(t, fixture.publisher.types(), enums.EventError)
}

func TestDriverRunRoundRejectsUnknownSupplier(t *testing.T) {
	structurer := &stubStructurer{offers: []negotiation.Offer{cannedOffer(4800, 21)}}
	fixture := newDriverFixture(t, &stubChat{}, structurer, 2)
	ctx := context.Background()

	row, _ := seedDriverNegotiation(t, fixture.repo)

	err := fixture.driver.RunRound(ctx, row.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.As(err).Code())
}

func TestDriverRunRoundRejectsFinishedNegotiation(t *testing.T) {
	structurer := &stubStructurer{offers: []negotiation.Offer{cannedOffer(4800, 21)}}
	fixture := newDriverFixture(t, &stubChat{}, structurer, 2)
	ctx := context.Background()

	row, suppliers := seedDriverNegotiation(t, fixture.repo)
	require.NoError(t, fixture.repo.UpdateNegotiation(ctx, row.ID, map[string]any{
		"status": enums.NegotiationStatusComplete,
	}))

	err := fixture.driver.RunRound(ctx, row.ID, suppliers[0].ID)
	require.Error(t, err)
	assert.Equal(t, errors.CodeStateConflict, errors.As(err).Code())
}
