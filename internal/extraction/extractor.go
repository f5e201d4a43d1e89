package extraction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/sourcelane/negotiator-backend/internal/negotiation"
	"github.com/sourcelane/negotiator-backend/pkg/logger"
	"github.com/sourcelane/negotiator-backend/pkg/metrics"
	"github.com/sourcelane/negotiator-backend/pkg/types"
)

// totalOverrideLogThreshold is the dollar gap between the upstream total and
// the recomputed total above which the override is logged.
const totalOverrideLogThreshold = 1.0

// outlierSlack widens the allowed band before a per-item unit price is
// flagged. Items are flagged, never corrected; only the total is enforced.
const outlierSlack = 1.5

// Request carries everything the text service needs to structure one reply.
type Request struct {
	NegotiationID uuid.UUID
	RoundNumber   int
	Message       string
	Profile       negotiation.SupplierProfile
	Baseline      []negotiation.QuotationItem
}

// Client is the external text-to-structured-object service.
type Client interface {
	StructureOffer(ctx context.Context, req Request) (negotiation.Offer, Usage, error)
}

// Extractor turns free-text supplier replies into numerically consistent
// offers. Extraction never fails: upstream errors degrade to a baseline-built
// fallback offer.
type Extractor struct {
	client Client
	bands  PriceBands
	logg   *logger.Logger
	sem    *semaphore.Weighted
	sink   UsageSink
	mx     *metrics.NegotiationMetrics
}

// Params configures an Extractor.
type Params struct {
	Client Client
	Bands  PriceBands
	Logger *logger.Logger
	// MaxInFlight bounds concurrent upstream calls. Calls past the limit
	// block FIFO until a slot frees.
	MaxInFlight int64
	UsageSink   UsageSink
	Metrics     *metrics.NegotiationMetrics
}

// NewExtractor builds an extractor with the provided stack.
func NewExtractor(params Params) (*Extractor, error) {
	if params.Client == nil {
		return nil, errors.New("structured text client required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.MaxInFlight <= 0 {
		params.MaxInFlight = 1
	}
	return &Extractor{
		client: params.Client,
		bands:  params.Bands,
		logg:   params.Logger,
		sem:    semaphore.NewWeighted(params.MaxInFlight),
		sink:   params.UsageSink,
		mx:     params.Metrics,
	}, nil
}

// ExtractOffer structures one supplier message. The returned offer always
// covers the full baseline SKU set and its total is always consistent with
// its items. The error return only reports context cancellation while waiting
// for a concurrency slot; every upstream failure degrades to the fallback.
func (e *Extractor) ExtractOffer(ctx context.Context, req Request) (negotiation.Offer, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return negotiation.Offer{}, fmt.Errorf("waiting for extraction slot: %w", err)
	}
	defer e.sem.Release(1)

	ctx = e.logg.WithFields(ctx, map[string]any{
		"negotiation_id": req.NegotiationID,
		"supplier_id":    req.Profile.ID,
		"round":          req.RoundNumber,
	})

	start := time.Now()
	candidate, usage, fallback := e.callWithRetry(ctx, req)
	e.mx.ObserveExtraction(time.Since(start), fallback)
	e.recordUsage(ctx, req, usage, fallback)

	offer := e.reconcile(ctx, candidate, req.Profile, req.Baseline)
	return offer, nil
}

// callWithRetry asks the upstream service once, retries once with the
// identical request, and falls back to a baseline-only offer when both
// attempts fail.
func (e *Extractor) callWithRetry(ctx context.Context, req Request) (negotiation.Offer, Usage, bool) {
	candidate, usage, err := e.client.StructureOffer(ctx, req)
	if err == nil {
		return candidate, usage, false
	}
	e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "extraction attempt failed, retrying")

	candidate, retryUsage, err := e.client.StructureOffer(ctx, req)
	usage = addUsage(usage, retryUsage)
	if err == nil {
		return candidate, usage, false
	}
	e.logg.Error(ctx, "extraction failed after retry, using baseline fallback", err)

	return fallbackOffer(req.Profile, req.Baseline), usage, true
}

// reconcile enforces the numeric invariants on a candidate offer: quantities
// pinned to baseline, missing baseline SKUs backfilled, total recomputed from
// items, total clipped into the supplier's price band with items rescaled to
// match. Backfill runs before the total is rebuilt so backfilled lines are
// counted and clipped like any other.
func (e *Extractor) reconcile(ctx context.Context, candidate negotiation.Offer, profile negotiation.SupplierProfile, baseline []negotiation.QuotationItem) negotiation.Offer {
	byBaselineSKU := make(map[string]negotiation.QuotationItem, len(baseline))
	for _, item := range baseline {
		byBaselineSKU[item.SKU] = item
	}

	offer := candidate
	offer.Items = pinQuantities(candidate.Items, byBaselineSKU)
	offer.Items = backfillMissing(offer.Items, baseline)
	if offer.Concessions == nil {
		offer.Concessions = []string{}
	}
	if offer.Conditions == nil {
		offer.Conditions = []string{}
	}
	if offer.LeadTimeDays <= 0 {
		offer.LeadTimeDays = profile.LeadTimeDays
	}
	if offer.PaymentTerms == "" {
		offer.PaymentTerms = profile.PaymentTerms
	}

	baselineTotal := negotiation.BaselineTotal(baseline)

	// The upstream total is never trusted: with any valid item present the
	// total is the sum over valid items, full stop.
	recomputed := offer.ItemsTotal()
	if len(offer.ValidItems()) > 0 {
		if math.Abs(recomputed-candidate.TotalCost) > totalOverrideLogThreshold {
			e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
				"proposed_total":   candidate.TotalCost,
				"recomputed_total": recomputed,
			}), "upstream total overridden by item reconstruction")
		}
		offer.TotalCost = recomputed
	} else if offer.TotalCost <= 1 {
		// No items and a throwaway total: the reply was a non-answer.
		offer.TotalCost = baselineTotal
	}

	offer = e.clipToBand(ctx, offer, profile, baselineTotal)
	e.flagOutliers(ctx, offer, profile, byBaselineSKU)

	return offer
}

// clipToBand clamps the total into the price-level band and rescales every
// item price by the same factor so items and total stay consistent.
func (e *Extractor) clipToBand(ctx context.Context, offer negotiation.Offer, profile negotiation.SupplierProfile, baselineTotal float64) negotiation.Offer {
	low, high := e.bands.Range(profile.PriceLevel)
	minCost := baselineTotal * low
	maxCost := baselineTotal * high
	if offer.TotalCost >= minCost && offer.TotalCost <= maxCost {
		return offer
	}

	clipped := offer.TotalCost
	if clipped < minCost {
		clipped = minCost
	}
	if clipped > maxCost {
		clipped = maxCost
	}

	e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
		"total":       offer.TotalCost,
		"band_low":    minCost,
		"band_high":   maxCost,
		"price_level": profile.PriceLevel,
	}), "offer total outside price band, clipping")

	if offer.TotalCost > 0 {
		factor := clipped / offer.TotalCost
		for i := range offer.Items {
			offer.Items[i].UnitPrice *= factor
		}
	}
	offer.TotalCost = clipped
	return offer
}

// flagOutliers logs items whose unit-price ratio against baseline falls far
// outside the band. Per-item noise is tolerated; only the total is enforced.
func (e *Extractor) flagOutliers(ctx context.Context, offer negotiation.Offer, profile negotiation.SupplierProfile, byBaselineSKU map[string]negotiation.QuotationItem) {
	low, high := e.bands.Range(profile.PriceLevel)
	for _, item := range offer.ValidItems() {
		base, ok := byBaselineSKU[item.SKU]
		if !ok || base.UnitPrice <= 0 {
			continue
		}
		ratio := item.UnitPrice / base.UnitPrice
		if ratio < low/outlierSlack || ratio > high*outlierSlack {
			e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
				"sku":   item.SKU,
				"ratio": ratio,
			}), "item unit price is an outlier against baseline")
		}
	}
}

// pinQuantities forces every line matching a baseline SKU onto the baseline
// quantity, resolving tiered pricing at that quantity when a tier applies.
func pinQuantities(items []negotiation.OfferItem, byBaselineSKU map[string]negotiation.QuotationItem) []negotiation.OfferItem {
	pinned := make([]negotiation.OfferItem, 0, len(items))
	for _, item := range items {
		if base, ok := byBaselineSKU[item.SKU]; ok {
			item.Quantity = base.Quantity
			if price, ok := tierUnitPrice(item.VolumeTiers, base.Quantity); ok {
				item.UnitPrice = price
			}
		}
		pinned = append(pinned, item)
	}
	return pinned
}

// tierUnitPrice resolves the unit price at the given quantity from a tier
// schedule. Tiers may be malformed upstream; the first tier covering the
// baseline quantity is authoritative, and no tier match keeps the flat price.
func tierUnitPrice(tiers []types.VolumeTier, quantity int) (float64, bool) {
	for _, tier := range tiers {
		if tier.UnitPrice <= 0 {
			continue
		}
		if quantity < tier.MinQty {
			continue
		}
		if tier.MaxQty != nil && quantity > *tier.MaxQty {
			continue
		}
		return tier.UnitPrice, true
	}
	return 0, false
}

// backfillMissing appends any baseline SKU absent from the extracted items at
// baseline price and quantity, so every offer covers the full SKU set.
func backfillMissing(items []negotiation.OfferItem, baseline []negotiation.QuotationItem) []negotiation.OfferItem {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		seen[item.SKU] = struct{}{}
	}
	for _, base := range baseline {
		if _, ok := seen[base.SKU]; ok {
			continue
		}
		items = append(items, negotiation.OfferItem{
			SKU:       base.SKU,
			UnitPrice: base.UnitPrice,
			Quantity:  base.Quantity,
		})
	}
	return items
}

// fallbackOffer builds an offer entirely from the baseline and the supplier's
// profile defaults.
func fallbackOffer(profile negotiation.SupplierProfile, baseline []negotiation.QuotationItem) negotiation.Offer {
	items := make([]negotiation.OfferItem, 0, len(baseline))
	var total float64
	for _, base := range baseline {
		items = append(items, negotiation.OfferItem{
			SKU:       base.SKU,
			UnitPrice: base.UnitPrice,
			Quantity:  base.Quantity,
		})
		total += base.UnitPrice * float64(base.Quantity)
	}
	return negotiation.Offer{
		TotalCost:    total,
		Items:        items,
		LeadTimeDays: profile.LeadTimeDays,
		PaymentTerms: profile.PaymentTerms,
		Concessions:  []string{},
		Conditions:   []string{},
	}
}

func (e *Extractor) recordUsage(ctx context.Context, req Request, usage Usage, fallback bool) {
	if e.sink == nil {
		return
	}
	e.sink.RecordUsage(ctx, UsageRecord{
		NegotiationID: req.NegotiationID,
		SupplierID:    req.Profile.ID,
		RoundNumber:   req.RoundNumber,
		Usage:         usage,
		Fallback:      fallback,
		OccurredAt:    time.Now().UTC(),
	})
}

func addUsage(a, b Usage) Usage {
	return Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		CostUSD:          a.CostUSD + b.CostUSD,
	}
}
