package scoring

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/sourcelane/negotiator-backend/internal/negotiation"
	"github.com/sourcelane/negotiator-backend/pkg/enums"
)

// Weights distributes the composite score across the five dimensions. Each
// profile sums to 1.0.
type Weights struct {
	Price    float64
	Quality  float64
	LeadTime float64
	CashFlow float64
	Risk     float64
}

var weightsByMode = map[enums.ScoringMode]Weights{
	enums.ScoringModeBalanced: {Price: 0.30, Quality: 0.25, LeadTime: 0.20, CashFlow: 0.15, Risk: 0.10},
	enums.ScoringModeCost:     {Price: 0.50, Quality: 0.15, LeadTime: 0.10, CashFlow: 0.15, Risk: 0.10},
	enums.ScoringModeQuality:  {Price: 0.15, Quality: 0.50, LeadTime: 0.10, CashFlow: 0.10, Risk: 0.15},
	enums.ScoringModeSpeed:    {Price: 0.15, Quality: 0.15, LeadTime: 0.50, CashFlow: 0.10, Risk: 0.10},
	enums.ScoringModeCashflow: {Price: 0.20, Quality: 0.10, LeadTime: 0.10, CashFlow: 0.50, Risk: 0.10},
}

// WeightsFor resolves the weight profile for a mode. Custom falls back to the
// engine's configured custom weights; unknown modes read as balanced.
func (e *Engine) WeightsFor(mode enums.ScoringMode) Weights {
	if mode == enums.ScoringModeCustom {
		return e.custom
	}
	if w, ok := weightsByMode[mode]; ok {
		return w
	}
	return weightsByMode[enums.ScoringModeBalanced]
}

// Entry pairs one live offer with its supplier profile for a scoring pass.
type Entry struct {
	SupplierID uuid.UUID
	Offer      negotiation.Offer
	Profile    negotiation.SupplierProfile
}

// Engine scores offer pools. Every dimension except quality and risk is
// normalized against the pool being compared, so scores are only meaningful
// within one pass and must be recomputed whenever the pool changes.
type Engine struct {
	annualRate float64
	custom     Weights
}

// Option configures optional engine behavior.
type Option func(*Engine)

// WithAnnualRate overrides the cost-of-capital rate.
func WithAnnualRate(rate float64) Option {
	return func(e *Engine) {
		if rate > 0 {
			e.annualRate = rate
		}
	}
}

// WithCustomWeights installs the profile used by the custom scoring mode.
func WithCustomWeights(w Weights) Option {
	return func(e *Engine) {
		e.custom = w
	}
}

// NewEngine builds a scoring engine.
func NewEngine(opts ...Option) *Engine {
	engine := &Engine{
		annualRate: DefaultAnnualRate,
		custom:     weightsByMode[enums.ScoringModeBalanced],
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine
}

// Normalize linear-scales value into [0, 100] against the pool bounds,
// inverting when lower raw values are better. A degenerate pool (min == max)
// returns 75: indistinguishable offers are not penalized, but neither do they
// earn a perfect score.
func Normalize(value, min, max float64, invert bool) int {
	if min == max {
		return 75
	}
	scaled := (value - min) / (max - min) * 100
	if invert {
		scaled = 100 - scaled
	}
	if scaled < 0 {
		scaled = 0
	}
	if scaled > 100 {
		scaled = 100
	}
	return int(math.Round(scaled))
}

// ScoreOffer computes the score vector for one offer against the supplied
// pool. The pool must include the offer itself.
func (e *Engine) ScoreOffer(offer negotiation.Offer, profile negotiation.SupplierProfile, pool []Entry, mode enums.ScoringMode) negotiation.ScoreVector {
	costs := make([]float64, 0, len(pool))
	leads := make([]float64, 0, len(pool))
	cashCosts := make([]float64, 0, len(pool))
	for _, entry := range pool {
		costs = append(costs, entry.Offer.TotalCost)
		leads = append(leads, float64(entry.Offer.LeadTimeDays))
		cashCosts = append(cashCosts, CashFlowCost(entry.Offer.TotalCost, entry.Offer.PaymentTerms, entry.Offer.LeadTimeDays, e.annualRate))
	}

	ownCash := CashFlowCost(offer.TotalCost, offer.PaymentTerms, offer.LeadTimeDays, e.annualRate)

	vector := negotiation.ScoreVector{
		Price:    Normalize(offer.TotalCost, minOf(costs), maxOf(costs), true),
		Quality:  int(math.Round(profile.QualityRating / 5 * 100)),
		LeadTime: Normalize(float64(offer.LeadTimeDays), minOf(leads), maxOf(leads), true),
		CashFlow: Normalize(ownCash, minOf(cashCosts), maxOf(cashCosts), true),
		Risk:     riskScore(profile.QualityRating, offer.LeadTimeDays),
	}

	weights := e.WeightsFor(mode)
	weighted := float64(vector.Price)*weights.Price +
		float64(vector.Quality)*weights.Quality +
		float64(vector.LeadTime)*weights.LeadTime +
		float64(vector.CashFlow)*weights.CashFlow +
		float64(vector.Risk)*weights.Risk
	vector.Weighted = int(math.Round(weighted))

	return vector
}

// ScoreAll scores every entry in the pool against that same pool.
func (e *Engine) ScoreAll(pool []Entry, mode enums.ScoringMode) []negotiation.ScoredOffer {
	scored := make([]negotiation.ScoredOffer, 0, len(pool))
	for _, entry := range pool {
		scored = append(scored, negotiation.ScoredOffer{
			SupplierID: entry.SupplierID,
			Offer:      entry.Offer,
			Scores:     e.ScoreOffer(entry.Offer, entry.Profile, pool, mode),
		})
	}
	return scored
}

// riskScore blends supplier quality with lead-time exposure. The lead-time
// factor is anchored at 15 days as ideal and decays to zero at 65 days.
func riskScore(qualityRating float64, leadTimeDays int) int {
	qualityFactor := qualityRating / 5
	leadTimeFactor := 1 - (float64(leadTimeDays)-15)/50
	if leadTimeFactor < 0 {
		leadTimeFactor = 0
	}
	if leadTimeFactor > 1 {
		leadTimeFactor = 1
	}
	return int(math.Round((qualityFactor*0.6 + leadTimeFactor*0.4) * 100))
}

func minOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// ValidateCustomWeights checks a custom profile sums to 1.0 within tolerance.
func ValidateCustomWeights(w Weights) error {
	sum := w.Price + w.Quality + w.LeadTime + w.CashFlow + w.Risk
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("custom weights sum to %.4f, want 1.0", sum)
	}
	return nil
}
