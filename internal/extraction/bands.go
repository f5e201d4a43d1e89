package extraction

import (
	"github.com/sourcelane/negotiator-backend/pkg/config"
	"github.com/sourcelane/negotiator-backend/pkg/enums"
)

// PriceBands bounds plausible offer totals per declared price level, as
// multipliers over the baseline total. The multipliers are injected from
// configuration, not hard-coded.
type PriceBands struct {
	CheapestLow   float64
	CheapestHigh  float64
	MidLow        float64
	MidHigh       float64
	ExpensiveLow  float64
	ExpensiveHigh float64
}

// BandsFromConfig lifts the configured multipliers into a PriceBands value.
func BandsFromConfig(cfg config.NegotiationConfig) PriceBands {
	return PriceBands{
		CheapestLow:   cfg.BandCheapestLow,
		CheapestHigh:  cfg.BandCheapestHigh,
		MidLow:        cfg.BandMidLow,
		MidHigh:       cfg.BandMidHigh,
		ExpensiveLow:  cfg.BandExpensiveLow,
		ExpensiveHigh: cfg.BandExpensiveHigh,
	}
}

// Range returns the low/high multipliers for a price level. Unknown levels
// read as mid.
func (b PriceBands) Range(level enums.PriceLevel) (float64, float64) {
	switch level {
	case enums.PriceLevelCheapest:
		return b.CheapestLow, b.CheapestHigh
	case enums.PriceLevelExpensive:
		return b.ExpensiveLow, b.ExpensiveHigh
	default:
		return b.MidLow, b.MidHigh
	}
}
