package enums

import "fmt"

// PriceLevel is a supplier's declared market positioning, used to bound
// plausible offer totals during extraction.
type PriceLevel string

const (
	PriceLevelCheapest  PriceLevel = "cheapest"
	PriceLevelMid       PriceLevel = "mid"
	PriceLevelExpensive PriceLevel = "expensive"
)

var validPriceLevels = []PriceLevel{
	PriceLevelCheapest,
	PriceLevelMid,
	PriceLevelExpensive,
}

// String implements fmt.Stringer.
func (p PriceLevel) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PriceLevel.
func (p PriceLevel) IsValid() bool {
	for _, candidate := range validPriceLevels {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePriceLevel converts raw input into a PriceLevel.
func ParsePriceLevel(value string) (PriceLevel, error) {
	for _, candidate := range validPriceLevels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid price level %q", value)
}
