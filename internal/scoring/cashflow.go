package scoring

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultAnnualRate is the cost of capital applied when no rate is configured.
const DefaultAnnualRate = 0.08

var (
	netTermPattern = regexp.MustCompile(`(?i)net[-\s]?(\d+)`)
	dayTermPattern = regexp.MustCompile(`(?i)(\d+)[-\s]?day`)
)

// CashFlowCost converts a free-text payment-term string plus the delivery
// lead time into the time-value-of-money cost of the capital tied up by the
// schedule. Deferred terms (net-30) come back negative: the buyer holds the
// cash past delivery. Unparseable terms cost nothing rather than failing.
func CashFlowCost(totalCost float64, paymentTerms string, leadTimeDays int, annualRate float64) float64 {
	if annualRate == 0 {
		annualRate = DefaultAnnualRate
	}
	dailyRate := annualRate / 365

	terms := strings.TrimSpace(paymentTerms)
	if terms == "" {
		return 0
	}

	if m := netTermPattern.FindStringSubmatch(terms); m != nil {
		days, err := strconv.Atoi(m[1])
		if err == nil {
			return -(totalCost * float64(days) * dailyRate)
		}
	}

	// "30 days" without a schedule separator reads the same as net-30.
	if !strings.Contains(terms, "/") {
		if m := dayTermPattern.FindStringSubmatch(terms); m != nil {
			days, err := strconv.Atoi(m[1])
			if err == nil {
				return -(totalCost * float64(days) * dailyRate)
			}
		}
	}

	parts := parseScheduleParts(terms)
	if len(parts) == 0 {
		return 0
	}

	if len(parts) == 1 && parts[0] >= 100 {
		// Fully upfront: the whole amount is locked for the lead time.
		return totalCost * float64(leadTimeDays) * dailyRate
	}

	// Payments land evenly spaced across the lead-time window in declared
	// order: first at day 0, last at leadTime*(n-1)/n. Percentages are used
	// as given, without normalizing to 100.
	var cost float64
	n := float64(len(parts))
	for i, pct := range parts {
		amount := totalCost * pct / 100
		paymentDay := float64(leadTimeDays) * float64(i) / n
		held := float64(leadTimeDays) - paymentDay
		if held < 0 {
			held = 0
		}
		cost += amount * held * dailyRate
	}
	return cost
}

func parseScheduleParts(terms string) []float64 {
	raw := strings.Split(terms, "/")
	parts := make([]float64, 0, len(raw))
	for _, piece := range raw {
		piece = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(piece), "%"))
		value, err := strconv.ParseFloat(piece, 64)
		if err != nil || value <= 0 {
			continue
		}
		parts = append(parts, value)
	}
	return parts
}
