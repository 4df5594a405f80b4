// Package pricing computes booking totals: base route price scaled by the
// seat-class multiplier, percentage discounts and refunds. All amounts are
// int64 minor units (cents); every fractional result goes through RoundHalfUp
// so arithmetic stays stable across promo and refund paths.
package pricing

import (
	"math"

	"github.com/transitfare/fare-go/internal/domain"
)

// Class multipliers in percent. Unknown classes fall back to the economy
// multiplier; this is a documented fallback, not an error.
const (
	economyPct  = 100
	businessPct = 150
	firstPct    = 200
)

func MultiplierPct(class domain.SeatClass) int {
	switch class {
	case domain.ClassBusiness:
		return businessPct
	case domain.ClassFirst:
		return firstPct
	default:
		return economyPct
	}
}

// Price returns the class-adjusted price for a route base price.
func Price(baseCents int64, class domain.SeatClass) int64 {
	return Percentage(baseCents, MultiplierPct(class))
}

// Discount applies a percentage discount: amount * (1 - pct/100). The final
// amount is what rounds half-up, not the discount portion.
func Discount(amountCents int64, pct int) int64 {
	return Percentage(amountCents, 100-pct)
}

// Percentage returns pct% of the amount, rounded half-up.
func Percentage(amountCents int64, pct int) int64 {
	return RoundHalfUp(float64(amountCents) * float64(pct) / 100)
}

// RoundHalfUp rounds to the nearest integer minor unit, ties away from zero
// toward positive infinity (0.5 -> 1).
func RoundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}
