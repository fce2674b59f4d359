// Package volume picks the automatic tiered discount of a brand.
package volume

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/brandcart/internal/catalog"
	"github.com/noah-isme/brandcart/internal/pricing"
)

// NextTier is the cheapest tier the shopper has not reached yet.
type NextTier struct {
	Tier         catalog.VolumeTier `json:"tier"`
	AmountNeeded decimal.Decimal    `json:"amountNeeded"`
}

// Result is the outcome of resolving a tier table against a subtotal.
type Result struct {
	// Tier is nil when no tier qualifies.
	Tier *catalog.VolumeTier `json:"tier,omitempty"`
	// Amount is the money taken off the subtotal (the savings).
	Amount decimal.Decimal `json:"amount"`
	// Discounted is the subtotal after Amount.
	Discounted decimal.Decimal `json:"discounted"`
	Next       *NextTier       `json:"next,omitempty"`
}

// Resolve selects, among the tiers whose threshold the subtotal reaches, the one
// with the highest percentage. Equal percentages resolve to the lower threshold.
// The next tier is the lowest-threshold tier not yet reached.
func Resolve(tiers []catalog.VolumeTier, subtotal decimal.Decimal) Result {
	res := Result{Amount: decimal.Zero, Discounted: subtotal}
	if len(tiers) == 0 {
		return res
	}

	var best *catalog.VolumeTier
	for i := range tiers {
		t := tiers[i]
		if subtotal.LessThan(t.Threshold) {
			continue
		}
		if best == nil ||
			t.DiscountPercentage.GreaterThan(best.DiscountPercentage) ||
			(t.DiscountPercentage.Equal(best.DiscountPercentage) && t.Threshold.LessThan(best.Threshold)) {
			best = &t
		}
	}
	if best != nil {
		res.Tier = best
		res.Amount = pricing.Percent(subtotal, best.DiscountPercentage)
		res.Discounted = pricing.ClampZero(subtotal.Sub(res.Amount))
	}

	unmet := make([]catalog.VolumeTier, 0, len(tiers))
	for _, t := range tiers {
		if subtotal.LessThan(t.Threshold) {
			unmet = append(unmet, t)
		}
	}
	if len(unmet) > 0 {
		sort.SliceStable(unmet, func(i, j int) bool {
			return unmet[i].Threshold.LessThan(unmet[j].Threshold)
		})
		res.Next = &NextTier{Tier: unmet[0], AmountNeeded: unmet[0].Threshold.Sub(subtotal)}
	}
	return res
}

// UpsellMessage renders the hint for the next tier, or "" when there is none.
func UpsellMessage(brandName, currency string, next *NextTier) string {
	if next == nil {
		return ""
	}
	return fmt.Sprintf("Add %s to get %s%% off your %s order!",
		pricing.Format(next.AmountNeeded, currency),
		next.Tier.DiscountPercentage.String(),
		brandName)
}
