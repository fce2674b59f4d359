// Package checkout aggregates brand summaries into a submittable checkout and
// submits one order per eligible brand.
package checkout

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/brandcart/internal/partition"
	"github.com/noah-isme/brandcart/internal/pricing"
)

// DefaultTaxRate is the VAT rate of the reference deployment.
var DefaultTaxRate = decimal.RequireFromString("0.20")

// Result is the checkout-level view of the cart.
type Result struct {
	Eligible       []partition.Summary `json:"eligibleSummaries"`
	Excluded       []partition.Summary `json:"excludedSummaries"`
	Subtotal       decimal.Decimal     `json:"subtotal"`
	TotalDiscounts decimal.Decimal     `json:"totalDiscounts"`
	Tax            decimal.Decimal     `json:"tax"`
	GrandTotal     decimal.Decimal     `json:"grandTotal"`
	AnyEligible    bool                `json:"anyEligible"`
}

// BrandIDs lists the eligible brands in summary order.
func (r Result) BrandIDs() []string {
	out := make([]string, 0, len(r.Eligible))
	for _, s := range r.Eligible {
		out = append(out, s.BrandID)
	}
	return out
}

// Aggregate splits summaries into eligible and excluded and totals the eligible
// ones. A summary is eligible when it can check out and, if allow is not empty,
// its brand is listed in allow. Tax is charged on subtotal minus discounts and
// rounded per brand, the way each order is invoiced, so the grand total is the
// sum of the order totals.
func Aggregate(summaries []partition.Summary, allow []string, taxRate decimal.Decimal) Result {
	res := Result{
		Eligible:       []partition.Summary{},
		Excluded:       []partition.Summary{},
		Subtotal:       decimal.Zero,
		TotalDiscounts: decimal.Zero,
		Tax:            decimal.Zero,
		GrandTotal:     decimal.Zero,
	}
	for _, s := range summaries {
		if !s.CanCheckout || (len(allow) > 0 && !slices.Contains(allow, s.BrandID)) {
			res.Excluded = append(res.Excluded, s)
			continue
		}
		res.Eligible = append(res.Eligible, s)
		totals := pricing.Compute(s.Subtotal, s.Discount, taxRate)
		res.Subtotal = res.Subtotal.Add(totals.Subtotal)
		res.TotalDiscounts = res.TotalDiscounts.Add(totals.Discount)
		res.Tax = res.Tax.Add(totals.Tax)
		res.GrandTotal = res.GrandTotal.Add(totals.Total)
	}
	res.AnyEligible = len(res.Eligible) > 0
	return res
}
