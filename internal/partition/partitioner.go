// Package partition turns a flat cart into one self-contained summary per brand.
package partition

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/brandcart/internal/cart"
	"github.com/noah-isme/brandcart/internal/catalog"
	"github.com/noah-isme/brandcart/internal/discount"
	"github.com/noah-isme/brandcart/internal/moq"
	"github.com/noah-isme/brandcart/internal/obs"
	"github.com/noah-isme/brandcart/internal/pricing"
	"github.com/noah-isme/brandcart/internal/volume"
)

// Item is a cart line with its resolved pricing.
type Item struct {
	ID             uuid.UUID       `json:"id"`
	ProductID      string          `json:"productId"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	Units          int             `json:"units"`
	UnitsPerCarton int             `json:"unitsPerCarton"`
	MOQ            int             `json:"moq"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	CartonPrice    decimal.Decimal `json:"cartonPrice"`
	LineTotal      decimal.Decimal `json:"lineTotal"`
	PriceSource    pricing.Source  `json:"priceSource"`
}

// AppliedCode is an applied discount code with its amount for this brand.
type AppliedCode struct {
	DiscountCodeID string           `json:"discountCodeId"`
	Code           string           `json:"code"`
	BrandID        string           `json:"brandId,omitempty"`
	Amount         decimal.Decimal  `json:"discountAmount"`
	Percentage     *decimal.Decimal `json:"percentage,omitempty"`
	RemovesMOQ     bool             `json:"removesMOQ,omitempty"`
}

// Summary is the derived view of one brand's share of the cart. It is never
// persisted; recompute it after every cart mutation.
type Summary struct {
	BrandID        string          `json:"brandId"`
	BrandName      string          `json:"brandName"`
	Items          []Item          `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	MOQStatus      moq.Status      `json:"moqStatus"`
	VolumeDiscount *volume.Result  `json:"volumeDiscount,omitempty"`
	Codes          []AppliedCode   `json:"appliedDiscountCodes"`
	CodeDiscount   decimal.Decimal `json:"codeDiscount"`
	// Discount is everything taken off Subtotal, capped at Subtotal.
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	CanCheckout   bool            `json:"canCheckout"`
	UpsellMessage string          `json:"upsellMessage,omitempty"`
}

// VolumeAmount is the automatic tier discount, zero when none applies.
func (s Summary) VolumeAmount() decimal.Decimal {
	if s.VolumeDiscount == nil {
		return decimal.Zero
	}
	return s.VolumeDiscount.Amount
}

// Partitioner builds brand summaries. The zero value uses the package default
// MOA and GBP.
type Partitioner struct {
	DefaultMOA decimal.Decimal
	Currency   string
	Logger     zerolog.Logger
}

// Summarize groups items by brand in order of first appearance and computes
// each brand's pricing, MOQ status, volume discount and code discounts. Brands
// missing from brands are summarised without MOQ enforcement and logged.
func (p *Partitioner) Summarize(items []cart.LineItem, brands map[string]catalog.Brand, applied []discount.Applied) []Summary {
	order, groups := group(items)
	out := make([]Summary, 0, len(order))
	for _, brandID := range order {
		brand, known := brands[brandID]
		if !known {
			p.Logger.Warn().Str("brand_id", brandID).Int("items", len(groups[brandID])).Msg("brand configuration missing; MOQ not enforced")
			obs.IncBrandConfigMissing()
		}
		out = append(out, p.summarize(brandID, brand, known, groups[brandID], applied))
	}
	obs.IncCartSummaries(len(out))
	return out
}

// SummarizeSession is Summarize over a cart session.
func (p *Partitioner) SummarizeSession(sess *cart.Session, brands map[string]catalog.Brand) []Summary {
	if sess == nil {
		return []Summary{}
	}
	return p.Summarize(sess.Items, brands, sess.Applied)
}

func (p *Partitioner) summarize(brandID string, brand catalog.Brand, known bool, items []cart.LineItem, applied []discount.Applied) Summary {
	sum := Summary{
		BrandID:   brandID,
		BrandName: brand.Name,
		Items:     make([]Item, 0, len(items)),
		Subtotal:  decimal.Zero,
		Codes:     []AppliedCode{},
	}
	if sum.BrandName == "" {
		sum.BrandName = brandID
	}

	moqLines := make([]moq.Line, 0, len(items))
	codeLines := make([]discount.Line, 0, len(items))
	for _, it := range items {
		resolved := it.Pricing()
		total := resolved.LineTotal(it.Quantity)
		sum.Items = append(sum.Items, Item{
			ID:             it.ID,
			ProductID:      it.Product.ID,
			Name:           it.Product.Name,
			Quantity:       it.Quantity,
			Units:          resolved.Units(it.Quantity),
			UnitsPerCarton: resolved.UnitsPerCarton,
			MOQ:            resolved.MOQ,
			UnitPrice:      resolved.UnitPrice,
			CartonPrice:    resolved.CartonPrice(),
			LineTotal:      total,
			PriceSource:    resolved.Source,
		})
		moqLines = append(moqLines, moq.Line{
			ItemID:    it.ID.String(),
			ProductID: it.Product.ID,
			Name:      it.Product.Name,
			Quantity:  it.Quantity,
			Pricing:   resolved,
		})
		codeLines = append(codeLines, discount.Line{ProductID: it.Product.ID, BrandID: brandID, Total: total})
		sum.Subtotal = sum.Subtotal.Add(total)
	}

	noMOQ := false
	codeTotal := decimal.Zero
	for _, a := range applied {
		if !a.AppliesTo(brandID) {
			continue
		}
		amount := codeAmount(a, codeLines, brandID, sum.Subtotal)
		sum.Codes = append(sum.Codes, AppliedCode{
			DiscountCodeID: a.DiscountCodeID,
			Code:           a.Code,
			BrandID:        a.BrandID,
			Amount:         amount,
			Percentage:     a.Percentage,
			RemovesMOQ:     a.RemovesMOQ,
		})
		codeTotal = codeTotal.Add(amount)
		noMOQ = noMOQ || a.RemovesMOQ
	}
	sum.CodeDiscount = codeTotal

	sum.MOQStatus = moq.Evaluate(moq.Input{
		BrandID:    brandID,
		BrandKnown: known,
		Lines:      moqLines,
		Subtotal:   sum.Subtotal,
		MOA:        brand.MinimumOrderAmount(p.DefaultMOA),
		NoMOQCode:  noMOQ,
	})
	sum.CanCheckout = sum.MOQStatus.CanCheckout

	vol := volume.Resolve(brand.VolumeDiscounts, sum.Subtotal)
	if vol.Tier != nil || vol.Next != nil {
		sum.VolumeDiscount = &vol
	}
	sum.UpsellMessage = volume.UpsellMessage(sum.BrandName, p.Currency, vol.Next)

	discountTotal := vol.Amount.Add(codeTotal)
	if discountTotal.GreaterThan(sum.Subtotal) {
		discountTotal = sum.Subtotal
	}
	sum.Discount = pricing.ClampZero(discountTotal)
	sum.Total = pricing.ClampZero(sum.Subtotal.Sub(sum.Discount))
	return sum
}

// codeAmount recomputes a code against the current pre-discount subtotal.
// Records without a definition fall back to their percentage or stored amount.
func codeAmount(a discount.Applied, lines []discount.Line, brandID string, subtotal decimal.Decimal) decimal.Decimal {
	switch {
	case a.Definition.DiscountType != "":
		return a.Recompute(lines, brandID)
	case a.Percentage != nil:
		return pricing.ClampZero(decimal.Min(pricing.Percent(subtotal, *a.Percentage), subtotal))
	default:
		return pricing.ClampZero(decimal.Min(pricing.RoundMoney(a.Amount), subtotal))
	}
}

func group(items []cart.LineItem) ([]string, map[string][]cart.LineItem) {
	var order []string
	groups := make(map[string][]cart.LineItem)
	for _, it := range items {
		id := it.BrandID()
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], it)
	}
	return order, groups
}
