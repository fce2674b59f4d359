package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/brandcart/internal/catalog"
)

// Source names the product field a unit price was resolved from.
type Source string

const (
	SourceVariantB2B      Source = "variant.b2b.wholesalePrice"
	SourceLegacyWholesale Source = "price.wholesale"
	SourceLegacyRetail    Source = "price.retail"
	SourceRetailItem      Source = "retailPrice.item"
	SourceNone            Source = "none"
)

// Resolved is the pricing of a product computed once and reused by every
// component that needs a unit price, carton size or MOQ.
type Resolved struct {
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	UnitsPerCarton int             `json:"unitsPerCarton"`
	MOQ            int             `json:"moq"`
	Source         Source          `json:"source"`
}

// Resolve applies the price precedence: variant B2B wholesale price, legacy
// wholesale, legacy retail, retailPrice.item, then zero. Zero or negative
// candidates fall through to the next source.
func Resolve(p catalog.Product) Resolved {
	b2b := p.B2B()
	r := Resolved{UnitPrice: decimal.Zero, UnitsPerCarton: 1, Source: SourceNone}

	switch {
	case b2b != nil && positive(b2b.WholesalePrice):
		r.UnitPrice, r.Source = *b2b.WholesalePrice, SourceVariantB2B
	case p.Price != nil && positive(p.Price.Wholesale):
		r.UnitPrice, r.Source = *p.Price.Wholesale, SourceLegacyWholesale
	case p.Price != nil && positive(p.Price.Retail):
		r.UnitPrice, r.Source = *p.Price.Retail, SourceLegacyRetail
	case p.RetailPrice != nil && positive(p.RetailPrice.Item):
		r.UnitPrice, r.Source = *p.RetailPrice.Item, SourceRetailItem
	}

	switch {
	case b2b != nil && b2b.UnitsPerCarton > 0:
		r.UnitsPerCarton = b2b.UnitsPerCarton
	case p.ItemsPerCarton > 0:
		r.UnitsPerCarton = p.ItemsPerCarton
	}

	switch {
	case b2b != nil && b2b.MinOrderQuantity > 0:
		r.MOQ = b2b.MinOrderQuantity
	case p.MOQ > 0:
		r.MOQ = p.MOQ
	case p.LegacyMOQ > 0:
		r.MOQ = p.LegacyMOQ
	}
	return r
}

// CartonPrice is the unit price multiplied by the carton size.
func (r Resolved) CartonPrice() decimal.Decimal {
	return r.UnitPrice.Mul(decimal.NewFromInt(int64(r.UnitsPerCarton)))
}

// Units converts a carton quantity to individual units.
func (r Resolved) Units(cartons int) int {
	if cartons <= 0 {
		return 0
	}
	return cartons * r.UnitsPerCarton
}

// LineTotal is the carton price times the carton quantity.
func (r Resolved) LineTotal(cartons int) decimal.Decimal {
	if cartons <= 0 {
		return decimal.Zero
	}
	return r.CartonPrice().Mul(decimal.NewFromInt(int64(cartons)))
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Taxable  decimal.Decimal `json:"taxable"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Compute derives tax and grand total. The discount is clamped to the subtotal
// and the tax is charged on what remains.
func Compute(subtotal, discount, taxRate decimal.Decimal) Summary {
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	taxable := subtotal.Sub(discount)
	if taxRate.IsNegative() {
		taxRate = decimal.Zero
	}
	tax := RoundMoney(taxable.Mul(taxRate))
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Taxable:  taxable,
		Tax:      tax,
		Total:    taxable.Add(tax),
	}
}

// Percent returns pct percent of amount, rounded to minor units.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(pct).Div(hundred))
}

// RoundMoney rounds to two decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ClampZero floors negative values at zero.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

var hundred = decimal.NewFromInt(100)

func positive(d *decimal.Decimal) bool {
	return d != nil && d.IsPositive()
}
