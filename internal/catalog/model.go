package catalog

import "github.com/shopspring/decimal"

// DefaultMOA is the minimum order amount applied to brands that do not configure one.
var DefaultMOA = decimal.NewFromInt(3000)

// Product is a product record as served by the brand data collaborator. Records
// written by older tooling only carry the flat price fields; newer records carry
// per-variant B2B pricing. Both shapes may be present on the same record.
type Product struct {
	ID             string       `json:"id"`
	BrandID        string       `json:"brandId"`
	Name           string       `json:"name"`
	Variants       []Variant    `json:"variants,omitempty"`
	Price          *LegacyPrice `json:"price,omitempty"`
	RetailPrice    *RetailPrice `json:"retailPrice,omitempty"`
	ItemsPerCarton int          `json:"itemsPerCarton,omitempty"`
	MOQ            int          `json:"MOQ,omitempty"`
	LegacyMOQ      int          `json:"moq,omitempty"`
}

// Variant is a sellable variant of a product.
type Variant struct {
	ID      string         `json:"variantId"`
	SKU     string         `json:"sku,omitempty"`
	Pricing VariantPricing `json:"pricing"`
}

// VariantPricing groups per-channel pricing for a variant.
type VariantPricing struct {
	B2B *B2BPricing `json:"b2b,omitempty"`
}

// B2BPricing holds wholesale terms for a variant.
type B2BPricing struct {
	WholesalePrice   *decimal.Decimal `json:"wholesalePrice,omitempty"`
	UnitsPerCarton   int              `json:"unitsPerCarton,omitempty"`
	MinOrderQuantity int              `json:"minOrderQuantity,omitempty"`
}

// LegacyPrice is the flat price block used by records predating variants.
type LegacyPrice struct {
	Wholesale *decimal.Decimal `json:"wholesale,omitempty"`
	Retail    *decimal.Decimal `json:"retail,omitempty"`
}

// RetailPrice is the oldest price shape, holding a single per-item retail price.
type RetailPrice struct {
	Item *decimal.Decimal `json:"item,omitempty"`
}

// B2B returns the wholesale terms of the first variant, if any.
func (p Product) B2B() *B2BPricing {
	if len(p.Variants) == 0 {
		return nil
	}
	return p.Variants[0].Pricing.B2B
}

// VolumeTier unlocks DiscountPercentage once a brand subtotal reaches Threshold.
type VolumeTier struct {
	Threshold          decimal.Decimal `json:"threshold"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
}

// Brand is the read-only configuration of a brand.
type Brand struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	MOA             *decimal.Decimal `json:"MOA,omitempty"`
	VolumeDiscounts []VolumeTier     `json:"volumeDiscounts,omitempty"`
}

// MinimumOrderAmount returns the brand MOA, or fallback when unset or zero.
func (b Brand) MinimumOrderAmount(fallback decimal.Decimal) decimal.Decimal {
	if b.MOA != nil && b.MOA.IsPositive() {
		return *b.MOA
	}
	if fallback.IsPositive() {
		return fallback
	}
	return DefaultMOA
}
