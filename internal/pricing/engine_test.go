package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/brandcart/internal/catalog"
)

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestResolvePrecedence(t *testing.T) {
	cases := []struct {
		name    string
		product catalog.Product
		price   string
		source  Source
	}{
		{
			name: "variant wins over legacy",
			product: catalog.Product{
				Variants: []catalog.Variant{{Pricing: catalog.VariantPricing{B2B: &catalog.B2BPricing{WholesalePrice: dec("4.50")}}}},
				Price:    &catalog.LegacyPrice{Wholesale: dec("9"), Retail: dec("12")},
			},
			price:  "4.50",
			source: SourceVariantB2B,
		},
		{
			name:    "legacy wholesale before retail",
			product: catalog.Product{Price: &catalog.LegacyPrice{Wholesale: dec("9"), Retail: dec("12")}},
			price:   "9",
			source:  SourceLegacyWholesale,
		},
		{
			name: "zero wholesale falls through to retail",
			product: catalog.Product{
				Variants: []catalog.Variant{{Pricing: catalog.VariantPricing{B2B: &catalog.B2BPricing{WholesalePrice: dec("0")}}}},
				Price:    &catalog.LegacyPrice{Retail: dec("12")},
			},
			price:  "12",
			source: SourceLegacyRetail,
		},
		{
			name:    "retailPrice item",
			product: catalog.Product{RetailPrice: &catalog.RetailPrice{Item: dec("3.25")}},
			price:   "3.25",
			source:  SourceRetailItem,
		},
		{
			name:   "nothing set",
			price:  "0",
			source: SourceNone,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.product)
			require.True(t, got.UnitPrice.Equal(decimal.RequireFromString(tc.price)), "price %s", got.UnitPrice)
			require.Equal(t, tc.source, got.Source)
		})
	}
}

func TestResolveCartonAndMOQ(t *testing.T) {
	p := catalog.Product{
		Variants:       []catalog.Variant{{Pricing: catalog.VariantPricing{B2B: &catalog.B2BPricing{UnitsPerCarton: 12, MinOrderQuantity: 100}}}},
		ItemsPerCarton: 6,
		MOQ:            50,
		LegacyMOQ:      20,
		Price:          &catalog.LegacyPrice{Wholesale: dec("2")},
	}
	r := Resolve(p)
	require.Equal(t, 12, r.UnitsPerCarton)
	require.Equal(t, 100, r.MOQ)
	require.True(t, r.CartonPrice().Equal(decimal.NewFromInt(24)))
	require.True(t, r.LineTotal(5).Equal(decimal.NewFromInt(120)))
	require.Equal(t, 60, r.Units(5))

	legacy := Resolve(catalog.Product{ItemsPerCarton: 6, LegacyMOQ: 20})
	require.Equal(t, 6, legacy.UnitsPerCarton)
	require.Equal(t, 20, legacy.MOQ)

	bare := Resolve(catalog.Product{})
	require.Equal(t, 1, bare.UnitsPerCarton)
	require.Equal(t, 0, bare.MOQ)
	require.True(t, bare.LineTotal(-3).IsZero())
}

func TestComputeTaxAndClamp(t *testing.T) {
	s := Compute(decimal.NewFromInt(1000), decimal.NewFromInt(100), decimal.RequireFromString("0.20"))
	require.True(t, s.Taxable.Equal(decimal.NewFromInt(900)))
	require.True(t, s.Tax.Equal(decimal.NewFromInt(180)))
	require.True(t, s.Total.Equal(decimal.NewFromInt(1080)))

	clamped := Compute(decimal.NewFromInt(50), decimal.NewFromInt(80), decimal.RequireFromString("0.20"))
	require.True(t, clamped.Discount.Equal(decimal.NewFromInt(50)))
	require.True(t, clamped.Total.IsZero())
}

func TestFormat(t *testing.T) {
	require.Equal(t, "£12.50", Format(decimal.RequireFromString("12.5"), "GBP"))
	require.Equal(t, "CHF 3.00", Format(decimal.NewFromInt(3), "chf"))
	require.Equal(t, "$0.10", Format(decimal.RequireFromString("0.1"), "USD"))
}
