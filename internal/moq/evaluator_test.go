package moq

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/brandcart/internal/pricing"
)

func line(id string, qty, perCarton, moq int) Line {
	return Line{
		ItemID:    id,
		ProductID: "prod-" + id,
		Quantity:  qty,
		Pricing:   pricing.Resolved{UnitPrice: decimal.NewFromInt(5), UnitsPerCarton: perCarton, MOQ: moq},
	}
}

func TestEvaluateDeficientItemCartons(t *testing.T) {
	st := Evaluate(Input{
		BrandID:    "b1",
		BrandKnown: true,
		Lines:      []Line{line("i1", 5, 12, 100)},
		Subtotal:   decimal.NewFromInt(300),
		MOA:        decimal.NewFromInt(3000),
	})
	require.False(t, st.Met)
	require.False(t, st.CanCheckout)
	require.Len(t, st.Deficiencies, 1)
	d := st.Deficiencies[0]
	require.Equal(t, 60, d.Units)
	require.Equal(t, 40, d.UnitsNeeded)
	require.Equal(t, 4, d.CartonsNeeded)
	require.Equal(t, 100, st.Required)
	require.Equal(t, 40, st.Remaining)
	require.Equal(t, 60, st.Current)
	require.Equal(t, 60, st.Percentage)
	require.Equal(t, LevelError, st.Level)
	require.Contains(t, d.Message(), "Add 4 more cartons (40 units)")
}

func TestEvaluateMOAWaivesMOQ(t *testing.T) {
	st := Evaluate(Input{
		BrandID:    "b1",
		BrandKnown: true,
		Lines:      []Line{line("i1", 1, 12, 100)},
		Subtotal:   decimal.NewFromInt(3200),
		MOA:        decimal.NewFromInt(3000),
	})
	require.False(t, st.Met)
	require.True(t, st.MOAExceeded)
	require.True(t, st.CanCheckout)
	require.Equal(t, LevelMet, st.Level)
}

func TestEvaluateMOAIsInclusive(t *testing.T) {
	st := Evaluate(Input{BrandID: "b1", BrandKnown: true, Lines: []Line{line("i1", 1, 1, 10)}, Subtotal: decimal.NewFromInt(3000), MOA: decimal.NewFromInt(3000)})
	require.True(t, st.MOAExceeded)
	require.True(t, st.CanCheckout)
}

func TestEvaluateOneDeficientLineBlocksBrand(t *testing.T) {
	st := Evaluate(Input{
		BrandID:    "b1",
		BrandKnown: true,
		Lines:      []Line{line("ok", 10, 12, 100), line("short", 9, 1, 10)},
		Subtotal:   decimal.NewFromInt(100),
		MOA:        decimal.NewFromInt(3000),
	})
	require.False(t, st.Met)
	require.False(t, st.CanCheckout)
	require.Len(t, st.Deficiencies, 1)
	require.Equal(t, "short", st.Deficiencies[0].ItemID)
	require.Equal(t, LevelWarning, st.Level)
}

func TestEvaluateNoMOQCode(t *testing.T) {
	st := Evaluate(Input{BrandID: "b1", BrandKnown: true, Lines: []Line{line("i1", 1, 1, 50)}, Subtotal: decimal.NewFromInt(10), MOA: decimal.NewFromInt(3000), NoMOQCode: true})
	require.False(t, st.Met)
	require.True(t, st.CanCheckout)
}

func TestEvaluateNoMOQConfigured(t *testing.T) {
	st := Evaluate(Input{BrandID: "b1", BrandKnown: true, Lines: []Line{line("i1", 1, 1, 0)}, Subtotal: decimal.NewFromInt(10), MOA: decimal.NewFromInt(3000)})
	require.True(t, st.Met)
	require.True(t, st.CanCheckout)
	require.Equal(t, 100, st.Percentage)
}

func TestEvaluateMissingBrandIsUnconstrained(t *testing.T) {
	st := Evaluate(Input{BrandID: "ghost", Lines: []Line{line("i1", 1, 1, 500)}, Subtotal: decimal.NewFromInt(10), MOA: decimal.NewFromInt(3000)})
	require.True(t, st.MissingBrand)
	require.True(t, st.Met)
	require.True(t, st.CanCheckout)
	require.Empty(t, st.Deficiencies)
}
