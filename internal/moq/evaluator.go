// Package moq decides whether a brand's share of the cart meets the brand's
// minimum order rules.
package moq

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/brandcart/internal/pricing"
)

// Level summarises how close a brand is to its minimums.
type Level string

const (
	LevelMet     Level = "met"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// warningShare is the share of outstanding units, relative to the brand's total
// MOQ requirement, at or below which a brand is reported as close.
var warningShare = decimal.RequireFromString("0.3")

// Line is one cart line of the evaluated brand with its resolved pricing.
type Line struct {
	ItemID    string
	ProductID string
	Name      string
	Quantity  int
	Pricing   pricing.Resolved
}

// Input carries everything the evaluation needs.
type Input struct {
	BrandID string
	// BrandKnown is false when no brand configuration could be loaded.
	BrandKnown bool
	Lines      []Line
	Subtotal   decimal.Decimal
	MOA        decimal.Decimal
	// NoMOQCode is set when an applied discount code waives MOQ for the brand.
	NoMOQCode bool
}

// Deficiency describes a line below its product MOQ.
type Deficiency struct {
	ItemID        string `json:"itemId"`
	ProductID     string `json:"productId"`
	Name          string `json:"name,omitempty"`
	Required      int    `json:"required"`
	Units         int    `json:"units"`
	UnitsNeeded   int    `json:"unitsNeeded"`
	CartonsNeeded int    `json:"cartonsNeeded"`
}

// Message is the shopper-facing hint for the deficient line.
func (d Deficiency) Message() string {
	name := d.Name
	if name == "" {
		name = d.ProductID
	}
	noun := "cartons"
	if d.CartonsNeeded == 1 {
		noun = "carton"
	}
	return fmt.Sprintf("Add %d more %s (%d units) of %s to reach the minimum of %d units", d.CartonsNeeded, noun, d.UnitsNeeded, name, d.Required)
}

// Status is the MOQ/MOA outcome for one brand.
type Status struct {
	BrandID      string          `json:"brandId"`
	Met          bool            `json:"met"`
	MOAExceeded  bool            `json:"moaExceeded"`
	NoMOQCode    bool            `json:"noMoqCode"`
	MissingBrand bool            `json:"missingBrand"`
	CanCheckout  bool            `json:"canCheckout"`
	Current      int             `json:"current"`
	Required     int             `json:"required"`
	Remaining    int             `json:"remaining"`
	Percentage   int             `json:"percentage"`
	Level        Level           `json:"level"`
	OrderTotal   decimal.Decimal `json:"orderTotal"`
	MOA          decimal.Decimal `json:"moa"`
	Deficiencies []Deficiency    `json:"deficiencies,omitempty"`
}

// Evaluate computes the MOQ status of a brand. Met is an AND across lines: one
// deficient line blocks the brand. Reaching the MOA or holding a no-MOQ code
// waives the requirement without changing Met. Unknown brands have nothing to
// enforce and report Met with MissingBrand set.
func Evaluate(in Input) Status {
	st := Status{
		BrandID:      in.BrandID,
		NoMOQCode:    in.NoMOQCode,
		MissingBrand: !in.BrandKnown,
		OrderTotal:   in.Subtotal,
		MOA:          in.MOA,
	}
	st.MOAExceeded = in.MOA.IsPositive() && in.Subtotal.GreaterThanOrEqual(in.MOA)

	if in.BrandKnown {
		for _, line := range in.Lines {
			moq := line.Pricing.MOQ
			if moq <= 0 {
				continue
			}
			st.Required += moq
			units := line.Pricing.Units(line.Quantity)
			if units >= moq {
				continue
			}
			needed := moq - units
			st.Remaining += needed
			st.Deficiencies = append(st.Deficiencies, Deficiency{
				ItemID:        line.ItemID,
				ProductID:     line.ProductID,
				Name:          line.Name,
				Required:      moq,
				Units:         units,
				UnitsNeeded:   needed,
				CartonsNeeded: cartonsFor(needed, line.Pricing.UnitsPerCarton),
			})
		}
	}
	st.Current = st.Required - st.Remaining
	st.Met = len(st.Deficiencies) == 0
	st.CanCheckout = st.Met || st.MOAExceeded || st.NoMOQCode
	st.Percentage = percentage(st.Current, st.Required)
	st.Level = level(st)
	return st
}

func cartonsFor(units, perCarton int) int {
	if perCarton <= 0 {
		perCarton = 1
	}
	return (units + perCarton - 1) / perCarton
}

func percentage(current, required int) int {
	if required <= 0 {
		return 100
	}
	p := current * 100 / required
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

func level(st Status) Level {
	if st.CanCheckout {
		return LevelMet
	}
	limit := decimal.NewFromInt(int64(st.Required)).Mul(warningShare)
	if decimal.NewFromInt(int64(st.Remaining)).LessThanOrEqual(limit) {
		return LevelWarning
	}
	return LevelError
}
