package checkout

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/brandcart/internal/partition"
	"github.com/noah-isme/brandcart/internal/pricing"
)

// OrderItem is a line of a created order with the price it was invoiced at.
type OrderItem struct {
	ProductID      string          `json:"productId"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	Units          int             `json:"units"`
	UnitsPerCarton int             `json:"unitsPerCarton"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	CartonPrice    decimal.Decimal `json:"cartonPrice"`
	LineTotal      decimal.Decimal `json:"lineTotal"`
	PriceSource    pricing.Source  `json:"priceSource"`
}

// DiscountLine is one entry of an order's discount breakdown.
type DiscountLine struct {
	Kind           string           `json:"kind"`
	DiscountCodeID string           `json:"discountCodeId,omitempty"`
	Code           string           `json:"code,omitempty"`
	Percentage     *decimal.Decimal `json:"percentage,omitempty"`
	Amount         decimal.Decimal  `json:"amount"`
}

const (
	DiscountKindVolume = "volume"
	DiscountKindCode   = "code"
)

// OrderPayload is sent to the order collaborator, one per brand.
type OrderPayload struct {
	OrderNumber string          `json:"orderNumber"`
	SessionID   string          `json:"sessionId"`
	CustomerID  string          `json:"customerId,omitempty"`
	BrandID     string          `json:"brandId"`
	BrandName   string          `json:"brandName"`
	Currency    string          `json:"currency"`
	Items       []OrderItem     `json:"items"`
	Discounts   []DiscountLine  `json:"discounts"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
	MOAExceeded bool            `json:"moaExceeded"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// OrderCreator creates an order and returns its id.
type OrderCreator interface {
	CreateOrder(ctx context.Context, payload OrderPayload) (string, error)
}

// NewOrderNumber renders "#<base36 millis>-<4 base36 chars>", upper-case.
func NewOrderNumber(now time.Time) string {
	id := uuid.New()
	var suffix strings.Builder
	for _, b := range id[:4] {
		suffix.WriteString(strconv.FormatInt(int64(b)%36, 36))
	}
	return strings.ToUpper("#" + strconv.FormatInt(now.UnixMilli(), 36) + "-" + suffix.String())
}

// BuildPayload turns a brand summary into an order payload.
func BuildPayload(s partition.Summary, taxRate decimal.Decimal, currency string, now time.Time) OrderPayload {
	totals := pricing.Compute(s.Subtotal, s.Discount, taxRate)
	p := OrderPayload{
		OrderNumber: NewOrderNumber(now),
		BrandID:     s.BrandID,
		BrandName:   s.BrandName,
		Currency:    currency,
		Items:       make([]OrderItem, 0, len(s.Items)),
		Discounts:   []DiscountLine{},
		Subtotal:    totals.Subtotal,
		Discount:    totals.Discount,
		Tax:         totals.Tax,
		Total:       totals.Total,
		MOAExceeded: s.MOQStatus.MOAExceeded,
		CreatedAt:   now,
	}
	for _, it := range s.Items {
		p.Items = append(p.Items, OrderItem{
			ProductID:      it.ProductID,
			Name:           it.Name,
			Quantity:       it.Quantity,
			Units:          it.Units,
			UnitsPerCarton: it.UnitsPerCarton,
			UnitPrice:      it.UnitPrice,
			CartonPrice:    it.CartonPrice,
			LineTotal:      it.LineTotal,
			PriceSource:    it.PriceSource,
		})
	}
	if s.VolumeDiscount != nil && s.VolumeDiscount.Tier != nil {
		pct := s.VolumeDiscount.Tier.DiscountPercentage
		p.Discounts = append(p.Discounts, DiscountLine{
			Kind:       DiscountKindVolume,
			Percentage: &pct,
			Amount:     s.VolumeDiscount.Amount,
		})
	}
	for _, c := range s.Codes {
		p.Discounts = append(p.Discounts, DiscountLine{
			Kind:           DiscountKindCode,
			DiscountCodeID: c.DiscountCodeID,
			Code:           c.Code,
			Percentage:     c.Percentage,
			Amount:         c.Amount,
		})
	}
	return p
}
