package discount

import (
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/brandcart/internal/common"
	"github.com/noah-isme/brandcart/internal/pricing"
)

var (
	// ErrInvalidCode is returned when the code is unknown, inactive or outside its validity window.
	ErrInvalidCode = errors.New("discount code invalid")
	// ErrAlreadyApplied is returned when the code is already applied to the target brand.
	ErrAlreadyApplied = errors.New("discount code already applied")
	// ErrBrandNotEligible is returned when no brand in the cart may receive the code.
	ErrBrandNotEligible = errors.New("discount code not valid for these brands")
	// ErrBelowMinimum indicates the brand subtotal is under the code's minimum order value.
	ErrBelowMinimum = errors.New("discount code minimum order value not met")
	// ErrNotNewCustomer is returned for new-customer codes used by older accounts.
	ErrNotNewCustomer = errors.New("discount code only valid for new customers")
	// ErrProductNotEligible is returned when a product-scoped code matches nothing in the brand cart.
	ErrProductNotEligible = errors.New("discount code not valid for these products")
	// ErrUsageLimitReached indicates the code exhausted its global or per-customer allowance.
	ErrUsageLimitReached = errors.New("discount code usage limit reached")
	// ErrB2BOnly is returned when a no-MOQ code is used outside a B2B order.
	ErrB2BOnly = errors.New("discount code only valid for b2b orders")
)

// Reason is the stable rejection code surfaced to shoppers.
type Reason string

const (
	ReasonInvalidCode        Reason = "INVALID_CODE"
	ReasonAlreadyApplied     Reason = "ALREADY_APPLIED"
	ReasonBrandNotEligible   Reason = "BRAND_NOT_ELIGIBLE"
	ReasonBelowMinimum       Reason = "BELOW_MINIMUM"
	ReasonNotNewCustomer     Reason = "NOT_NEW_CUSTOMER"
	ReasonProductNotEligible Reason = "PRODUCT_NOT_ELIGIBLE"
	ReasonUsageLimitReached  Reason = "USAGE_LIMIT_REACHED"
	ReasonB2BOnly            Reason = "B2B_ONLY"
)

// Kind is the marketing category of a code.
type Kind string

const (
	KindGeneral     Kind = "general"
	KindAffiliate   Kind = "affiliate"
	KindSeasonal    Kind = "seasonal"
	KindVIP         Kind = "vip"
	KindPromotional Kind = "promotional"
	KindNoMOQ       Kind = "no-moq"
)

// ValueType selects how DiscountValue is interpreted.
type ValueType string

const (
	TypePercentage ValueType = "percentage"
	TypeFixed      ValueType = "fixed"
)

// Conditions restrict who and what a code applies to.
type Conditions struct {
	MinOrderValue    *decimal.Decimal `json:"minOrderValue,omitempty"`
	MaxOrderValue    *decimal.Decimal `json:"maxOrderValue,omitempty"`
	NewCustomersOnly bool             `json:"newCustomersOnly,omitempty"`
	SpecificBrands   []string         `json:"specificBrands,omitempty"`
	SpecificProducts []string         `json:"specificProducts,omitempty"`
}

// Definition is a discount code as stored by the discount collaborator.
type Definition struct {
	ID                 string          `json:"id" validate:"required"`
	Code               string          `json:"code" validate:"required"`
	Name               string          `json:"name,omitempty"`
	Kind               Kind            `json:"type,omitempty" validate:"omitempty,oneof=general affiliate seasonal vip promotional no-moq"`
	DiscountType       ValueType       `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue      decimal.Decimal `json:"discountValue"`
	Active             bool            `json:"active"`
	ValidFrom          *time.Time      `json:"validFrom,omitempty"`
	ValidUntil         *time.Time      `json:"validUntil,omitempty"`
	MaxUses            int             `json:"maxUses,omitempty" validate:"gte=0"`
	MaxUsesPerCustomer int             `json:"maxUsesPerCustomer,omitempty" validate:"gte=0"`
	CurrentUses        int             `json:"currentUses" validate:"gte=0"`
	RemovesMOQ         bool            `json:"removesMOQ,omitempty"`
	Conditions         Conditions      `json:"conditions"`
}

// Applied is a code accepted for one brand of the session cart. Definition is
// kept so the amount can be recomputed against the current cart.
type Applied struct {
	DiscountCodeID string           `json:"discountCodeId"`
	Code           string           `json:"code"`
	BrandID        string           `json:"brandId"`
	Amount         decimal.Decimal  `json:"discountAmount"`
	Percentage     *decimal.Decimal `json:"percentage,omitempty"`
	RemovesMOQ     bool             `json:"removesMOQ,omitempty"`
	Definition     Definition       `json:"definition"`
	AppliedAt      time.Time        `json:"appliedAt"`
}

// Line is the per-item detail a code is evaluated against.
type Line struct {
	ProductID string
	BrandID   string
	Total     decimal.Decimal
}

// Customer identifies the shopper for new-customer and per-customer checks.
type Customer struct {
	ID        string
	CreatedAt time.Time
}

// Context is the cart state a code is validated against.
type Context struct {
	Lines []Line
	// TargetBrandID pins the code to one brand, as when applied from a brand page.
	TargetBrandID string
	Customer      Customer
	B2B           bool
}

// Brands returns the distinct brand ids of the context, sorted.
func (c Context) Brands() []string {
	seen := make(map[string]struct{}, len(c.Lines))
	out := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		if _, ok := seen[l.BrandID]; ok || l.BrandID == "" {
			continue
		}
		seen[l.BrandID] = struct{}{}
		out = append(out, l.BrandID)
	}
	sort.Strings(out)
	return out
}

// BrandSubtotal sums the lines of one brand.
func (c Context) BrandSubtotal(brandID string) decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		if l.BrandID == brandID {
			total = total.Add(l.Total)
		}
	}
	return total
}

// NormalizeCode canonicalises user input; codes are stored upper-case.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CheckLifecycle reports whether the definition is usable at now.
func (d Definition) CheckLifecycle(now time.Time) error {
	if !d.Active {
		return reject(ReasonInvalidCode, "Discount code is not active", ErrInvalidCode)
	}
	if d.ValidFrom != nil && now.Before(*d.ValidFrom) {
		return reject(ReasonInvalidCode, "Discount code is not yet valid", ErrInvalidCode)
	}
	if d.ValidUntil != nil && now.After(*d.ValidUntil) {
		return reject(ReasonInvalidCode, "Discount code has expired", ErrInvalidCode)
	}
	return nil
}

// BrandScoped reports whether the definition lists specific brands.
func (d Definition) BrandScoped() bool {
	return len(d.Conditions.SpecificBrands) > 0
}

// AllowsBrand reports whether brandID may receive the code.
func (d Definition) AllowsBrand(brandID string) bool {
	if !d.BrandScoped() {
		return true
	}
	return slices.Contains(d.Conditions.SpecificBrands, brandID)
}

func (d Definition) allowsProduct(productID string) bool {
	if len(d.Conditions.SpecificProducts) == 0 {
		return true
	}
	return slices.Contains(d.Conditions.SpecificProducts, productID)
}

// TargetBrand picks the single brand a code is recorded against: the pinned
// brand when one is given, otherwise the lowest brand id in the cart that the
// code allows. It returns "" when no brand qualifies.
func TargetBrand(d Definition, c Context) string {
	brands := c.Brands()
	if c.TargetBrandID != "" {
		if slices.Contains(brands, c.TargetBrandID) && d.AllowsBrand(c.TargetBrandID) {
			return c.TargetBrandID
		}
		return ""
	}
	for _, id := range brands {
		if d.AllowsBrand(id) {
			return id
		}
	}
	return ""
}

// EligibleSubtotal is the part of a brand's lines the definition applies to.
func EligibleSubtotal(lines []Line, d Definition, brandID string) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.BrandID != brandID || !l.Total.IsPositive() {
			continue
		}
		if d.allowsProduct(l.ProductID) {
			total = total.Add(l.Total)
		}
	}
	return total
}

// Amount computes the discount a definition yields on base. Percentage codes are
// capped by MaxOrderValue when set; fixed codes never exceed base.
func Amount(d Definition, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() || d.DiscountValue.IsNegative() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch d.DiscountType {
	case TypePercentage:
		capped := base
		if limit := d.Conditions.MaxOrderValue; limit != nil && limit.IsPositive() && capped.GreaterThan(*limit) {
			capped = *limit
		}
		amount = pricing.Percent(capped, d.DiscountValue)
	case TypeFixed:
		amount = d.DiscountValue
	default:
		return decimal.Zero
	}
	if amount.GreaterThan(base) {
		amount = base
	}
	return pricing.ClampZero(pricing.RoundMoney(amount))
}

// AppliesTo reports whether an applied code counts towards brandID. Codes recorded
// against a brand apply to that brand only; a record without a brand applies to
// every brand its definition allows.
func (a Applied) AppliesTo(brandID string) bool {
	if a.BrandID != "" {
		return a.BrandID == brandID
	}
	return a.Definition.AllowsBrand(brandID)
}

// Recompute returns the amount of a against the current lines of brandID.
func (a Applied) Recompute(lines []Line, brandID string) decimal.Decimal {
	return Amount(a.Definition, EligibleSubtotal(lines, a.Definition, brandID))
}

// IsApplied reports whether definition id is already applied to brandID.
func IsApplied(applied []Applied, id, brandID string) bool {
	for _, a := range applied {
		if a.DiscountCodeID == id && a.BrandID == brandID {
			return true
		}
	}
	return false
}

// ReasonOf extracts the rejection reason of err, if any.
func ReasonOf(err error) Reason {
	return Reason(common.CodeOf(err))
}

func reject(reason Reason, message string, sentinel error) error {
	return common.NewAppError(string(reason), message, sentinel)
}
