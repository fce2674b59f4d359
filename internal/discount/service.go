package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/brandcart/internal/obs"
	"github.com/noah-isme/brandcart/internal/pricing"
)

// DefaultNewCustomerWindow is how long after sign-up an account counts as new.
const DefaultNewCustomerWindow = 24 * time.Hour

// Store captures the discount collaborator operations required by the service.
type Store interface {
	FindByCode(ctx context.Context, code string) (Definition, bool, error)
	CountCustomerUsage(ctx context.Context, definitionID, customerID string) (int, error)
	RecordUsage(ctx context.Context, usage Usage) error
}

// Usage is written once per created order that carried a code.
type Usage struct {
	DiscountCodeID string          `json:"discountCodeId"`
	Code           string          `json:"discountCode"`
	CustomerID     string          `json:"customerId,omitempty"`
	CustomerEmail  string          `json:"customerEmail,omitempty"`
	OrderID        string          `json:"orderId"`
	BrandID        string          `json:"brandId"`
	OrderValue     decimal.Decimal `json:"orderValue"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	UsedAt         time.Time       `json:"usedAt"`
}

// Service validates codes against cart state and settles their usage.
type Service struct {
	Store             Store
	Now               func() time.Time
	NewCustomerWindow time.Duration
	Currency          string
	Validator         *validator.Validate
	Logger            zerolog.Logger
}

// Validate runs the ordered eligibility checks for code and, on success, returns
// the Applied record for the selected brand. Rejections are *common.AppError
// values wrapping one of the package sentinels; the cart is never touched here.
func (s *Service) Validate(ctx context.Context, code string, vc Context, applied []Applied) (Applied, error) {
	if s == nil || s.Store == nil {
		return Applied{}, errors.New("discount service not configured")
	}
	result, err := s.validate(ctx, code, vc, applied)
	outcome := "accepted"
	if err != nil {
		outcome = string(ReasonOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	obs.ObserveDiscountValidation(outcome)
	return result, err
}

func (s *Service) validate(ctx context.Context, code string, vc Context, applied []Applied) (Applied, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Applied{}, reject(ReasonInvalidCode, "Enter a discount code", ErrInvalidCode)
	}
	def, ok, err := s.Store.FindByCode(ctx, normalized)
	if err != nil {
		return Applied{}, fmt.Errorf("find discount code: %w", err)
	}
	if !ok {
		return Applied{}, reject(ReasonInvalidCode, "Invalid discount code", ErrInvalidCode)
	}
	if err := s.checkDefinition(def); err != nil {
		s.Logger.Warn().Err(err).Str("discount_code_id", def.ID).Msg("discount definition rejected")
		return Applied{}, reject(ReasonInvalidCode, "Invalid discount code", ErrInvalidCode)
	}
	now := s.now()
	if err := def.CheckLifecycle(now); err != nil {
		return Applied{}, err
	}

	brandID := TargetBrand(def, vc)
	if brandID != "" && IsApplied(applied, def.ID, brandID) {
		return Applied{}, reject(ReasonAlreadyApplied, "This code has already been applied to this brand", ErrAlreadyApplied)
	}
	if brandID == "" {
		msg := "This code is not valid for these brands"
		if len(vc.Brands()) == 0 {
			msg = "Add items to your cart before applying a discount code"
		}
		return Applied{}, reject(ReasonBrandNotEligible, msg, ErrBrandNotEligible)
	}
	subtotal := vc.BrandSubtotal(brandID)
	if minimum := def.Conditions.MinOrderValue; minimum != nil && subtotal.LessThan(*minimum) {
		msg := fmt.Sprintf("Minimum order value of %s required", pricing.Format(*minimum, s.Currency))
		return Applied{}, reject(ReasonBelowMinimum, msg, ErrBelowMinimum)
	}
	if def.Conditions.NewCustomersOnly && !s.isNewCustomer(vc.Customer, now) {
		return Applied{}, reject(ReasonNotNewCustomer, "This code is only valid for new customers", ErrNotNewCustomer)
	}

	eligible := EligibleSubtotal(vc.Lines, def, brandID)
	if len(def.Conditions.SpecificProducts) > 0 && !eligible.IsPositive() {
		return Applied{}, reject(ReasonProductNotEligible, "This code is not valid for these products", ErrProductNotEligible)
	}
	if def.MaxUses > 0 && def.CurrentUses >= def.MaxUses {
		return Applied{}, reject(ReasonUsageLimitReached, "Discount code usage limit reached", ErrUsageLimitReached)
	}
	if def.MaxUsesPerCustomer > 0 && strings.TrimSpace(vc.Customer.ID) != "" {
		used, err := s.Store.CountCustomerUsage(ctx, def.ID, vc.Customer.ID)
		if err != nil {
			return Applied{}, fmt.Errorf("count discount usage: %w", err)
		}
		if used >= def.MaxUsesPerCustomer {
			return Applied{}, reject(ReasonUsageLimitReached, "You have already used this discount code", ErrUsageLimitReached)
		}
	}
	if def.RemovesMOQ && def.Kind == KindNoMOQ && !vc.B2B {
		return Applied{}, reject(ReasonB2BOnly, "No-MOQ codes are only valid for B2B orders", ErrB2BOnly)
	}

	out := Applied{
		DiscountCodeID: def.ID,
		Code:           def.Code,
		BrandID:        brandID,
		Amount:         Amount(def, eligible),
		RemovesMOQ:     def.RemovesMOQ,
		Definition:     def,
		AppliedAt:      now,
	}
	if def.DiscountType == TypePercentage {
		pct := def.DiscountValue
		out.Percentage = &pct
	}
	return out, nil
}

// RecordUsage settles a code against a created order. Zero-value usages are ignored.
func (s *Service) RecordUsage(ctx context.Context, usage Usage) error {
	if s == nil || s.Store == nil {
		return errors.New("discount service not configured")
	}
	if strings.TrimSpace(usage.DiscountCodeID) == "" || strings.TrimSpace(usage.OrderID) == "" {
		return nil
	}
	if usage.DiscountAmount.IsNegative() {
		usage.DiscountAmount = decimal.Zero
	}
	if usage.UsedAt.IsZero() {
		usage.UsedAt = s.now()
	}
	usage.Code = NormalizeCode(usage.Code)
	return s.Store.RecordUsage(ctx, usage)
}

func (s *Service) checkDefinition(def Definition) error {
	v := s.Validator
	if v == nil {
		v = validator.New()
	}
	if err := v.Struct(def); err != nil {
		return err
	}
	if def.DiscountValue.IsNegative() {
		return errors.New("discount value must not be negative")
	}
	if def.DiscountType == TypePercentage && def.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("percentage discount above 100")
	}
	return nil
}

func (s *Service) isNewCustomer(c Customer, now time.Time) bool {
	if c.CreatedAt.IsZero() {
		return false
	}
	window := s.NewCustomerWindow
	if window <= 0 {
		window = DefaultNewCustomerWindow
	}
	return now.Sub(c.CreatedAt) < window
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
