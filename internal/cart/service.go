package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/brandcart/internal/catalog"
	"github.com/noah-isme/brandcart/internal/common"
	"github.com/noah-isme/brandcart/internal/discount"
	"github.com/noah-isme/brandcart/internal/obs"
	"github.com/noah-isme/brandcart/internal/ratelimit"
)

// ErrNotFound indicates the requested cart could not be located.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// ErrInvalidQuantity is returned when adding zero or fewer cartons.
var ErrInvalidQuantity = fmt.Errorf("quantity must be positive: %w", ErrInvalidInput)

// ErrItemNotFound indicates the line item is not in the cart.
var ErrItemNotFound = errors.New("cart item not found")

// ErrTooManyAttempts is returned when a session tries too many discount codes.
var ErrTooManyAttempts = errors.New("too many discount code attempts")

// CodeValidator validates a discount code against cart state.
type CodeValidator interface {
	Validate(ctx context.Context, code string, vc discount.Context, applied []discount.Applied) (discount.Applied, error)
}

// AttemptLimiter throttles discount code attempts per key.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// AddItemInput is the validated shape of an add-to-cart request.
type AddItemInput struct {
	ProductID string `validate:"required"`
	BrandID   string `validate:"required"`
	Quantity  int    `validate:"gt=0"`
}

// Service encapsulates cart domain operations. Every operation loads the
// session, mutates it and saves it back, returning the new source of truth.
type Service struct {
	Repo      Repository
	Codes     CodeValidator
	Attempts  AttemptLimiter
	TTL       time.Duration
	Now       func() time.Time
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Get loads a cart, creating an empty one for unknown ids.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	if s == nil || s.Repo == nil {
		return nil, errors.New("cart service not configured")
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("cart id required: %w", ErrInvalidInput)
	}
	sess, err := s.Repo.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return NewSession(id, s.now()), nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// AddItem adds quantity cartons of product.
func (s *Service) AddItem(ctx context.Context, id string, product catalog.Product, quantity int) (*Session, error) {
	if err := s.validate(AddItemInput{ProductID: product.ID, BrandID: product.BrandID, Quantity: quantity}); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		_, err := sess.Add(product, quantity, now)
		return err
	})
}

// UpdateQuantity sets an item's quantity; zero or below removes it.
func (s *Service) UpdateQuantity(ctx context.Context, id string, itemID uuid.UUID, quantity int) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		return sess.Update(itemID, quantity, now)
	})
}

// RemoveItem drops an item from the cart.
func (s *Service) RemoveItem(ctx context.Context, id string, itemID uuid.UUID) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		return sess.Remove(itemID, now)
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, id string) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		sess.Clear(now)
		return nil
	})
}

// ClearBrands removes the items and codes of the given brands.
func (s *Service) ClearBrands(ctx context.Context, id string, brandIDs ...string) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		sess.ClearBrands(now, brandIDs...)
		return nil
	})
}

// ApplyCode validates code against the cart and records it. On rejection the
// cart is left unchanged and the error carries the rejection reason.
func (s *Service) ApplyCode(ctx context.Context, id, code string, customer discount.Customer, targetBrandID string) (*Session, discount.Applied, error) {
	if s == nil || s.Codes == nil {
		return nil, discount.Applied{}, errors.New("cart service not configured")
	}
	if err := s.allowAttempt(ctx, id); err != nil {
		return nil, discount.Applied{}, err
	}
	var applied discount.Applied
	sess, err := s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		if customer.ID == "" {
			customer.ID = sess.CustomerID
		}
		a, err := s.Codes.Validate(ctx, code, sess.DiscountContext(customer, targetBrandID), sess.Applied)
		if err != nil {
			return err
		}
		applied = a
		return sess.ApplyDiscount(a, now)
	})
	if err != nil {
		return nil, discount.Applied{}, err
	}
	return sess, applied, nil
}

func (s *Service) allowAttempt(ctx context.Context, id string) error {
	if s.Attempts == nil {
		return nil
	}
	d, err := s.Attempts.Allow(ctx, strings.TrimSpace(id))
	if err != nil {
		// limiter outages do not block shoppers
		s.Logger.Warn().Err(err).Str("session_id", id).Msg("discount attempt limiter unavailable")
		return nil
	}
	if !d.Allowed {
		obs.IncCodeAttemptsLimited()
		return common.NewAppError("TOO_MANY_ATTEMPTS",
			fmt.Sprintf("Too many discount codes tried. Try again after %s.", d.Reset.UTC().Format(time.Kitchen)),
			ErrTooManyAttempts)
	}
	return nil
}

// RemoveCode drops a code from one brand, or from all brands when brandID is empty.
func (s *Service) RemoveCode(ctx context.Context, id, discountCodeID, brandID string) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		sess.RemoveDiscount(discountCodeID, brandID, now)
		return nil
	})
}

// Merge folds the guest cart sourceID into the account cart targetID and
// deletes the guest cart.
func (s *Service) Merge(ctx context.Context, targetID, sourceID string) (*Session, error) {
	if s == nil || s.Repo == nil {
		return nil, errors.New("cart service not configured")
	}
	if targetID == sourceID {
		return s.Get(ctx, targetID)
	}
	source, err := s.Repo.Load(ctx, sourceID)
	if errors.Is(err, ErrNotFound) {
		return s.Get(ctx, targetID)
	}
	if err != nil {
		return nil, err
	}
	sess, err := s.mutate(ctx, targetID, func(sess *Session, now time.Time) error {
		sess.Merge(source, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.Repo.Delete(ctx, sourceID); err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", sourceID).Msg("delete merged cart")
	}
	return sess, nil
}

// Attach binds a customer to the cart.
func (s *Service) Attach(ctx context.Context, id, customerID string, b2b bool) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session, now time.Time) error {
		sess.CustomerID = customerID
		sess.B2B = b2b
		sess.UpdatedAt = now
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, id string, fn func(*Session, time.Time) error) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess, s.now()); err != nil {
		return nil, err
	}
	if err := s.Repo.Save(ctx, sess, s.ttl()); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) validate(in AddItemInput) error {
	if s == nil {
		return errors.New("cart service not configured")
	}
	v := s.Validator
	if v == nil {
		v = validator.New()
	}
	if err := v.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
