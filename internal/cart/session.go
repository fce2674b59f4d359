package cart

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/brandcart/internal/catalog"
	"github.com/noah-isme/brandcart/internal/common"
	"github.com/noah-isme/brandcart/internal/discount"
	"github.com/noah-isme/brandcart/internal/pricing"
)

// LineItem is one product of the cart. Quantity is counted in cartons.
type LineItem struct {
	ID       uuid.UUID       `json:"id"`
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
	AddedAt  time.Time       `json:"addedAt"`
}

// BrandID is the brand the item was added under.
func (l LineItem) BrandID() string { return l.Product.BrandID }

// Pricing resolves the item's unit price, carton size and MOQ.
func (l LineItem) Pricing() pricing.Resolved { return pricing.Resolve(l.Product) }

// Total is the carton price times quantity.
func (l LineItem) Total() decimal.Decimal { return l.Pricing().LineTotal(l.Quantity) }

// Session is the cart of one shopper: the flat item list and the discount
// codes applied to it. It is the only mutable state of the engine and is
// passed explicitly to every computation.
type Session struct {
	ID         string             `json:"id"`
	CustomerID string             `json:"customerId,omitempty"`
	B2B        bool               `json:"b2b,omitempty"`
	Items      []LineItem         `json:"items"`
	Applied    []discount.Applied `json:"appliedDiscounts"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// NewSession returns an empty cart.
func NewSession(id string, now time.Time) *Session {
	return &Session{ID: id, Items: []LineItem{}, Applied: []discount.Applied{}, UpdatedAt: now}
}

// Add puts quantity cartons of product into the cart. A product already in
// the cart has its quantity increased instead.
func (s *Session) Add(product catalog.Product, quantity int, now time.Time) (LineItem, error) {
	if quantity <= 0 {
		return LineItem{}, ErrInvalidQuantity
	}
	for i := range s.Items {
		if s.Items[i].Product.ID == product.ID {
			s.Items[i].Quantity += quantity
			s.UpdatedAt = now
			return s.Items[i], nil
		}
	}
	item := LineItem{ID: uuid.New(), Product: product, Quantity: quantity, AddedAt: now}
	s.Items = append(s.Items, item)
	s.UpdatedAt = now
	return item, nil
}

// Update sets an item's quantity. A quantity of zero or below removes the item.
func (s *Session) Update(itemID uuid.UUID, quantity int, now time.Time) error {
	idx := s.index(itemID)
	if idx < 0 {
		return ErrItemNotFound
	}
	if quantity <= 0 {
		s.removeAt(idx)
	} else {
		s.Items[idx].Quantity = quantity
	}
	s.UpdatedAt = now
	return nil
}

// Remove drops an item. Codes of a brand left without items go with it.
func (s *Session) Remove(itemID uuid.UUID, now time.Time) error {
	idx := s.index(itemID)
	if idx < 0 {
		return ErrItemNotFound
	}
	s.removeAt(idx)
	s.UpdatedAt = now
	return nil
}

// Clear empties the cart and its applied codes.
func (s *Session) Clear(now time.Time) {
	s.Items = []LineItem{}
	s.Applied = []discount.Applied{}
	s.UpdatedAt = now
}

// ClearBrands removes every item and code of the given brands and reports how
// many items were removed.
func (s *Session) ClearBrands(now time.Time, brandIDs ...string) int {
	if len(brandIDs) == 0 {
		return 0
	}
	kept := s.Items[:0]
	removed := 0
	for _, it := range s.Items {
		if slices.Contains(brandIDs, it.BrandID()) {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	s.Items = kept
	codes := s.Applied[:0]
	for _, a := range s.Applied {
		if a.BrandID != "" && slices.Contains(brandIDs, a.BrandID) {
			continue
		}
		codes = append(codes, a)
	}
	s.Applied = codes
	s.prune()
	s.UpdatedAt = now
	return removed
}

// ApplyDiscount records a validated code. A code can be applied to a brand once.
func (s *Session) ApplyDiscount(a discount.Applied, now time.Time) error {
	if discount.IsApplied(s.Applied, a.DiscountCodeID, a.BrandID) {
		return common.NewAppError(string(discount.ReasonAlreadyApplied),
			"This code has already been applied to this brand", discount.ErrAlreadyApplied)
	}
	s.Applied = append(s.Applied, a)
	s.UpdatedAt = now
	return nil
}

// RemoveDiscount drops the code id from brandID, or from every brand when
// brandID is empty. It reports whether anything was removed.
func (s *Session) RemoveDiscount(discountCodeID, brandID string, now time.Time) bool {
	kept := s.Applied[:0]
	removed := false
	for _, a := range s.Applied {
		if a.DiscountCodeID == discountCodeID && (brandID == "" || a.BrandID == brandID) {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	s.Applied = kept
	if removed {
		s.UpdatedAt = now
	}
	return removed
}

// Merge folds other into s: items are matched by product id keeping the larger
// quantity, and codes not yet applied are carried over.
func (s *Session) Merge(other *Session, now time.Time) {
	if other == nil {
		return
	}
	for _, it := range other.Items {
		matched := false
		for i := range s.Items {
			if s.Items[i].Product.ID == it.Product.ID {
				s.Items[i].Quantity = max(s.Items[i].Quantity, it.Quantity)
				matched = true
				break
			}
		}
		if !matched && it.Quantity > 0 {
			s.Items = append(s.Items, it)
		}
	}
	for _, a := range other.Applied {
		if !discount.IsApplied(s.Applied, a.DiscountCodeID, a.BrandID) {
			s.Applied = append(s.Applied, a)
		}
	}
	if !s.B2B {
		s.B2B = other.B2B
	}
	s.prune()
	s.UpdatedAt = now
}

// ItemCount is the total number of cartons in the cart.
func (s *Session) ItemCount() int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

// BrandIDs lists the brands of the cart in order of first appearance.
func (s *Session) BrandIDs() []string {
	out := make([]string, 0, len(s.Items))
	for _, it := range s.Items {
		if !slices.Contains(out, it.BrandID()) {
			out = append(out, it.BrandID())
		}
	}
	return out
}

// HasBrand reports whether any item belongs to brandID.
func (s *Session) HasBrand(brandID string) bool {
	for _, it := range s.Items {
		if it.BrandID() == brandID {
			return true
		}
	}
	return false
}

// DiscountContext describes the cart for code validation.
func (s *Session) DiscountContext(customer discount.Customer, targetBrandID string) discount.Context {
	lines := make([]discount.Line, 0, len(s.Items))
	for _, it := range s.Items {
		lines = append(lines, discount.Line{ProductID: it.Product.ID, BrandID: it.BrandID(), Total: it.Total()})
	}
	return discount.Context{Lines: lines, TargetBrandID: targetBrandID, Customer: customer, B2B: s.B2B}
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Items = slices.Clone(s.Items)
	out.Applied = slices.Clone(s.Applied)
	if out.Items == nil {
		out.Items = []LineItem{}
	}
	if out.Applied == nil {
		out.Applied = []discount.Applied{}
	}
	return &out
}

func (s *Session) index(itemID uuid.UUID) int {
	for i, it := range s.Items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

func (s *Session) removeAt(idx int) {
	s.Items = slices.Delete(s.Items, idx, idx+1)
	s.prune()
}

// prune drops codes of brands that no longer have items. Codes recorded without
// a brand survive while the cart has any item their definition allows.
func (s *Session) prune() {
	kept := s.Applied[:0]
	for _, a := range s.Applied {
		if a.BrandID != "" {
			if s.HasBrand(a.BrandID) {
				kept = append(kept, a)
			}
			continue
		}
		for _, b := range s.BrandIDs() {
			if a.Definition.AllowsBrand(b) {
				kept = append(kept, a)
				break
			}
		}
	}
	s.Applied = kept
}
