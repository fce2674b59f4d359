package discount

import (
	"context"
	"sync"
)

// MemoryStore keeps definitions and usage in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	byCode map[string]Definition
	usages []Usage
}

// NewMemoryStore returns a store seeded with definitions.
func NewMemoryStore(defs ...Definition) *MemoryStore {
	s := &MemoryStore{byCode: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		s.Put(d)
	}
	return s
}

// Put inserts or replaces a definition, keyed by its normalised code.
func (s *MemoryStore) Put(d Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.Code = NormalizeCode(d.Code)
	s.byCode[d.Code] = d
}

// FindByCode implements Store.
func (s *MemoryStore) FindByCode(_ context.Context, code string) (Definition, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byCode[NormalizeCode(code)]
	return d, ok, nil
}

// CountCustomerUsage implements Store.
func (s *MemoryStore) CountCustomerUsage(_ context.Context, definitionID, customerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.usages {
		if u.DiscountCodeID == definitionID && u.CustomerID == customerID {
			n++
		}
	}
	return n, nil
}

// RecordUsage implements Store. Recording the same code for the same order twice is a no-op.
func (s *MemoryStore) RecordUsage(_ context.Context, usage Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.usages {
		if u.DiscountCodeID == usage.DiscountCodeID && u.OrderID == usage.OrderID {
			return nil
		}
	}
	s.usages = append(s.usages, usage)
	for code, d := range s.byCode {
		if d.ID == usage.DiscountCodeID {
			d.CurrentUses++
			s.byCode[code] = d
		}
	}
	return nil
}

// Usages returns a copy of the recorded usages.
func (s *MemoryStore) Usages() []Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Usage(nil), s.usages...)
}
