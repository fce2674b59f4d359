package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrDirectoryNotConfigured is returned when a directory has no backing source.
var ErrDirectoryNotConfigured = errors.New("catalog: directory not configured")

// Directory resolves brand configuration. A brand that does not exist is reported
// with ok=false and a nil error.
type Directory interface {
	Brand(ctx context.Context, id string) (Brand, bool, error)
	Brands(ctx context.Context) ([]Brand, error)
}

// LoadBrands fetches the configuration of every id. Unknown brands are left out
// of the result so callers can treat them as unconstrained.
func LoadBrands(ctx context.Context, dir Directory, ids []string) (map[string]Brand, error) {
	if dir == nil {
		return nil, ErrDirectoryNotConfigured
	}
	out := make(map[string]Brand, len(ids))
	for _, id := range ids {
		if _, seen := out[id]; seen {
			continue
		}
		brand, ok, err := dir.Brand(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load brand %s: %w", id, err)
		}
		if ok {
			out[id] = brand
		}
	}
	return out, nil
}

// MemoryDirectory is an in-process Directory, used by tools and tests.
type MemoryDirectory struct {
	mu     sync.RWMutex
	order  []string
	brands map[string]Brand
}

// NewMemoryDirectory returns a directory seeded with brands.
func NewMemoryDirectory(brands ...Brand) *MemoryDirectory {
	d := &MemoryDirectory{brands: make(map[string]Brand, len(brands))}
	for _, b := range brands {
		d.Put(b)
	}
	return d
}

// Put inserts or replaces a brand.
func (d *MemoryDirectory) Put(b Brand) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := strings.TrimSpace(b.ID)
	if _, ok := d.brands[id]; !ok {
		d.order = append(d.order, id)
	}
	d.brands[id] = b
}

// Brand implements Directory.
func (d *MemoryDirectory) Brand(_ context.Context, id string) (Brand, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.brands[strings.TrimSpace(id)]
	return b, ok, nil
}

// Brands implements Directory.
func (d *MemoryDirectory) Brands(_ context.Context) ([]Brand, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Brand, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.brands[id])
	}
	return out, nil
}

// CachedDirectory fronts another Directory with a JSON cache. Misses are not
// cached so a brand that appears later is picked up on the next read.
type CachedDirectory struct {
	Source Directory
	Cache  *Cache
}

// Brand implements Directory.
func (d *CachedDirectory) Brand(ctx context.Context, id string) (Brand, bool, error) {
	if d == nil || d.Source == nil {
		return Brand{}, false, ErrDirectoryNotConfigured
	}
	if cached, hit, err := d.Cache.Brand(ctx, id); err == nil && hit {
		return cached, true, nil
	}
	brand, ok, err := d.Source.Brand(ctx, id)
	if err != nil || !ok {
		return brand, ok, err
	}
	_ = d.Cache.PutBrand(ctx, brand)
	return brand, true, nil
}

// Brands implements Directory.
func (d *CachedDirectory) Brands(ctx context.Context) ([]Brand, error) {
	if d == nil || d.Source == nil {
		return nil, ErrDirectoryNotConfigured
	}
	if cached, hit, err := d.Cache.Brands(ctx); err == nil && hit {
		return cached, nil
	}
	brands, err := d.Source.Brands(ctx)
	if err != nil {
		return nil, err
	}
	_ = d.Cache.PutBrands(ctx, brands)
	return brands, nil
}

// Invalidate drops the cached copy of a brand and the brand list.
func (d *CachedDirectory) Invalidate(ctx context.Context, id string) error {
	if d == nil {
		return nil
	}
	return d.Cache.Invalidate(ctx, id)
}
