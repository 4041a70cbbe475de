package cache

import (
	"errors"
	"time"
)

// Tiered stacks caches from fastest to slowest. A hit in a lower tier is
// copied into every tier above it.
type Tiered struct {
	tiers []Cache
}

// NewTiered stacks tiers in lookup order
func NewTiered(tiers ...Cache) *Tiered {
	return &Tiered{tiers: tiers}
}

// NewLayeredCache puts a memory tier in front of a disk tier
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *Tiered {
	return NewTiered(
		NewMemoryCache(memoryTTL, 10*time.Minute),
		NewDiskCache(diskDir, diskTTL),
	)
}

func (t *Tiered) Get(key string) ([]byte, bool) {
	for i, tier := range t.tiers {
		val, ok := tier.Get(key)
		if !ok {
			continue
		}
		for _, upper := range t.tiers[:i] {
			_ = upper.Set(key, val, 0)
		}
		return val, true
	}
	return nil, false
}

// Set writes every tier and stops at the first failure
func (t *Tiered) Set(key string, value []byte, ttl time.Duration) error {
	for _, tier := range t.tiers {
		if err := tier.Set(key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tiered) Delete(key string) error {
	var errs []error
	for _, tier := range t.tiers {
		errs = append(errs, tier.Delete(key))
	}
	return errors.Join(errs...)
}

func (t *Tiered) Clear() error {
	var errs []error
	for _, tier := range t.tiers {
		errs = append(errs, tier.Clear())
	}
	return errors.Join(errs...)
}
