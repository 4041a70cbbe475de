package retrieve

import (
	"context"
	"time"

	"github.com/ppiankov/factloop/internal/cache"
	"github.com/ppiankov/factloop/internal/model"
)

// Cached memoizes a retriever's successful answers per claim
type Cached struct {
	next  Retriever
	cache cache.Cache
	ttl   time.Duration
}

// NewCached wraps next with c
func NewCached(next Retriever, c cache.Cache, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: c, ttl: ttl}
}

// Name implements Retriever
func (c *Cached) Name() string { return c.next.Name() }

// Retrieve implements Retriever
func (c *Cached) Retrieve(ctx context.Context, claim model.Claim) ([]model.EvidenceRecord, error) {
	key := cache.Key("evidence", c.next.Name(), claim.Text)
	if records, ok := cache.GetJSON[[]model.EvidenceRecord](c.cache, key); ok {
		return records, nil
	}

	records, err := c.next.Retrieve(ctx, claim)
	if err != nil {
		return nil, err
	}
	_ = cache.SetJSON(c.cache, key, records, c.ttl)
	return records, nil
}
