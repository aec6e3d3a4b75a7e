// Package oracle defines the price-feed contract the engine consumes.
package oracle

import (
	"fmt"
	"sync"

	"perpcore/internal/errs"
)

// Price is one oracle observation, PricePrecision scale.
type Price struct {
	Price       int64
	Confidence  int64
	PublishedAt int64 // unix seconds
}

// PriceOracle resolves a feed key to a recent price. Implementations
// must fail with errs.ErrOracleNotFound for unknown feeds and
// errs.ErrPriceStale for feeds older than maxAgeSeconds, so callers can
// tell the two apart.
type PriceOracle interface {
	PriceOf(feedKey string, now, maxAgeSeconds int64) (Price, error)
}

// FixtureOracle is an in-memory oracle for tests and the local runner.
type FixtureOracle struct {
	mu     sync.RWMutex
	prices map[string]Price
}

func NewFixtureOracle() *FixtureOracle {
	return &FixtureOracle{prices: make(map[string]Price)}
}

// SetPrice publishes a price observation.
func (o *FixtureOracle) SetPrice(feedKey string, price, publishedAt int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[feedKey] = Price{Price: price, PublishedAt: publishedAt}
}

func (o *FixtureOracle) PriceOf(feedKey string, now, maxAgeSeconds int64) (Price, error) {
	o.mu.RLock()
	p, ok := o.prices[feedKey]
	o.mu.RUnlock()
	if !ok {
		return Price{}, fmt.Errorf("feed %s: %w", feedKey, errs.ErrOracleNotFound)
	}
	if maxAgeSeconds > 0 && now-p.PublishedAt > maxAgeSeconds {
		return Price{}, fmt.Errorf("feed %s published at %d: %w", feedKey, p.PublishedAt, errs.ErrPriceStale)
	}
	if p.Price <= 0 {
		return Price{}, fmt.Errorf("feed %s: %w", feedKey, errs.ErrPriceStale)
	}
	return p, nil
}
