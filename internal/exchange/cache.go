package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"gitlab.com/billit/billit-api/internal/logger"
)

// RateSource looks up a single reference rate.
type RateSource interface {
	Rate(ctx context.Context, from, to string, day time.Time) (decimal.Decimal, time.Time, error)
}

type cachedRate struct {
	rate      decimal.Decimal
	rateDate  time.Time
	expiresAt time.Time
}

// Cache is a Converter that memoizes rates per pair and day. Historical
// rates never change, so only "latest" entries expire after the TTL.
// Concurrent misses for one key share a single upstream lookup.
type Cache struct {
	source RateSource
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	rates map[string]cachedRate
}

// NewCache wraps source. A non-positive ttl defaults to 12 hours.
func NewCache(source RateSource, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Cache{source: source, ttl: ttl, now: time.Now, rates: make(map[string]cachedRate)}
}

// Convert implements Converter.
func (c *Cache) Convert(ctx context.Context, amount decimal.Decimal, from, to string, day time.Time) (ConversionResult, error) {
	from, to = normalizeCurrency(from), normalizeCurrency(to)
	if from == "" || to == "" {
		return ConversionResult{}, errMissingCurrency
	}
	if from == to {
		return ConversionResult{Amount: amount, Rate: decimal.NewFromInt(1), RateDate: day}, nil
	}

	now := c.now()
	key := from + "->" + to + "@" + rateDay(day, now)

	c.mu.RLock()
	entry, ok := c.rates[key]
	c.mu.RUnlock()
	if ok && (entry.expiresAt.IsZero() || now.Before(entry.expiresAt)) {
		return apply(amount, entry.rate, entry.rateDate), nil
	}

	// The lookup is shared, so it must not die with the first caller's context.
	ch := c.group.DoChan(key, func() (any, error) {
		rate, rateDate, err := c.source.Rate(context.WithoutCancel(ctx), from, to, day)
		if err != nil {
			logger.Log.Warn().Err(err).Str("pair", key).Msg("Failed to refresh exchange rate")
			return nil, err
		}
		if !rate.IsPositive() {
			return nil, errNonPositiveRate
		}
		entry := cachedRate{rate: rate, rateDate: rateDate}
		if rateDay(day, now) == "latest" {
			entry.expiresAt = c.now().Add(c.ttl)
		}
		c.mu.Lock()
		c.rates[key] = entry
		c.mu.Unlock()
		return entry, nil
	})

	select {
	case <-ctx.Done():
		return ConversionResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ConversionResult{}, res.Err
		}
		entry := res.Val.(cachedRate)
		return apply(amount, entry.rate, entry.rateDate), nil
	}
}

// Len reports the number of cached rates.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rates)
}
