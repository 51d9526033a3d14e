package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/simutrade/pkg/common"
)

type cacheKey struct {
	symbol string
	tf     common.Timeframe
	from   int64
	to     int64
}

type cacheEntry struct {
	ready chan struct{}
	bars  []common.Bar
	err   error
}

// CachedFeed loads each distinct range once and serves it from memory to
// every session that asks for it. Concurrent requests for the same range
// wait for the first load.
type CachedFeed struct {
	logger   *zap.Logger
	feed     Feed
	capacity int

	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
	order   []cacheKey
}

func NewCachedFeed(logger *zap.Logger, feed Feed, capacity int) *CachedFeed {
	if capacity <= 0 {
		capacity = 16
	}
	return &CachedFeed{
		logger:   logger,
		feed:     feed,
		capacity: capacity,
		entries:  make(map[cacheKey]*cacheEntry),
	}
}

func (c *CachedFeed) Open(ctx context.Context, symbol string, tf common.Timeframe, from, to time.Time) (Series, error) {
	key := cacheKey{symbol: symbol, tf: tf, from: from.UnixNano(), to: to.UnixNano()}

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{ready: make(chan struct{})}
		c.entries[key] = entry
		c.order = append(c.order, key)
		c.evictLocked()
	}
	c.mu.Unlock()

	if !ok {
		entry.bars, entry.err = c.load(ctx, symbol, tf, from, to)
		close(entry.ready)
		if entry.err != nil {
			c.forget(key, entry)
		}
	}

	select {
	case <-entry.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if entry.err != nil {
		return nil, entry.err
	}
	return NewSliceSeries(entry.bars), nil
}

func (c *CachedFeed) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *CachedFeed) load(ctx context.Context, symbol string, tf common.Timeframe, from, to time.Time) ([]common.Bar, error) {
	series, err := c.feed.Open(ctx, symbol, tf, from, to)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := series.Close(); err != nil {
			c.logger.Warn("unable to close series", zap.String("symbol", symbol), zap.Error(err))
		}
	}()

	bars, err := Collect(ctx, series, from, to)
	if err != nil {
		return nil, fmt.Errorf("unable to load %s %s: %w", symbol, tf, err)
	}
	c.logger.Debug("range cached",
		zap.String("symbol", symbol),
		zap.Stringer("timeframe", tf),
		zap.Int("bars", len(bars)))
	return bars, nil
}

func (c *CachedFeed) forget(key cacheKey, entry *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[key] == entry {
		delete(c.entries, key)
		for i, k := range c.order {
			if k == key {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
}

func (c *CachedFeed) evictLocked() {
	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}
