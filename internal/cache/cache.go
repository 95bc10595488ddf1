package cache

import (
	"context"
	"sync"
	"time"

	"github.com/appmarket/orders-client/internal/domain"
	"github.com/appmarket/orders-client/internal/observability"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads a value from the backend and reports the tags the cached
// result depends on. Errors are never cached.
type FetchFunc func(ctx context.Context) (any, []domain.Tag, error)

type entry struct {
	value any
	tags  []domain.Tag
}

// Cache deduplicates reads and provides tag-scoped invalidation.
//
// Every stored value carries a tag set; Invalidate drops all entries carrying
// any given tag and notifies subscribed observers so they refetch. Concurrent
// GetOrFetch calls for one key share a single in-flight fetch.
type Cache struct {
	logger  *zap.Logger
	metrics observability.Metrics

	mu    sync.Mutex
	lru   *lru.Cache[string, entry]
	byTag map[string]map[string]struct{}
	// seq orders invalidations against in-flight fetches: a result whose
	// tag was invalidated after the fetch began must not be cached.
	seq      uint64
	tagSeq   map[string]uint64
	purgeSeq uint64

	group singleflight.Group

	subMu sync.Mutex
	subs  map[*Subscription]struct{}
}

func New(size int, logger *zap.Logger, metrics observability.Metrics) (*Cache, error) {
	if metrics == nil {
		metrics = observability.Noop{}
	}
	c := &Cache{
		logger:  logger,
		metrics: metrics,
		byTag:   make(map[string]map[string]struct{}),
		tagSeq:  make(map[string]uint64),
		subs:    make(map[*Subscription]struct{}),
	}
	// The evict callback runs inside lru operations, which we only invoke
	// while holding c.mu, so it must not lock.
	l, err := lru.NewWithEvict[string, entry](size, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// onEvict keeps the tag index consistent for every removal path: explicit
// invalidation, purge, and capacity eviction. Caller holds c.mu.
func (c *Cache) onEvict(key string, e entry) {
	for _, t := range e.tags {
		ts := t.String()
		if keys, ok := c.byTag[ts]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.byTag, ts)
			}
		}
	}
}

// GetOrFetch returns the cached value for key, or runs fetch and caches the
// result stamped with the returned tags. Concurrent callers for the same key
// while a fetch is outstanding share that single fetch.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (any, error) {
	c.mu.Lock()
	if e, ok := c.lru.Get(key); ok {
		c.mu.Unlock()
		c.metrics.IncCacheHit()
		return e.value, nil
	}
	start := c.seq
	c.mu.Unlock()

	c.metrics.IncCacheMiss()

	ch := c.group.DoChan(key, func() (any, error) {
		began := time.Now()
		v, tags, err := fetch(ctx)
		durMs := float64(time.Since(began).Microseconds()) / 1000.0
		if err != nil {
			c.metrics.ObserveFetch(key, durMs, false)
			c.logger.Warn("fetch failed",
				zap.String("key", key),
				zap.Error(err),
			)
			return nil, err
		}
		c.metrics.ObserveFetch(key, durMs, true)

		c.mu.Lock()
		if c.freshSince(start, tags) {
			c.store(key, entry{value: v, tags: tags})
		} else {
			// A relevant tag was invalidated while this fetch was in
			// flight; serve the value but leave the cache empty so the
			// next read refetches.
			c.logger.Debug("discarding stale in-flight result", zap.String("key", key))
		}
		c.mu.Unlock()
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// freshSince reports whether none of the tags was invalidated after seq.
// Caller holds c.mu.
func (c *Cache) freshSince(seq uint64, tags []domain.Tag) bool {
	if c.purgeSeq > seq {
		return false
	}
	for _, t := range tags {
		if c.tagSeq[t.String()] > seq {
			return false
		}
	}
	return true
}

// store adds the entry and indexes its tags. Caller holds c.mu.
func (c *Cache) store(key string, e entry) {
	c.lru.Add(key, e)
	for _, t := range e.tags {
		ts := t.String()
		keys, ok := c.byTag[ts]
		if !ok {
			keys = make(map[string]struct{})
			c.byTag[ts] = keys
		}
		keys[key] = struct{}{}
	}
}

// Invalidate drops every entry carrying any of the given tags and notifies
// observers subscribed to them. It is idempotent and commutative: applying
// the same tag set twice, or two sets in either order, converges to the same
// cache contents.
func (c *Cache) Invalidate(tags ...domain.Tag) {
	if len(tags) == 0 {
		return
	}

	c.mu.Lock()
	c.seq++
	affected := make(map[string]struct{})
	for _, t := range tags {
		c.tagSeq[t.String()] = c.seq
		for key := range c.byTag[t.String()] {
			affected[key] = struct{}{}
		}
	}
	for key := range affected {
		c.lru.Remove(key)
	}
	c.mu.Unlock()

	for _, t := range tags {
		c.metrics.IncInvalidation(t.String())
	}
	if len(affected) > 0 {
		c.logger.Debug("cache entries invalidated",
			zap.Int("entries", len(affected)),
			zap.Stringers("tags", tags),
		)
	}

	c.notify(tags)
}

// Purge empties the cache without notifying observers. Used on logout, where
// subscriptions are torn down separately.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.seq++
	c.purgeSeq = c.seq
	c.lru.Purge()
	c.mu.Unlock()
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// GetOrFetch is the typed wrapper over Cache.GetOrFetch.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, fetch func(ctx context.Context) (T, []domain.Tag, error)) (T, error) {
	v, err := c.GetOrFetch(ctx, key, func(ctx context.Context) (any, []domain.Tag, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
