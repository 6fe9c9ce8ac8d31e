// Package cache implements the generic key-to-blob cache contract the
// L2P and P2L readers require (full get, partial-getter, has-key, set),
// backed by a bounded LRU with singleflight-coalesced fills so
// concurrent readers racing on the same cold key produce one file read
// rather than one per reader.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fsidx/engine/internal/metrics"
	"github.com/fsidx/engine/internal/serialblob"
)

// Cache is the contract a reader needs from a generic key-to-blob
// store. Implementations may evict at any time; a value returned by Get
// must not be mutated, since the same backing slice may still be held
// by the cache.
type Cache interface {
	Get(key Key) ([]byte, bool)
	HasKey(key Key) bool
	Set(key Key, value []byte)
}

// GetPartial resolves a single derived value from a cached blob without
// the caller ever materializing the whole decoded structure.
func GetPartial[T any](c Cache, key Key, getter serialblob.PartialGetter[T]) (T, bool) {
	buf, ok := c.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	return serialblob.GetPartial(buf, getter), true
}

// GetFull resolves the fully decoded value from a cached blob.
func GetFull[T any](c Cache, key Key, decode func(serialblob.Reader) T) (T, bool) {
	buf, ok := c.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	return serialblob.Decode(buf, decode), true
}

// LRUCache is the Cache implementation the readers are constructed
// with: one bounded LRU per cache kind, each with its own singleflight
// group so a miss on one kind never blocks a fill on another.
type LRUCache struct {
	kind    Kind
	lru     *lru.Cache[string, []byte]
	sf      singleflight.Group
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewLRUCache constructs an LRUCache bounded to size entries.
func NewLRUCache(kind Kind, size int, logger *zap.Logger, mc *metrics.Collector) (*LRUCache, error) {
	c := &LRUCache{kind: kind, logger: logger, metrics: mc}
	l, err := lru.NewWithEvict[string, []byte](size, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

func (c *LRUCache) onEvict(key string, value []byte) {
	if c.metrics != nil {
		c.metrics.CacheEvictionsTotal.WithLabelValues(c.kind.String()).Inc()
	}
	if c.logger != nil {
		c.logger.Debug("cache entry evicted", zap.String("cache", c.kind.String()), zap.String("key", key))
	}
}

// Get implements Cache.
func (c *LRUCache) Get(key Key) ([]byte, bool) {
	v, ok := c.lru.Get(key.String())
	if c.metrics != nil {
		if ok {
			c.metrics.CacheHitsTotal.WithLabelValues(c.kind.String()).Inc()
		} else {
			c.metrics.CacheMissesTotal.WithLabelValues(c.kind.String()).Inc()
		}
	}
	return v, ok
}

// HasKey implements Cache.
func (c *LRUCache) HasKey(key Key) bool {
	return c.lru.Contains(key.String())
}

// Set implements Cache.
func (c *LRUCache) Set(key Key, value []byte) {
	c.lru.Add(key.String(), value)
	if c.metrics != nil {
		c.metrics.CacheEntriesTotal.WithLabelValues(c.kind.String()).Set(float64(c.lru.Len()))
	}
}

// GetOrFill returns the cached value for key, or calls fill to produce
// it on a miss. Concurrent callers racing on the same key share one
// call to fill.
func (c *LRUCache) GetOrFill(key Key, fill func() ([]byte, error)) ([]byte, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.sf.Do(key.String(), func() (any, error) {
		if v2, ok := c.Get(key); ok {
			return v2, nil
		}
		data, ferr := fill()
		if ferr != nil {
			return nil, ferr
		}
		c.Set(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
