package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"
)

// Tier is a shared second level behind the in-process cache, such as
// Redis. A miss is reported as ok == false with a nil error.
type Tier interface {
	Load(ctx context.Context, key string) (value []byte, ok bool, err error)
	Store(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type cacheItem struct {
	ts time.Time
	fc geom.GeoJSONFeatureCollection
}

// Cache memoizes an Extractor per AOI and category.
//
// Items older than the TTL are refetched on the next request. When the
// refetch fails and stale reads are allowed, the old item is served and
// the failure is only logged.
type Cache struct {
	sync.RWMutex
	next  Extractor
	items map[string]cacheItem
	ttl   time.Duration
	stale bool
	tier  Tier
	now   func() time.Time
}

type CacheOption func(*Cache)

// WithTTL sets how long an extraction stays fresh. Zero keeps items
// forever.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithStale serves expired items when refetching them fails.
func WithStale() CacheOption {
	return func(c *Cache) {
		c.stale = true
	}
}

// WithTier adds a shared cache consulted on local misses.
func WithTier(t Tier) CacheOption {
	return func(c *Cache) {
		c.tier = t
	}
}

func NewCache(next Extractor, options ...CacheOption) *Cache {
	c := &Cache{
		next:  next,
		items: map[string]cacheItem{},
		ttl:   time.Hour,
		now:   time.Now,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Key identifies an extraction by category and AOI geometry.
func Key(aoi geom.Polygon, category Category) string {
	sum := sha256.Sum256(aoi.AsBinary())
	return string(category) + ":" + hex.EncodeToString(sum[:])
}

func (c *Cache) expired(ci cacheItem) bool {
	return c.ttl > 0 && ci.ts.Add(c.ttl).Before(c.now())
}

func (c *Cache) Extract(ctx context.Context, aoi geom.Polygon, category Category) (geom.GeoJSONFeatureCollection, error) {
	key := Key(aoi, category)
	c.RLock()
	ci, exists := c.items[key]
	c.RUnlock()
	if exists && !c.expired(ci) {
		return ci.fc, nil
	}
	if fc, ok := c.load(ctx, key); ok {
		c.set(key, fc)
		return fc, nil
	}

	fc, err := c.next.Extract(ctx, aoi, category)
	if err != nil {
		if exists && c.stale {
			logrus.Warnf("serving stale extraction for %s: %s", key, err)
			return ci.fc, nil
		}
		return nil, err
	}
	c.set(key, fc)
	c.store(ctx, key, fc)
	return fc, nil
}

// Delete drops the local item for the AOI and category.
func (c *Cache) Delete(aoi geom.Polygon, category Category) {
	c.Lock()
	defer c.Unlock()
	delete(c.items, Key(aoi, category))
}

func (c *Cache) set(key string, fc geom.GeoJSONFeatureCollection) {
	c.Lock()
	defer c.Unlock()
	c.items[key] = cacheItem{ts: c.now(), fc: fc}
}

func (c *Cache) load(ctx context.Context, key string) (geom.GeoJSONFeatureCollection, bool) {
	if c.tier == nil {
		return nil, false
	}
	b, ok, err := c.tier.Load(ctx, key)
	if err != nil {
		logrus.Warnf("cache tier load %s: %s", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var fc geom.GeoJSONFeatureCollection
	if err = fc.UnmarshalJSON(b); err != nil {
		logrus.Warnf("cache tier holds unreadable %s: %s", key, err)
		return nil, false
	}
	logrus.Debugf("cache tier hit for %s", key)
	return fc, true
}

func (c *Cache) store(ctx context.Context, key string, fc geom.GeoJSONFeatureCollection) {
	if c.tier == nil {
		return
	}
	b, err := fc.MarshalJSON()
	if err == nil {
		err = c.tier.Store(ctx, key, b, c.ttl)
	}
	if err != nil {
		logrus.Warnf("cache tier store %s: %s", key, err)
	}
}
