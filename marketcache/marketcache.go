// Package marketcache is the cache-aside layer in front of the marketplace
// store. Callers use typed accessors and never build raw keys; every
// accessor is best effort, so a failing store degrades to uncached behavior
// and never to an error.
package marketcache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/adeilh/unimart/cache"
	"github.com/adeilh/unimart/internal/metrics"
)

// TTLs holds the default lifetime per kind.
type TTLs struct {
	Product  time.Duration
	User     time.Duration
	Category time.Duration
	Search   time.Duration
	Products time.Duration
	Response time.Duration
}

// DefaultTTLs reflects how stale each kind may get.
func DefaultTTLs() TTLs {
	return TTLs{
		Product:  time.Hour,
		User:     30 * time.Minute,
		Category: 30 * time.Minute,
		Search:   15 * time.Minute,
		Products: 15 * time.Minute,
		Response: 5 * time.Minute,
	}
}

func (t TTLs) withDefaults() TTLs {
	def := DefaultTTLs()
	if t.Product <= 0 {
		t.Product = def.Product
	}
	if t.User <= 0 {
		t.User = def.User
	}
	if t.Category <= 0 {
		t.Category = def.Category
	}
	if t.Search <= 0 {
		t.Search = def.Search
	}
	if t.Products <= 0 {
		t.Products = def.Products
	}
	if t.Response <= 0 {
		t.Response = def.Response
	}
	return t
}

// For returns the default TTL of kind.
func (t TTLs) For(kind Kind) time.Duration {
	switch kind {
	case KindProduct:
		return t.Product
	case KindUser:
		return t.User
	case KindCategory:
		return t.Category
	case KindSearch:
		return t.Search
	case KindProducts:
		return t.Products
	case KindResponse:
		return t.Response
	default:
		return t.Response
	}
}

// Cache provides namespaced accessors over a cache.Store.
type Cache struct {
	store   cache.Store
	ttls    TTLs
	logger  *zap.Logger
	metrics *metrics.Cache
	now     func() time.Time
}

// Option customizes a Cache.
type Option func(*Cache)

// WithTTLs overrides the per-kind defaults; zero fields keep their default.
func WithTTLs(t TTLs) Option {
	return func(c *Cache) { c.ttls = t.withDefaults() }
}

// WithLogger sets the logger used for swallowed store errors.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records hits, misses and errors.
func WithMetrics(m *metrics.Cache) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock overrides the clock used to stamp and check entries.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New wraps store. The store is required; there is no process-wide default.
func New(store cache.Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		ttls:   DefaultTTLs(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Store returns the underlying store.
func (c *Cache) Store() cache.Store { return c.store }

// TTLs returns the effective per-kind defaults.
func (c *Cache) TTLs() TTLs { return c.ttls }

// Set stores data under {kind}:{id}. A ttl <= 0 selects the kind default.
// Failures are logged and dropped.
func (c *Cache) Set(ctx context.Context, kind Kind, id string, data any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttls.For(kind)
	}
	key := Key(kind, id)
	entry, err := cache.NewEntry(data, c.now(), ttl)
	if err != nil {
		c.writeFailed(kind, key, err)
		return
	}
	raw, err := entry.Marshal()
	if err != nil {
		c.writeFailed(kind, key, err)
		return
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.writeFailed(kind, key, err)
		return
	}
	c.metrics.Write(string(kind), metrics.ResultOK)
}

// Get decodes the entry stored under {kind}:{id} into dst and reports how
// long it stays valid. ok is false on a miss, an expired entry or any error.
func (c *Cache) Get(ctx context.Context, kind Kind, id string, dst any) (remaining time.Duration, ok bool) {
	key := Key(kind, id)
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if cache.IsMiss(err) {
			c.metrics.Lookup(string(kind), metrics.ResultMiss)
			return 0, false
		}
		c.readFailed(kind, key, err)
		return 0, false
	}
	entry, err := cache.UnmarshalEntry(raw)
	if err != nil {
		c.readFailed(kind, key, err)
		c.purge(ctx, key)
		return 0, false
	}
	now := c.now()
	if !entry.Valid(now) {
		c.metrics.Lookup(string(kind), metrics.ResultMiss)
		c.purge(ctx, key)
		return 0, false
	}
	if err := entry.Decode(dst); err != nil {
		c.readFailed(kind, key, err)
		return 0, false
	}
	c.metrics.Lookup(string(kind), metrics.ResultHit)
	return entry.Remaining(now), true
}

// CacheProduct stores a product detail record.
func (c *Cache) CacheProduct(ctx context.Context, id string, data any, ttl time.Duration) {
	c.Set(ctx, KindProduct, id, data, ttl)
}

// GetCachedProduct loads a product detail record into dst.
func (c *Cache) GetCachedProduct(ctx context.Context, id string, dst any) bool {
	_, ok := c.Get(ctx, KindProduct, id, dst)
	return ok
}

// CacheUser stores a user profile.
func (c *Cache) CacheUser(ctx context.Context, id string, data any, ttl time.Duration) {
	c.Set(ctx, KindUser, id, data, ttl)
}

// GetCachedUser loads a user profile into dst.
func (c *Cache) GetCachedUser(ctx context.Context, id string, dst any) bool {
	_, ok := c.Get(ctx, KindUser, id, dst)
	return ok
}

// CacheSearchResults stores the results of a search query.
// query is encoded with EncodeQuery.
func (c *Cache) CacheSearchResults(ctx context.Context, query any, data any, ttl time.Duration) {
	id, err := EncodeQuery(query)
	if err != nil {
		c.writeFailed(KindSearch, Key(KindSearch, "?"), err)
		return
	}
	c.Set(ctx, KindSearch, id, data, ttl)
}

// GetCachedSearchResults loads the results of a search query into dst.
func (c *Cache) GetCachedSearchResults(ctx context.Context, query any, dst any) bool {
	id, err := EncodeQuery(query)
	if err != nil {
		c.readFailed(KindSearch, Key(KindSearch, "?"), err)
		return false
	}
	_, ok := c.Get(ctx, KindSearch, id, dst)
	return ok
}

// CacheCategoryProducts stores one page of a category listing. id is
// usually built with CategoryID.
func (c *Cache) CacheCategoryProducts(ctx context.Context, id string, data any, ttl time.Duration) {
	c.Set(ctx, KindCategory, id, data, ttl)
}

// GetCachedCategoryProducts loads one page of a category listing into dst.
func (c *Cache) GetCachedCategoryProducts(ctx context.Context, id string, dst any) bool {
	_, ok := c.Get(ctx, KindCategory, id, dst)
	return ok
}

// CacheProductList stores a generic paginated listing keyed by its query.
func (c *Cache) CacheProductList(ctx context.Context, query any, data any, ttl time.Duration) {
	id, err := EncodeQuery(query)
	if err != nil {
		c.writeFailed(KindProducts, Key(KindProducts, "?"), err)
		return
	}
	c.Set(ctx, KindProducts, id, data, ttl)
}

// GetCachedProductList loads a generic paginated listing into dst.
func (c *Cache) GetCachedProductList(ctx context.Context, query any, dst any) bool {
	id, err := EncodeQuery(query)
	if err != nil {
		c.readFailed(KindProducts, Key(KindProducts, "?"), err)
		return false
	}
	_, ok := c.Get(ctx, KindProducts, id, dst)
	return ok
}

func (c *Cache) purge(ctx context.Context, key string) {
	if _, err := c.store.Delete(ctx, key); err != nil && !errors.Is(err, cache.ErrNotFound) {
		c.logger.Debug("cache purge failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) readFailed(kind Kind, key string, err error) {
	c.metrics.Lookup(string(kind), metrics.ResultError)
	c.logger.Warn("cache read failed, treating as miss",
		zap.String("key", key),
		zap.String("reason", cache.Kind(err)),
		zap.Error(err))
}

func (c *Cache) writeFailed(kind Kind, key string, err error) {
	c.metrics.Write(string(kind), metrics.ResultError)
	c.logger.Warn("cache write dropped",
		zap.String("key", key),
		zap.String("reason", cache.Kind(err)),
		zap.Error(err))
}
