// Package client is a typed unimart API client. Reads consult an optional
// local Mirror before the network; writes invalidate it.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adeilh/unimart/api"
	"github.com/adeilh/unimart/httpx"
	"github.com/adeilh/unimart/localcache"
	"github.com/adeilh/unimart/market"
	"github.com/adeilh/unimart/marketcache"
)

// DefaultMirrorTTL bounds how long a mirrored read is reused.
const DefaultMirrorTTL = 5 * time.Minute

type Client struct {
	http      *httpx.Client
	mirror    *localcache.Mirror
	mirrorTTL time.Duration
	token     string
	logger    *zap.Logger

	stopSweep context.CancelFunc
	swept     chan struct{}
	closeOnce sync.Once
}

type options struct {
	timeout   time.Duration
	mirror    *localcache.Mirror
	mirrorTTL time.Duration
	token     string
	logger    *zap.Logger
}

type Option func(*options)

// WithMirror enables the local read cache. The client sweeps it in the
// background until Close.
func WithMirror(m *localcache.Mirror) Option {
	return func(o *options) { o.mirror = m }
}

func WithMirrorTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.mirrorTTL = d
		}
	}
}

// WithToken sends token as a bearer credential on writes.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	cfg := options{mirrorTTL: DefaultMirrorTTL, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	c := &Client{
		http:      httpx.NewClient(httpx.WithBaseURL(baseURL), httpx.WithClientTimeout(cfg.timeout)),
		mirror:    cfg.mirror,
		mirrorTTL: cfg.mirrorTTL,
		token:     cfg.token,
		logger:    cfg.logger,
	}
	if c.mirror != nil {
		ctx, cancel := context.WithCancel(context.Background())
		c.stopSweep = cancel
		c.swept = make(chan struct{})
		go func() {
			defer close(c.swept)
			c.mirror.Run(ctx)
		}()
	}
	return c
}

// Close stops the background mirror sweep. It does not close the mirror's
// stores, which the caller owns.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.stopSweep != nil {
			c.stopSweep()
			<-c.swept
		}
	})
}

// GetProduct returns a listing, from the mirror when possible.
func (c *Client) GetProduct(ctx context.Context, id string) (market.Product, error) {
	key := marketcache.Key(marketcache.KindProduct, id)
	var p market.Product
	if c.lookup(ctx, key, &p) {
		return p, nil
	}
	if _, err := c.http.Get(ctx, "/api/products/"+url.PathEscape(id), &p); err != nil {
		return market.Product{}, translate(err, market.ErrProductNotFound)
	}
	c.remember(ctx, key, p)
	return p, nil
}

// ListProducts returns one page of listings. Searches and plain listings
// are mirrored under separate namespaces, keyed by the canonical query.
func (c *Client) ListProducts(ctx context.Context, q market.ProductQuery) (market.ProductPage, error) {
	q = q.Normalize()
	kind := marketcache.KindProducts
	if q.Search != "" {
		kind = marketcache.KindSearch
	}
	encoded, err := marketcache.EncodeQuery(q)
	if err != nil {
		return market.ProductPage{}, err
	}
	key := marketcache.Key(kind, encoded)

	var page market.ProductPage
	if c.lookup(ctx, key, &page) {
		return page, nil
	}
	if _, err := c.http.Get(ctx, "/api/products", &page, httpx.WithQuery(queryParams(q))); err != nil {
		return market.ProductPage{}, translate(err, nil)
	}
	c.remember(ctx, key, page)
	return page, nil
}

// Categories lists category counts.
func (c *Client) Categories(ctx context.Context) ([]market.CategoryCount, error) {
	key := marketcache.Key(marketcache.KindResponse, "/api/categories")
	var body struct {
		Categories []market.CategoryCount `json:"categories"`
	}
	if c.lookup(ctx, key, &body) {
		return body.Categories, nil
	}
	if _, err := c.http.Get(ctx, "/api/categories", &body); err != nil {
		return nil, translate(err, nil)
	}
	c.remember(ctx, key, body)
	return body.Categories, nil
}

// GetUser returns a profile, from the mirror when possible.
func (c *Client) GetUser(ctx context.Context, id string) (market.User, error) {
	key := marketcache.Key(marketcache.KindUser, id)
	var u market.User
	if c.lookup(ctx, key, &u) {
		return u, nil
	}
	if _, err := c.http.Get(ctx, "/api/users/"+url.PathEscape(id), &u); err != nil {
		return market.User{}, translate(err, market.ErrUserNotFound)
	}
	c.remember(ctx, key, u)
	return u, nil
}

func (c *Client) CreateProduct(ctx context.Context, in market.ProductInput) (market.Product, error) {
	var p market.Product
	if _, err := c.http.Post(ctx, "/api/products", in, &p, c.auth()); err != nil {
		return market.Product{}, translate(err, nil)
	}
	c.forgetListings(ctx)
	return p, nil
}

func (c *Client) UpdateProduct(ctx context.Context, id string, patch market.ProductPatch) (market.Product, error) {
	var p market.Product
	if _, err := c.http.Put(ctx, "/api/products/"+url.PathEscape(id), patch, &p, c.auth()); err != nil {
		return market.Product{}, translate(err, market.ErrProductNotFound)
	}
	c.forget(ctx, marketcache.Key(marketcache.KindProduct, id))
	c.forgetListings(ctx)
	return p, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	if _, err := c.http.Delete(ctx, "/api/products/"+url.PathEscape(id), nil, c.auth()); err != nil {
		return translate(err, market.ErrProductNotFound)
	}
	c.forget(ctx, marketcache.Key(marketcache.KindProduct, id))
	c.forgetListings(ctx)
	return nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, patch market.UserPatch) (market.User, error) {
	var u market.User
	if _, err := c.http.Put(ctx, "/api/users/"+url.PathEscape(id), patch, &u, c.auth()); err != nil {
		return market.User{}, translate(err, market.ErrUserNotFound)
	}
	c.forget(ctx, marketcache.Key(marketcache.KindUser, id))
	return u, nil
}

// InvalidateCache removes server cache keys matching pattern (admin only).
func (c *Client) InvalidateCache(ctx context.Context, pattern string) (int, error) {
	var out struct {
		Removed int `json:"removed"`
	}
	if _, err := c.http.Post(ctx, "/api/admin/cache/invalidate", map[string]string{"pattern": pattern}, &out, c.auth()); err != nil {
		return 0, translate(err, nil)
	}
	return out.Removed, nil
}

// FlushCache empties the server cache (admin only) and the local mirror.
func (c *Client) FlushCache(ctx context.Context) error {
	if _, err := c.http.Delete(ctx, "/api/admin/cache", nil, c.auth()); err != nil {
		return translate(err, nil)
	}
	if c.mirror != nil {
		c.mirror.Clear(ctx)
	}
	return nil
}

// Health returns the server's health report. A 503 still yields the report
// together with ErrUnhealthy.
func (c *Client) Health(ctx context.Context) (api.Health, error) {
	var h api.Health
	_, err := c.http.Get(ctx, "/health", &h)
	if err == nil {
		return h, nil
	}
	var se *httpx.StatusError
	if errors.As(err, &se) && se.Code == httpx.StatusServiceUnavailable {
		if jerr := json.Unmarshal([]byte(se.Body), &h); jerr == nil {
			return h, ErrUnhealthy
		}
	}
	return api.Health{}, translate(err, nil)
}

func (c *Client) auth() httpx.RequestOption {
	if c.token == "" {
		return nil
	}
	return httpx.WithBearer(c.token)
}

func (c *Client) lookup(ctx context.Context, key string, dst any) bool {
	if c.mirror == nil {
		return false
	}
	return c.mirror.Get(ctx, key, dst)
}

func (c *Client) remember(ctx context.Context, key string, value any) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.Set(ctx, key, value, c.mirrorTTL); err != nil {
		c.logger.Debug("mirror write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Client) forget(ctx context.Context, substr string) {
	if c.mirror != nil {
		c.mirror.Invalidate(ctx, substr)
	}
}

// forgetListings drops every mirrored view that lists products.
func (c *Client) forgetListings(ctx context.Context) {
	for _, kind := range []marketcache.Kind{marketcache.KindProducts, marketcache.KindSearch, marketcache.KindCategory, marketcache.KindResponse} {
		c.forget(ctx, string(kind)+":")
	}
}

func queryParams(q market.ProductQuery) map[string]string {
	params := map[string]string{
		"page":  strconv.Itoa(q.Page),
		"limit": strconv.Itoa(q.Limit),
		"sort":  q.Sort,
	}
	if q.Search != "" {
		params["search"] = q.Search
	}
	if q.Category != "" {
		params["category"] = q.Category
	}
	if q.MinPrice > 0 {
		params["minPrice"] = strconv.FormatFloat(q.MinPrice, 'f', -1, 64)
	}
	if q.MaxPrice > 0 {
		params["maxPrice"] = strconv.FormatFloat(q.MaxPrice, 'f', -1, 64)
	}
	return params
}

var (
	ErrUnauthorized = errors.New("client: unauthorized")
	ErrUnhealthy    = errors.New("client: server unhealthy")
)

// translate maps HTTP statuses onto domain errors; notFound is used for 404
// when non-nil.
func translate(err error, notFound error) error {
	var se *httpx.StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case httpx.StatusNotFound:
		if notFound != nil {
			return notFound
		}
	case httpx.StatusBadRequest:
		return fmt.Errorf("%w: %s", market.ErrInvalidInput, se.Body)
	case httpx.StatusForbidden:
		return fmt.Errorf("%w: %s", market.ErrForbidden, se.Body)
	case httpx.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, se.Body)
	}
	return err
}
