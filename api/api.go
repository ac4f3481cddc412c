// Package api exposes the marketplace over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/adeilh/unimart/auth"
	"github.com/adeilh/unimart/httpx"
	"github.com/adeilh/unimart/market"
	"github.com/adeilh/unimart/marketcache"
)

// Pinger reports whether a dependency answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the marketplace routes.
type Handler struct {
	service     *market.Service
	cache       *marketcache.Cache
	db          Pinger
	auth        *auth.Middleware
	metrics     http.Handler
	responseTTL time.Duration
	healthWait  time.Duration
	logger      *zap.Logger
}

type Option func(*Handler)

// WithDatabase enables the database probe of /health.
func WithDatabase(p Pinger) Option {
	return func(h *Handler) { h.db = p }
}

// WithAuth protects write routes. Without it every write is rejected.
func WithAuth(mw *auth.Middleware) Option {
	return func(h *Handler) { h.auth = mw }
}

// WithMetricsHandler serves handler at /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(h *Handler) { h.metrics = handler }
}

// WithResponseTTL sets the lifetime of whole-response cache entries.
func WithResponseTTL(d time.Duration) Option {
	return func(h *Handler) { h.responseTTL = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(service *market.Service, opts ...Option) *Handler {
	h := &Handler{
		service:    service,
		cache:      service.Cache(),
		healthWait: 2 * time.Second,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// RegisterRoutes installs every route on a. It satisfies httpx.RouteRegistrar.
func (h *Handler) RegisterRoutes(a *httpx.App) {
	a.GET("/health", h.health)
	if h.metrics != nil {
		a.Handle(http.MethodGet, "/metrics", h.metrics)
	}

	authed := httpx.AuthMiddleware(h.auth)
	cached := httpx.ResponseCache(h.cache, h.responseTTL)

	a.Group("/api/products").
		GET("", h.listProducts).
		GET("/:id", h.getProduct).
		POST("", h.createProduct, authed).
		PUT("/:id", h.updateProduct, authed).
		PATCH("/:id", h.updateProduct, authed).
		DELETE("/:id", h.deleteProduct, authed)

	a.Group("/api/categories").
		GET("", h.listCategories, cached).
		GET("/:category/products", h.categoryProducts)

	a.Group("/api/users").
		GET("/:id", h.getUser, cached).
		PUT("/:id", h.updateUser, authed)

	a.Group("/api/admin", authed, httpx.RequireRole(auth.RoleAdmin)).
		POST("/cache/invalidate", h.invalidateCache).
		DELETE("/cache", h.flushCache)
}

// actor builds the caller identity from the verified token.
func actor(c httpx.Context) market.Actor {
	token, ok := auth.TokenFromContext(c.Request().Context())
	if !ok {
		return market.Actor{}
	}
	claims := token.Claims()
	return market.Actor{ID: claims.Subject, Email: claims.Email, Admin: claims.HasRole(auth.RoleAdmin)}
}
