package api

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/adeilh/unimart/httpx"
)

type invalidateRequest struct {
	Pattern string `json:"pattern"`
}

type invalidateResponse struct {
	Pattern string `json:"pattern"`
	Removed int    `json:"removed"`
}

func (h *Handler) invalidateCache(c httpx.Context) error {
	var req invalidateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid JSON body")
	}
	req.Pattern = strings.TrimSpace(req.Pattern)
	if req.Pattern == "" {
		return badRequest("pattern is required")
	}
	removed := h.cache.Invalidate(c.Request().Context(), req.Pattern)
	h.logger.Info("cache invalidated", zap.String("pattern", req.Pattern), zap.Int("removed", removed))
	return c.JSON(httpx.StatusOK, invalidateResponse{Pattern: req.Pattern, Removed: removed})
}

func (h *Handler) flushCache(c httpx.Context) error {
	if err := h.cache.ClearAll(c.Request().Context()); err != nil {
		h.logger.Warn("cache flush failed", zap.Error(err))
		return httpx.HTTPError(httpx.StatusServiceUnavailable, "cache unavailable")
	}
	h.logger.Info("cache flushed")
	return c.NoContent(httpx.StatusNoContent)
}

// Health is the /health body.
type Health struct {
	Status   string `json:"status"`
	Cache    bool   `json:"cache"`
	Database bool   `json:"database"`
}

// Health statuses.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthDown     = "down"
)

// health reports 503 only when the database is down; a broken cache
// degrades the service without failing it.
func (h *Handler) health(c httpx.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.healthWait)
	defer cancel()

	body := Health{Status: HealthOK, Cache: h.cache.Healthy(ctx), Database: true}
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("database health check failed", zap.Error(err))
			body.Database = false
		}
	}

	switch {
	case !body.Database:
		body.Status = HealthDown
		return c.JSON(httpx.StatusServiceUnavailable, body)
	case !body.Cache:
		body.Status = HealthDegraded
	}
	return c.JSON(httpx.StatusOK, body)
}
