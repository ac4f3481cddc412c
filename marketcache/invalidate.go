package marketcache

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Invalidate deletes every key matching any of patterns in one batch and
// returns how many were removed. Patterns matching nothing are fine; store
// errors are logged and swallowed, leaving stale entries to their TTL.
func (c *Cache) Invalidate(ctx context.Context, patterns ...string) int {
	seen := make(map[string]struct{})
	var keys []string
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		matched, err := c.store.Keys(ctx, pattern)
		if err != nil {
			c.logger.Warn("cache invalidation scan failed",
				zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		for _, key := range matched {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return 0
	}
	removed, err := c.store.Delete(ctx, keys...)
	if err != nil {
		c.logger.Warn("cache invalidation delete failed",
			zap.Strings("patterns", patterns), zap.Int("keys", len(keys)), zap.Error(err))
		return 0
	}
	c.metrics.Invalidated(int(removed))
	c.logger.Debug("cache invalidated",
		zap.Strings("patterns", patterns), zap.Int64("removed", removed))
	return int(removed)
}

// ClearAll empties the whole store. It is meant for maintenance and tests,
// never for the request path.
func (c *Cache) ClearAll(ctx context.Context) error {
	if err := c.store.Flush(ctx); err != nil {
		return fmt.Errorf("marketcache: clear: %w", err)
	}
	c.logger.Info("cache cleared")
	return nil
}

// Healthy pings the store. Any failure reads as unhealthy.
func (c *Cache) Healthy(ctx context.Context) bool {
	err := c.store.Ping(ctx)
	c.metrics.StoreUp(err == nil)
	if err != nil {
		c.logger.Warn("cache health check failed", zap.Error(err))
		return false
	}
	return true
}
