package marketcache

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// ResponsePath normalizes a request URL into the identifier used for
// whole-response caching: the path plus the query with sorted parameters.
func ResponsePath(u *url.URL) string {
	if u == nil {
		return ""
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery == "" {
		return path
	}
	query := u.Query()
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}

// CacheResponse stores a JSON response body under cache:{path}.
func (c *Cache) CacheResponse(ctx context.Context, path string, body []byte, ttl time.Duration) {
	c.Set(ctx, KindResponse, path, json.RawMessage(body), ttl)
}

// GetCachedResponse returns the JSON body cached for path.
func (c *Cache) GetCachedResponse(ctx context.Context, path string) ([]byte, bool) {
	var body json.RawMessage
	if _, ok := c.Get(ctx, KindResponse, path, &body); !ok {
		return nil, false
	}
	return body, true
}
