package httpx

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/adeilh/unimart/marketcache"
)

// responseWriteTimeout bounds the detached cache write after a miss.
const responseWriteTimeout = 2 * time.Second

// ResponseCache serves GET and HEAD responses from c under
// cache:{path?sorted-query}. Misses run the handler and store its 200 JSON
// body in the background. A ttl <= 0 uses the response default.
func ResponseCache(c *marketcache.Cache, ttl time.Duration) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx Context) error {
			req := ctx.Request()
			if c == nil || (req.Method != http.MethodGet && req.Method != http.MethodHead) {
				return next(ctx)
			}

			path := marketcache.ResponsePath(req.URL)
			res := ctx.Response()
			if body, ok := c.GetCachedResponse(req.Context(), path); ok {
				etag := ETag(body)
				res.Header().Set(HeaderXCache, CacheHit)
				res.Header().Set(HeaderETag, etag)
				if etagMatches(req.Header.Get(HeaderIfNoneMatch), etag) {
					return ctx.NoContent(StatusNotModified)
				}
				return ctx.JSONBlob(StatusOK, body)
			}

			res.Header().Set(HeaderXCache, CacheMiss)
			tee := &teeWriter{ResponseWriter: res.Writer}
			res.Writer = tee
			defer func() { res.Writer = tee.ResponseWriter }()

			if err := next(ctx); err != nil {
				return err
			}
			if res.Status != StatusOK || tee.buf.Len() == 0 || !isJSON(res.Header().Get("Content-Type")) {
				return nil
			}

			body := bytes.Clone(tee.buf.Bytes())
			detached := context.WithoutCancel(req.Context())
			go func() {
				wctx, cancel := context.WithTimeout(detached, responseWriteTimeout)
				defer cancel()
				c.CacheResponse(wctx, path, body, ttl)
			}()
			return nil
		}
	}
}

// ETag returns a strong validator for body.
func ETag(body []byte) string {
	sum := blake2b.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/json")
}

// teeWriter copies the body written through it. One is installed per
// request and removed before the middleware returns.
type teeWriter struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (w *teeWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.buf.Write(p[:n])
	return n, err
}

func (w *teeWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *teeWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
