package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound reports a miss: the key is absent or its entry expired.
	ErrNotFound = errors.New("cache: key not found")
	// ErrUnavailable wraps transport or connection failures of a backend.
	ErrUnavailable = errors.New("cache: store unavailable")
	// ErrSerialization marks payloads that could not be encoded or decoded.
	ErrSerialization = errors.New("cache: serialization failed")
)

// Store represents a TTL-based key-value cache that can be backed by memory,
// Redis, or any other KV store offering glob key enumeration.
type Store interface {
	// Get returns ErrNotFound when the key is missing or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A ttl <= 0 stores the value without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Keys lists the live keys matching pattern (see MatchPattern).
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Delete removes keys and reports how many existed. Deleting nothing is not an error.
	Delete(ctx context.Context, keys ...string) (int64, error)
	// Flush empties the store.
	Flush(ctx context.Context) error
	// Ping checks that the backend answers.
	Ping(ctx context.Context) error
}

// IsMiss reports whether err should be read as a plain cache miss.
func IsMiss(err error) bool { return errors.Is(err, ErrNotFound) }

// Kind classifies err into a short label used by logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "miss"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unavailable"
	}
}
