// Package breaker guards a cache.Store with a circuit breaker so a dead
// backend costs one fast error per call instead of a network timeout.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/adeilh/unimart/cache"
)

// Options configures the breaker.
type Options struct {
	Name string
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
	// Interval resets the closed-state counters; zero never resets them.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	Logger              *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "cache"
	}
	if o.MaxRequests == 0 {
		o.MaxRequests = 1
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.ConsecutiveFailures == 0 {
		o.ConsecutiveFailures = 5
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Store decorates another cache.Store.
type Store struct {
	next cache.Store
	cb   *gobreaker.CircuitBreaker
}

var _ cache.Store = (*Store)(nil)

// Wrap returns next guarded by a circuit breaker.
func Wrap(next cache.Store, opts Options) *Store {
	cfg := opts.withDefaults()
	logger := cfg.Logger
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cache breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// Misses and caller cancellations say nothing about backend health.
			return err == nil ||
				errors.Is(err, cache.ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
	})
	return &Store{next: next, cb: cb}
}

// State exposes the breaker state for health reporting.
func (s *Store) State() gobreaker.State { return s.cb.State() }

// Unwrap returns the decorated store.
func (s *Store) Unwrap() cache.Store { return s.next }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.execute(func() (any, error) { return s.next.Get(ctx, key) })
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.execute(func() (any, error) { return nil, s.next.Set(ctx, key, value, ttl) })
	return err
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	out, err := s.execute(func() (any, error) { return s.next.Keys(ctx, pattern) })
	if err != nil {
		return nil, err
	}
	return out.([]string), nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	out, err := s.execute(func() (any, error) { return s.next.Delete(ctx, keys...) })
	if err != nil {
		return 0, err
	}
	return out.(int64), nil
}

func (s *Store) Flush(ctx context.Context) error {
	_, err := s.execute(func() (any, error) { return nil, s.next.Flush(ctx) })
	return err
}

// Ping bypasses the open state so health probes always reach the backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *Store) execute(fn func() (any, error)) (any, error) {
	out, err := s.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", cache.ErrUnavailable, err)
	}
	return out, err
}
