// Package memory provides an in-process cache.Store backed by sturdyc. It
// serves single-node deployments, the session tier of the local mirror and
// tests that need the full six-operation contract without a server.
package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/viccon/sturdyc"

	"github.com/adeilh/unimart/cache"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory: store closed")

type item struct {
	value     []byte
	expiresAt time.Time
}

func (it item) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

// Store implements cache.Store on top of a sharded sturdyc client.
type Store struct {
	client *sturdyc.Client[item]
	now    func() time.Time
	closed atomic.Bool
}

var _ cache.Store = (*Store)(nil)

// NewStore builds an in-process store.
func NewStore(opts Options) *Store {
	cfg := opts.withDefaults()
	client := sturdyc.New[item](cfg.Capacity, cfg.NumShards, cfg.MaxTTL, cfg.EvictionPercentage)
	return &Store{client: client, now: cfg.Now}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	it, ok := s.client.Get(key)
	if !ok {
		return nil, cache.ErrNotFound
	}
	if it.expired(s.now()) {
		s.client.Delete(key)
		return nil, cache.ErrNotFound
	}
	return append([]byte(nil), it.value...), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	it := item{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expiresAt = s.now().Add(ttl)
	}
	s.client.Set(key, it)
	return nil
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	now := s.now()
	var keys []string
	for _, key := range s.client.ScanKeys() {
		if !cache.MatchPattern(pattern, key) {
			continue
		}
		it, ok := s.client.Get(key)
		if !ok {
			continue
		}
		if it.expired(now) {
			s.client.Delete(key)
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	now := s.now()
	var removed int64
	for _, key := range keys {
		if it, ok := s.client.Get(key); ok && !it.expired(now) {
			removed++
		}
		s.client.Delete(key)
	}
	return removed, nil
}

func (s *Store) Flush(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	for _, key := range s.client.ScanKeys() {
		s.client.Delete(key)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.check(ctx)
}

// Len reports the number of stored keys, expired ones included until purged.
func (s *Store) Len() int { return s.client.Size() }

// Close drops every entry; later calls fail with ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	for _, key := range s.client.ScanKeys() {
		s.client.Delete(key)
	}
	return nil
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
