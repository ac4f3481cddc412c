package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/adeilh/unimart/cache"
)

// Store implements cache.Store on a Redis server through go-redis.
type Store struct {
	opts   Options
	client goredis.UniversalClient
}

var _ cache.Store = (*Store)(nil)

// NewStore builds a Redis-backed cache store.
func NewStore(opts Options) *Store {
	cfg := opts.withDefaults()
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})
	return &Store{opts: cfg, client: client}
}

// NewStoreFromClient wraps an existing client, e.g. a cluster or sentinel client.
func NewStoreFromClient(client goredis.UniversalClient, opts Options) *Store {
	return &Store{opts: opts.withDefaults(), client: client}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("GET", err)
	}
	return payload, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return unavailable("SET", err)
	}
	return nil
}

// Keys walks the keyspace with SCAN so large databases are never blocked the
// way a single KEYS call would.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	iter := s.client.Scan(ctx, 0, cache.QuotePattern(s.opts.KeyPrefix)+pattern, s.opts.ScanCount).Iterator()
	seen := make(map[string]struct{})
	var keys []string
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), s.opts.KeyPrefix)
		// SCAN may return a key more than once.
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("SCAN", err)
	}
	return keys, nil
}

// Delete removes keys in pipelined DEL batches.
func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	var cmds []*goredis.IntCmd
	_, err := s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for start := 0; start < len(keys); start += s.opts.DeleteBatch {
			end := start + s.opts.DeleteBatch
			if end > len(keys) {
				end = len(keys)
			}
			batch := make([]string, 0, end-start)
			for _, key := range keys[start:end] {
				batch = append(batch, s.key(key))
			}
			cmds = append(cmds, pipe.Del(ctx, batch...))
		}
		return nil
	})
	if err != nil {
		return 0, unavailable("DEL", err)
	}
	var removed int64
	for _, cmd := range cmds {
		removed += cmd.Val()
	}
	return removed, nil
}

// Flush empties the store. With a KeyPrefix only the prefixed keys go;
// otherwise the whole logical database is flushed.
func (s *Store) Flush(ctx context.Context) error {
	if s.opts.KeyPrefix == "" {
		if err := s.client.FlushDB(ctx).Err(); err != nil {
			return unavailable("FLUSHDB", err)
		}
		return nil
	}
	keys, err := s.Keys(ctx, "*")
	if err != nil {
		return err
	}
	_, err = s.Delete(ctx, keys...)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("PING", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(k string) string { return s.opts.KeyPrefix + k }

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: redis %s: %w", cache.ErrUnavailable, op, err)
}
