// Package localcache mirrors the server cache on the client: a fast
// session tier that lives as long as the process and a persistent tier that
// survives restarts. Entries use the same envelope and key namespace as the
// server side.
package localcache

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adeilh/unimart/cache"
)

const (
	// DefaultPrefix namespaces every mirrored key.
	DefaultPrefix = "unimart_cache:"
	// DefaultSweepInterval is how often Run removes expired entries.
	DefaultSweepInterval = 5 * time.Minute
)

// Options configures a Mirror.
type Options struct {
	Prefix        string
	SweepInterval time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Mirror is a two-tier client cache. Reads try the session tier first.
type Mirror struct {
	session    cache.Store
	persistent cache.Store
	opts       Options
}

// NewMirror builds a mirror over the two tiers. Either tier may be nil.
func NewMirror(session, persistent cache.Store, opts Options) *Mirror {
	return &Mirror{session: session, persistent: persistent, opts: opts.withDefaults()}
}

func (m *Mirror) tiers() []cache.Store {
	out := make([]cache.Store, 0, 2)
	for _, s := range []cache.Store{m.session, m.persistent} {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m *Mirror) key(name string) string { return m.opts.Prefix + name }

// Set writes value to both tiers. A ttl <= 0 never expires.
func (m *Mirror) Set(ctx context.Context, name string, value any, ttl time.Duration) error {
	entry, err := cache.NewEntry(value, m.opts.Now(), ttl)
	if err != nil {
		return err
	}
	raw, err := entry.Marshal()
	if err != nil {
		return err
	}
	var errs []error
	for _, tier := range m.tiers() {
		if err := tier.Set(ctx, m.key(name), raw, entry.TTL()); err != nil {
			m.opts.Logger.Warn("local cache write failed", zap.String("key", name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get decodes the entry stored under name into dst. Expired or unreadable
// entries are purged from both tiers and reported as a miss. A persistent
// hit re-warms the session tier.
func (m *Mirror) Get(ctx context.Context, name string, dst any) bool {
	key := m.key(name)
	for i, tier := range m.tiers() {
		raw, err := tier.Get(ctx, key)
		if err != nil {
			if !cache.IsMiss(err) {
				m.opts.Logger.Debug("local cache read failed", zap.String("key", name), zap.Error(err))
			}
			continue
		}
		entry, err := cache.UnmarshalEntry(raw)
		now := m.opts.Now()
		if err != nil || !entry.Valid(now) {
			m.purge(ctx, key)
			return false
		}
		if err := entry.Decode(dst); err != nil {
			m.purge(ctx, key)
			return false
		}
		if i > 0 && m.session != nil {
			_ = m.session.Set(ctx, key, raw, entry.Remaining(now))
		}
		return true
	}
	return false
}

// Invalidate deletes every mirrored entry whose name contains substr and
// returns how many keys were removed across both tiers.
func (m *Mirror) Invalidate(ctx context.Context, substr string) int {
	return m.deleteWhere(ctx, func(name string, _ []byte) bool {
		return strings.Contains(name, substr)
	})
}

// Clear drops the whole namespace from both tiers.
func (m *Mirror) Clear(ctx context.Context) int {
	return m.deleteWhere(ctx, func(string, []byte) bool { return true })
}

// Sweep removes every expired or undecodable entry.
func (m *Mirror) Sweep(ctx context.Context) int {
	now := m.opts.Now()
	removed := m.deleteWhere(ctx, func(_ string, raw []byte) bool {
		entry, err := cache.UnmarshalEntry(raw)
		return err != nil || !entry.Valid(now)
	})
	if p, ok := m.persistent.(interface {
		DeleteExpired(context.Context) (int64, error)
	}); ok {
		if n, err := p.DeleteExpired(ctx); err == nil {
			removed += int(n)
		}
	}
	return removed
}

// Run sweeps every SweepInterval until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(ctx); n > 0 {
				m.opts.Logger.Debug("local cache swept", zap.Int("removed", n))
			}
		}
	}
}

// deleteWhere removes the namespaced keys for which match reports true. raw
// is nil when the entry vanished between the scan and the read.
func (m *Mirror) deleteWhere(ctx context.Context, match func(name string, raw []byte) bool) int {
	pattern := cache.QuotePattern(m.opts.Prefix) + "*"
	total := 0
	for _, tier := range m.tiers() {
		keys, err := tier.Keys(ctx, pattern)
		if err != nil {
			m.opts.Logger.Warn("local cache scan failed", zap.Error(err))
			continue
		}
		var doomed []string
		for _, key := range keys {
			raw, err := tier.Get(ctx, key)
			if err != nil && !cache.IsMiss(err) {
				continue
			}
			if match(strings.TrimPrefix(key, m.opts.Prefix), raw) {
				doomed = append(doomed, key)
			}
		}
		if len(doomed) == 0 {
			continue
		}
		n, err := tier.Delete(ctx, doomed...)
		if err != nil {
			m.opts.Logger.Warn("local cache delete failed", zap.Error(err))
			continue
		}
		total += int(n)
	}
	return total
}

func (m *Mirror) purge(ctx context.Context, key string) {
	for _, tier := range m.tiers() {
		_, _ = tier.Delete(ctx, key)
	}
}
