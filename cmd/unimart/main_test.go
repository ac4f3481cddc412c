package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/adeilh/unimart/cache/breaker"
	"github.com/adeilh/unimart/cache/memory"
	"github.com/adeilh/unimart/config"
)

func TestBuildStore(t *testing.T) {
	cfg := config.Default().Cache

	cfg.Backend = config.BackendMemory
	store, release := buildStore(cfg, zap.NewNop())
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("memory backend built %T", store)
	}
	release()

	cfg.Backend = config.BackendRedis
	cfg.Breaker.Enabled = true
	store, release = buildStore(cfg, zap.NewNop())
	defer release()
	if _, ok := store.(*breaker.Store); !ok {
		t.Fatalf("redis backend with breaker built %T", store)
	}
}

func TestTTLsKeepDefaultsForZero(t *testing.T) {
	got := ttls(config.TTLConfig{Product: 2 * time.Hour})
	if got.Product != 2*time.Hour || got.User != 0 {
		t.Fatalf("ttls = %+v", got)
	}
}

func TestAuthMiddlewareRequiresStrongSecret(t *testing.T) {
	mw, err := authMiddleware(config.AuthConfig{})
	if err != nil || mw != nil {
		t.Fatalf("empty secret = %v, %v", mw, err)
	}
	if _, err := authMiddleware(config.AuthConfig{Secret: "short"}); err == nil {
		t.Fatalf("weak secret accepted")
	}
	mw, err = authMiddleware(config.AuthConfig{Secret: "0123456789abcdef0123456789abcdef"})
	if err != nil || mw == nil {
		t.Fatalf("strong secret = %v, %v", mw, err)
	}
}

func TestNewClientOpensMirror(t *testing.T) {
	cfg := config.Default()
	cfg.Client.CachePath = filepath.Join(t.TempDir(), "nested", "mirror.db")

	c, release, err := newClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	defer release()
	if c == nil {
		t.Fatalf("nil client")
	}
}
