package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unimart.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, `
server:
  address: ":9090"
  request_timeout: 3s
postgres:
  dsn: postgres://u:p@db:5432/market?sslmode=disable
cache:
  backend: memory
  ttl:
    product: 2h
    search: 90s
auth:
  secret: 0123456789abcdef0123456789abcdef
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Address != ":9090" || cfg.Server.RequestTimeout != 3*time.Second {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Cache.Backend != BackendMemory {
		t.Fatalf("backend = %q", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL.Product != 2*time.Hour || cfg.Cache.TTL.Search != 90*time.Second || cfg.Cache.TTL.User != 0 {
		t.Fatalf("ttl = %+v", cfg.Cache.TTL)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Fatalf("defaults lost: read timeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UNIMART_SERVER_ADDRESS", ":7070")
	t.Setenv("UNIMART_CACHE_BACKEND", "memory")
	t.Setenv("UNIMART_REDIS_DB", "3")
	t.Setenv("UNIMART_POSTGRES_MIGRATE", "false")
	t.Setenv("UNIMART_SERVER_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("UNIMART_SERVER_REQUEST_TIMEOUT", "750ms")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Address != ":7070" || cfg.Cache.Backend != BackendMemory || cfg.Cache.Redis.DB != 3 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Postgres.Migrate {
		t.Fatalf("migrate override ignored")
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors origins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Server.RequestTimeout != 750*time.Millisecond {
		t.Fatalf("request timeout = %v", cfg.Server.RequestTimeout)
	}
}

func TestEnvMalformedValue(t *testing.T) {
	t.Setenv("UNIMART_REDIS_DB", "three")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "UNIMART_REDIS_DB") {
		t.Fatalf("expected UNIMART_REDIS_DB error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short secret", func(c *Config) { c.Auth.Secret = "short" }, "Secret"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, "Backend"},
		{"redis without addr", func(c *Config) { c.Cache.Redis.Addr = "" }, "redis.addr"},
		{"missing dsn", func(c *Config) { c.Postgres.DSN = "" }, "DSN"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "Level"},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 2 }, "SampleRate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate = %v, want mention of %s", err, tc.want)
			}
		})
	}

	memory := Default()
	memory.Cache.Backend = BackendMemory
	memory.Cache.Redis.Addr = ""
	if err := memory.Validate(); err != nil {
		t.Fatalf("memory backend without redis addr: %v", err)
	}
}
