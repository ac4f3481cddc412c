package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is prepended to every override variable.
const EnvPrefix = "UNIMART_"

type lookupFunc func(string) (string, bool)

// applyEnv overlays UNIMART_* variables onto cfg.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("SERVER_ADDRESS", &cfg.Server.Address)
	e.dur("SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	e.list("SERVER_CORS_ORIGINS", &cfg.Server.CORSOrigins)

	e.str("POSTGRES_DSN", &cfg.Postgres.DSN)
	e.integer("POSTGRES_MAX_OPEN_CONNS", &cfg.Postgres.MaxOpenConns)
	e.boolean("POSTGRES_MIGRATE", &cfg.Postgres.Migrate)

	e.str("CACHE_BACKEND", &cfg.Cache.Backend)
	e.str("REDIS_ADDR", &cfg.Cache.Redis.Addr)
	e.str("REDIS_PASSWORD", &cfg.Cache.Redis.Password)
	e.integer("REDIS_DB", &cfg.Cache.Redis.DB)
	e.str("REDIS_KEY_PREFIX", &cfg.Cache.Redis.KeyPrefix)
	e.boolean("CACHE_BREAKER_ENABLED", &cfg.Cache.Breaker.Enabled)

	e.str("AUTH_SECRET", &cfg.Auth.Secret)
	e.str("AUTH_ISSUER", &cfg.Auth.Issuer)
	e.str("AUTH_AUDIENCE", &cfg.Auth.Audience)

	e.str("CLIENT_BASE_URL", &cfg.Client.BaseURL)
	e.str("CLIENT_TOKEN", &cfg.Client.Token)
	e.str("CLIENT_CACHE_PATH", &cfg.Client.CachePath)

	e.str("TRACING_ENDPOINT", &cfg.Tracing.Endpoint)
	e.boolean("TRACING_INSECURE", &cfg.Tracing.Insecure)

	e.str("LOG_LEVEL", &cfg.Logging.Level)
	e.boolean("LOG_DEVELOPMENT", &cfg.Logging.Development)

	return e.err
}

// envReader records the first malformed value and ignores the rest.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(name, value string, err error) {
	e.err = fmt.Errorf("config: %s%s=%q: %w", EnvPrefix, name, value, err)
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) list(name string, dst *[]string) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) integer(name string, dst *int) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = n
}

func (e *envReader) boolean(name string, dst *bool) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = b
}

func (e *envReader) dur(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = d
}
