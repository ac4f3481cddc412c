package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/adeilh/unimart/cache/memory"
	"github.com/adeilh/unimart/client"
	"github.com/adeilh/unimart/config"
	"github.com/adeilh/unimart/localcache"
)

// newClient builds an API client from cfg. The returned func stops the
// client and releases the local mirror, when one is configured.
func newClient(ctx context.Context, cfg config.Config) (*client.Client, func(), error) {
	opts := []client.Option{
		client.WithToken(cfg.Client.Token),
		client.WithTimeout(cfg.Client.Timeout),
	}
	release := func() {}

	if cfg.Client.CachePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Client.CachePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("local cache dir: %w", err)
		}
		persistent, err := localcache.OpenSQLite(ctx, localcache.SQLiteOptions{Path: cfg.Client.CachePath})
		if err != nil {
			return nil, nil, err
		}
		mirror := localcache.NewMirror(memory.NewStore(memory.Options{}), persistent, localcache.Options{})
		mirror.Sweep(ctx)
		opts = append(opts, client.WithMirror(mirror))
		release = func() { _ = persistent.Close() }
	}

	c := client.New(cfg.Client.BaseURL, opts...)
	closeStores := release
	return c, func() {
		c.Close()
		closeStores()
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
