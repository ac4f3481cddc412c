package redis

import "time"

// Options controls how the Redis cache store connects to the server.
type Options struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	// KeyPrefix namespaces every key so several apps can share one database.
	// Keys returned by Store.Keys have the prefix stripped.
	KeyPrefix string
	// ScanCount is the COUNT hint passed to SCAN while enumerating keys.
	ScanCount int64
	// DeleteBatch bounds the number of keys sent per DEL command.
	DeleteBatch int
}

func (o Options) withDefaults() Options {
	if o.Addr == "" {
		o.Addr = "127.0.0.1:6379"
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 2 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 2 * time.Second
	}
	if o.DB < 0 {
		o.DB = 0
	}
	if o.PoolSize <= 0 {
		o.PoolSize = 8
	}
	if o.ScanCount <= 0 {
		o.ScanCount = 200
	}
	if o.DeleteBatch <= 0 {
		o.DeleteBatch = 500
	}
	return o
}
