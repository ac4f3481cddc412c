package memory

import "time"

// Options controls the sturdyc client backing the in-process store.
type Options struct {
	Capacity           int
	NumShards          int
	EvictionPercentage int
	// MaxTTL caps how long sturdyc keeps any value, including values set
	// without expiry. Per-key TTLs shorter than MaxTTL are enforced by Store.
	MaxTTL time.Duration
	// Now overrides the clock used for per-key expiry.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Capacity <= 0 {
		o.Capacity = 10000
	}
	if o.NumShards <= 0 {
		o.NumShards = 64
	}
	if o.EvictionPercentage < 1 || o.EvictionPercentage > 100 {
		o.EvictionPercentage = 10
	}
	if o.MaxTTL <= 0 {
		o.MaxTTL = 24 * time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
