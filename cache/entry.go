package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entry is the envelope written for every cached value. It carries its own
// timestamps so readers can enforce the TTL even when a backend keeps the
// bytes around longer than asked.
type Entry struct {
	Value      json.RawMessage `json:"value"`
	StoredAt   time.Time       `json:"storedAt"`
	TTLSeconds int64           `json:"ttlSeconds"`
}

// NewEntry marshals value into an envelope stamped with now.
func NewEntry(value any, now time.Time, ttl time.Duration) (Entry, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return Entry{Value: raw, StoredAt: now.UTC(), TTLSeconds: ttlSeconds(ttl)}, nil
}

// TTL returns the configured lifetime; zero means the entry never expires.
func (e Entry) TTL() time.Duration { return time.Duration(e.TTLSeconds) * time.Second }

// Valid reports whether the entry may still be served at now.
func (e Entry) Valid(now time.Time) bool {
	if e.TTLSeconds <= 0 {
		return true
	}
	return now.Sub(e.StoredAt) < e.TTL()
}

// Remaining returns how long the entry stays valid at now. It is zero for
// expired entries and for entries without expiry.
func (e Entry) Remaining(now time.Time) time.Duration {
	if e.TTLSeconds <= 0 {
		return 0
	}
	left := e.TTL() - now.Sub(e.StoredAt)
	if left < 0 {
		return 0
	}
	return left
}

// Decode unmarshals the payload into dst.
func (e Entry) Decode(dst any) error {
	if err := json.Unmarshal(e.Value, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return nil
}

// Marshal encodes the envelope for storage.
func (e Entry) Marshal() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return raw, nil
}

// UnmarshalEntry decodes an envelope previously produced by Entry.Marshal.
func UnmarshalEntry(raw []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return e, nil
}

// ttlSeconds rounds sub-second TTLs up so a positive ttl never turns into "no expiry".
func ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	return secs
}
