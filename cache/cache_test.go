package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"product:*", "product:42", true},
		{"product:*", "product:", true},
		{"product:*", "products:pageA", false},
		{"products:*", "products:pageA", true},
		{"products:*", "user:7", false},
		{"*", "", true},
		{"*", "anything:at:all", true},
		{"user:?", "user:7", true},
		{"user:?", "user:42", false},
		{"category:books*", "category:books:eyJwYWdlIjoxfQ", true},
		{"cache:/api/products*", "cache:/api/products?page=2", true},
		{"cache:/api/products*", "cache:/api/users/1", false},
		{"*:42", "product:42", true},
		{"a*b*c", "a-x-b-y-c", true},
		{"a*b*c", "a-x-b-y", false},
		{`category:a\*b`, "category:a*b", true},
		{`category:a\*b`, "category:axb", false},
		{"exact", "exact", true},
		{"exact", "exactly", false},
	}
	for _, tc := range cases {
		if got := MatchPattern(tc.pattern, tc.key); got != tc.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", tc.pattern, tc.key, got, tc.want)
		}
	}
}

func TestQuotePattern(t *testing.T) {
	raw := "shoes*[new]?"
	quoted := QuotePattern(raw)
	if !MatchPattern(quoted, raw) {
		t.Fatalf("quoted pattern %q does not match its source", quoted)
	}
	if MatchPattern(quoted, "shoes-and-more[new]!") {
		t.Fatalf("quoted pattern %q behaves like a glob", quoted)
	}
	if QuotePattern("plain") != "plain" {
		t.Fatalf("QuotePattern altered a plain string")
	}
}

func TestEntryValidity(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	entry, err := NewEntry(map[string]string{"name": "Desk"}, now, 2*time.Second)
	if err != nil {
		t.Fatalf("NewEntry() error = %v", err)
	}

	if !entry.Valid(now) || !entry.Valid(now.Add(1999*time.Millisecond)) {
		t.Fatalf("entry should be valid before its ttl elapses")
	}
	if entry.Valid(now.Add(2 * time.Second)) {
		t.Fatalf("entry must be invalid once elapsed == ttl")
	}
	if got := entry.Remaining(now.Add(500 * time.Millisecond)); got != 1500*time.Millisecond {
		t.Fatalf("Remaining() = %v, want 1.5s", got)
	}
	if got := entry.Remaining(now.Add(time.Hour)); got != 0 {
		t.Fatalf("Remaining() after expiry = %v, want 0", got)
	}

	forever, _ := NewEntry("x", now, 0)
	if !forever.Valid(now.Add(24 * 365 * time.Hour)) {
		t.Fatalf("entry without ttl should never expire")
	}

	subSecond, _ := NewEntry("x", now, 10*time.Millisecond)
	if subSecond.TTLSeconds != 1 {
		t.Fatalf("sub-second ttl rounded to %d, want 1", subSecond.TTLSeconds)
	}
}

func TestEntryRoundTripAndErrors(t *testing.T) {
	now := time.Now()
	entry, err := NewEntry(map[string]any{"name": "Desk", "price": 40}, now, time.Minute)
	if err != nil {
		t.Fatalf("NewEntry() error = %v", err)
	}
	raw, err := entry.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	decoded, err := UnmarshalEntry(raw)
	if err != nil {
		t.Fatalf("UnmarshalEntry() error = %v", err)
	}
	var out struct {
		Name string `json:"name"`
	}
	if err := decoded.Decode(&out); err != nil || out.Name != "Desk" {
		t.Fatalf("Decode() = %+v, %v", out, err)
	}

	if _, err := NewEntry(make(chan int), now, time.Minute); !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization for unsupported value, got %v", err)
	}
	if _, err := UnmarshalEntry([]byte("not-json")); !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization for garbage, got %v", err)
	}
}

func TestKind(t *testing.T) {
	cases := map[string]error{
		"ok":            nil,
		"miss":          ErrNotFound,
		"serialization": fmt.Errorf("decode: %w", ErrSerialization),
		"timeout":       context.DeadlineExceeded,
		"unavailable":   fmt.Errorf("%w: dial tcp: refused", ErrUnavailable),
	}
	for want, err := range cases {
		if got := Kind(err); got != want {
			t.Errorf("Kind(%v) = %q, want %q", err, got, want)
		}
	}
	if !IsMiss(fmt.Errorf("wrapped: %w", ErrNotFound)) {
		t.Fatalf("IsMiss should see through wrapping")
	}
}
