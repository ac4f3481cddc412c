package marketcache

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/adeilh/unimart/cache"
)

// numericFields lists the query fields whose string values are read as
// numbers. Free-text filters such as search and category always stay text.
var numericFields = map[string]bool{
	"page":     true,
	"limit":    true,
	"offset":   true,
	"minPrice": true,
	"maxPrice": true,
}

// EncodeQuery turns a query object into a deterministic key identifier.
// Logically equal queries encode identically: object keys are sorted,
// strings are trimmed, empty values are dropped and numeric fields accept
// either form, so {"page":"2"} and {"page":2} share a cache entry while
// {"search":"1.0"} and {"search":"1"} do not.
func EncodeQuery(q any) (string, error) {
	raw, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("%w: encode query: %v", cache.ErrSerialization, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("%w: encode query: %v", cache.ErrSerialization, err)
	}
	normalized := normalize(generic, false)
	if normalized == nil {
		normalized = map[string]any{}
	}
	// encoding/json writes map keys in sorted order.
	canonical, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: encode query: %v", cache.ErrSerialization, err)
	}
	return base64.RawURLEncoding.EncodeToString(canonical), nil
}

// DecodeQuery reverses EncodeQuery into a generic map, for diagnostics.
func DecodeQuery(id string) (map[string]any, error) {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: decode query: %v", cache.ErrSerialization, err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode query: %v", cache.ErrSerialization, err)
	}
	return out, nil
}

func normalize(v any, numericField bool) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if n := normalize(item, numericFields[k]); n != nil {
				out[k] = n
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if n := normalize(item, numericField); n != nil {
				out = append(out, n)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		if numericField {
			if n, ok := numeric(s); ok {
				return n
			}
		}
		return s
	case json.Number:
		if n, ok := numeric(val.String()); ok {
			return n
		}
		return val.String()
	default:
		return val
	}
}

// numeric canonicalizes decimal text: integral values become int64, the
// rest float64. Anything else (hex, inf, ids with leading zeros) stays text.
func numeric(s string) (any, bool) {
	if len(s) > 1 && s[0] == '0' && s[1] != '.' {
		return nil, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || strings.ContainsAny(s, "xXnN") {
		return nil, false
	}
	if f == float64(int64(f)) && f < 1<<53 && f > -(1<<53) {
		return int64(f), true
	}
	return f, true
}
