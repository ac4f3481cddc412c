package cache

import "strings"

// MatchPattern reports whether key matches the glob pattern using the subset
// of Redis MATCH syntax shared by every backend: '*' matches any run of bytes
// (including none), '?' matches exactly one byte and '\' escapes the next
// byte. Character classes are not supported.
func MatchPattern(pattern, key string) bool {
	p, k := 0, 0
	star, mark := -1, 0
	for k < len(key) {
		if p < len(pattern) {
			switch pattern[p] {
			case '*':
				star, mark = p, k
				p++
				continue
			case '?':
				p++
				k++
				continue
			case '\\':
				if p+1 < len(pattern) && pattern[p+1] == key[k] {
					p += 2
					k++
					continue
				}
			default:
				if pattern[p] == key[k] {
					p++
					k++
					continue
				}
			}
		}
		if star < 0 {
			return false
		}
		mark++
		p, k = star+1, mark
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// QuotePattern escapes glob metacharacters so s only matches itself.
func QuotePattern(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
