package marketcache

import (
	"strings"

	"github.com/adeilh/unimart/cache"
)

// Kind is the entity namespace a key belongs to.
type Kind string

const (
	KindProduct  Kind = "product"
	KindUser     Kind = "user"
	KindCategory Kind = "category"
	KindSearch   Kind = "search"
	// KindProducts holds generic paginated product listings.
	KindProducts Kind = "products"
	// KindResponse holds whole JSON responses keyed by request path.
	KindResponse Kind = "cache"
)

// Key composes "{kind}:{id}".
func Key(kind Kind, id string) string {
	return string(kind) + ":" + id
}

// AllOf matches every key of kind.
func AllOf(kind Kind) string {
	return string(kind) + ":*"
}

// ProductPatterns match the product's own key and keys nested under it,
// leaving product:10 alone when product 1 changes.
func ProductPatterns(id string) []string {
	return exactAndNested(KindProduct, id)
}

// UserPatterns match the user's profile key and keys nested under it.
func UserPatterns(id string) []string {
	return exactAndNested(KindUser, id)
}

func exactAndNested(kind Kind, id string) []string {
	exact := Key(kind, cache.QuotePattern(id))
	return []string{exact, exact + ":*"}
}

// CategoryPattern matches every cached page of a category listing.
func CategoryPattern(name string) string {
	return Key(KindCategory, cache.QuotePattern(CategoryName(name))) + ":*"
}

// ResponsePattern matches cached responses whose path starts with prefix.
func ResponsePattern(prefix string) string {
	return Key(KindResponse, cache.QuotePattern(prefix)) + "*"
}

// ResourcePatterns match the cached response for path itself, any query
// variant of it and any sub-path, but not sibling paths sharing its prefix.
func ResourcePatterns(path string) []string {
	exact := Key(KindResponse, cache.QuotePattern(path))
	return []string{exact, exact + cache.QuotePattern("?") + "*", exact + "/*"}
}

// CategoryName normalizes a category so "Books " and "books" share keys.
func CategoryName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CategoryID composes the identifier of one category listing page.
func CategoryID(name, page string) string {
	return CategoryName(name) + ":" + page
}
