package auth

import (
	"fmt"
	"net/http"
)

// Middleware authenticates requests and injects the verified token into the
// request context.
type Middleware struct {
	parser       TokenParser
	extractor    TokenExtractor
	skipper      MiddlewareSkipper
	errorHandler MiddlewareErrorHandler
	roles        []string
}

func NewMiddleware(parser TokenParser, opts ...MiddlewareOption) (*Middleware, error) {
	cfg, err := newMiddlewareConfig(parser, opts...)
	if err != nil {
		return nil, err
	}
	return &Middleware{
		parser:       cfg.parser,
		extractor:    cfg.extractor,
		skipper:      cfg.skipper,
		errorHandler: cfg.errorHandler,
		roles:        cfg.roles,
	}, nil
}

// Authenticate extracts and verifies the token of r without writing a
// response. It returns r with the token in its context.
func (m *Middleware) Authenticate(r *http.Request) (*http.Request, error) {
	raw, err := m.extractor(r)
	if err != nil {
		return r, err
	}
	token, err := m.parser.ParseToken(r.Context(), raw)
	if err != nil {
		return r, err
	}
	claims := token.Claims()
	for _, role := range m.roles {
		if !claims.HasRole(role) {
			return r, fmt.Errorf("%w: %s", ErrForbidden, role)
		}
	}
	return r.WithContext(WithToken(r.Context(), token)), nil
}

// Skip reports whether r bypasses authentication.
func (m *Middleware) Skip(r *http.Request) bool { return m.skipper(r) }

func (m *Middleware) Handler(next http.Handler) http.Handler {
	if m == nil {
		panic("auth: middleware is nil")
	}
	if next == nil {
		next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipper(r) {
			next.ServeHTTP(w, r)
			return
		}
		authed, err := m.Authenticate(r)
		if err != nil {
			m.errorHandler(w, r, err)
			return
		}
		next.ServeHTTP(w, authed)
	})
}
