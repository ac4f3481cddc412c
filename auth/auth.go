package auth

import (
	"context"
	"slices"
	"time"
)

// RoleAdmin grants access to cache maintenance endpoints.
const RoleAdmin = "admin"

// Claims is the verified payload of a bearer token issued by the external
// auth provider.
type Claims struct {
	ID        string
	Subject   string
	Email     string
	Roles     []string
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole reports whether the claims carry role.
func (c Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// Token exposes a verified token.
type Token interface {
	Raw() string
	Claims() Claims
}

// TokenParser verifies a raw bearer token.
type TokenParser interface {
	ParseToken(ctx context.Context, raw string) (Token, error)
}

type tokenContextKey struct{}

// WithToken returns a copy of ctx carrying token.
func WithToken(ctx context.Context, token Token) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the token injected by the middleware.
func TokenFromContext(ctx context.Context) (Token, bool) {
	if ctx == nil {
		return nil, false
	}
	token, ok := ctx.Value(tokenContextKey{}).(Token)
	return token, ok
}

// SubjectFromContext returns the authenticated user id, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	token, ok := TokenFromContext(ctx)
	if !ok || token == nil {
		return "", false
	}
	sub := token.Claims().Subject
	return sub, sub != ""
}
