package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewMiddlewareRequiresParser(t *testing.T) {
	if _, err := NewMiddleware(nil); err == nil {
		t.Fatalf("expected error when parser is nil")
	}
}

func TestMiddlewareInjectsTokenIntoContext(t *testing.T) {
	parser := &fakeParser{token: stubToken{raw: "signed", claims: Claims{Subject: "u-1"}}}
	middleware, err := NewMiddleware(parser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer source-token")
	res := httptest.NewRecorder()

	var invoked bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invoked = true
		token, ok := TokenFromContext(r.Context())
		if !ok || token.Raw() != "signed" {
			t.Fatalf("token missing from context")
		}
		if sub, ok := SubjectFromContext(r.Context()); !ok || sub != "u-1" {
			t.Fatalf("SubjectFromContext() = %q, %v", sub, ok)
		}
	})

	middleware.Handler(next).ServeHTTP(res, req)

	if !invoked {
		t.Fatalf("expected next handler to be invoked")
	}
	if parser.raw != "source-token" {
		t.Fatalf("parser received %q", parser.raw)
	}
}

func TestMiddlewareSkipperShortCircuits(t *testing.T) {
	parser := &fakeParser{token: stubToken{raw: "signed"}}
	middleware, err := NewMiddleware(parser, WithSkipper(func(r *http.Request) bool {
		return r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/health")
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var invoked bool
	handler := middleware.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { invoked = true }))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if !invoked {
		t.Fatalf("expected handler invocation")
	}
	if parser.raw != "" {
		t.Fatalf("parser should not be called when skipped")
	}

	invoked = false
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/health", nil))
	if invoked || res.Code != http.StatusUnauthorized {
		t.Fatalf("unskipped request without token: invoked=%v status=%d", invoked, res.Code)
	}
}

func TestMiddlewareCustomErrorHandler(t *testing.T) {
	parser := &fakeParser{err: ErrJWTExpired}
	var received error
	middleware, err := NewMiddleware(parser, WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
		received = err
		w.WriteHeader(http.StatusTeapot)
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer stale")
	res := httptest.NewRecorder()
	middleware.Handler(nil).ServeHTTP(res, req)

	if res.Code != http.StatusTeapot {
		t.Fatalf("status = %d", res.Code)
	}
	if !errors.Is(received, ErrJWTExpired) {
		t.Fatalf("handler received %v", received)
	}
}

func TestMiddlewareRequiredRoles(t *testing.T) {
	seller := &fakeParser{token: stubToken{raw: "t", claims: Claims{Subject: "u-1", Roles: []string{"seller"}}}}
	middleware, _ := NewMiddleware(seller, WithRequiredRoles(RoleAdmin))

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/cache", nil)
	req.Header.Set("Authorization", "Bearer t")
	res := httptest.NewRecorder()
	middleware.Handler(nil).ServeHTTP(res, req)
	if res.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", res.Code)
	}

	admin := &fakeParser{token: stubToken{raw: "t", claims: Claims{Subject: "u-2", Roles: []string{"seller", RoleAdmin}}}}
	middleware, _ = NewMiddleware(admin, WithRequiredRoles(RoleAdmin))
	authed, err := middleware.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if _, ok := TokenFromContext(authed.Context()); !ok {
		t.Fatalf("token missing after Authenticate")
	}
}

func TestMiddlewareHandlerPanicsOnNilMiddleware(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	var m *Middleware
	m.Handler(nil)
}

func TestTokenFromContextMissing(t *testing.T) {
	if _, ok := TokenFromContext(context.Background()); ok {
		t.Fatalf("expected no token")
	}
	//nolint:staticcheck // nil context is part of the contract.
	if _, ok := TokenFromContext(nil); ok {
		t.Fatalf("expected no token for nil context")
	}
	if _, ok := SubjectFromContext(WithToken(context.Background(), stubToken{})); ok {
		t.Fatalf("empty subject must not authenticate")
	}
}

type fakeParser struct {
	token Token
	err   error
	raw   string
}

func (p *fakeParser) ParseToken(_ context.Context, raw string) (Token, error) {
	p.raw = raw
	if p.err != nil {
		return nil, p.err
	}
	return p.token, nil
}

type stubToken struct {
	raw    string
	claims Claims
}

func (t stubToken) Raw() string    { return t.raw }
func (t stubToken) Claims() Claims { return t.claims }
