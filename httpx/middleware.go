package httpx

import (
	"github.com/adeilh/unimart/auth"
)

// AuthMiddleware bridges auth.Middleware into echo. Rejections surface as
// HTTP errors so the server's error handler renders them.
func AuthMiddleware(mw *auth.Middleware) MiddlewareFunc {
	if mw == nil {
		return func(next HandlerFunc) HandlerFunc {
			return func(c Context) error {
				return HTTPError(StatusUnauthorized, "auth middleware missing")
			}
		}
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			req := c.Request()
			if mw.Skip(req) {
				return next(c)
			}
			authed, err := mw.Authenticate(req)
			if err != nil {
				if auth.StatusFor(err) == StatusUnauthorized {
					c.Response().Header().Set("WWW-Authenticate", `Bearer realm="unimart"`)
				}
				return HTTPError(auth.StatusFor(err), err.Error())
			}
			c.SetRequest(authed)
			return next(c)
		}
	}
}

// RequireRole rejects requests whose verified token lacks role. It must run
// after AuthMiddleware.
func RequireRole(role string) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			token, ok := auth.TokenFromContext(c.Request().Context())
			if !ok {
				return HTTPError(StatusUnauthorized, auth.ErrTokenNotFound.Error())
			}
			if !token.Claims().HasRole(role) {
				return HTTPErrorf(StatusForbidden, "%s: %s", auth.ErrForbidden.Error(), role)
			}
			return next(c)
		}
	}
}
