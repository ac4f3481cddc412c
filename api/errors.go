package api

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/adeilh/unimart/httpx"
	"github.com/adeilh/unimart/market"
)

// toHTTP maps domain errors onto HTTP errors. Unknown failures are logged
// and reported without detail.
func (h *Handler) toHTTP(c httpx.Context, err error) error {
	switch {
	case errors.Is(err, market.ErrProductNotFound), errors.Is(err, market.ErrUserNotFound):
		return httpx.HTTPError(httpx.StatusNotFound, err.Error())
	case errors.Is(err, market.ErrInvalidInput):
		return httpx.HTTPError(httpx.StatusBadRequest, err.Error())
	case errors.Is(err, market.ErrForbidden):
		return httpx.HTTPError(httpx.StatusForbidden, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return httpx.HTTPError(httpx.StatusServiceUnavailable, "request timed out")
	}
	h.logger.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err))
	return httpx.HTTPError(httpx.StatusInternalError, "internal error")
}

// ErrorHandler renders every error as {"error": msg}. Domain errors that
// reach it unconverted get the same status mapping as handler errors.
func (h *Handler) ErrorHandler() httpx.HTTPErrorHandler {
	return func(err error, c httpx.Context) {
		if !httpx.IsHTTPError(err) {
			err = h.toHTTP(c, err)
		}
		httpx.DefaultErrorHandler(err, c)
	}
}

func badRequest(msg string) error {
	return httpx.HTTPError(httpx.StatusBadRequest, msg)
}
