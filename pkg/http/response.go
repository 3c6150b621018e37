package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// ErrorMessageResponse writes {"error": message}.
func ErrorMessageResponse(c echo.Context, statusCode int, message string) error {
	return c.JSON(statusCode, ErrorBody{Error: message})
}

// ErrorResponse is the single boundary turning any error into a JSON error body.
// AppErrors keep their status; everything else is a 500 with the stringified cause.
func ErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return ErrorMessageResponse(c, appErr.Status, appErr.Message)
	}
	return ErrorMessageResponse(c, http.StatusInternalServerError, err.Error())
}

// HTTPErrorHandler renders echo's own errors (404, 405, ...) as JSON error bodies.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		if he.Code == http.StatusNotFound {
			_ = ErrorResponse(c, NotFoundError(msg))
			return
		}
		_ = ErrorMessageResponse(c, he.Code, msg)
		return
	}
	_ = ErrorResponse(c, err)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// HealthHandler runs every check and answers 503 with the failures if any check fails.
func HealthHandler(checks map[string]HealthCheck, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		body := HealthBody{Status: "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				if body.Checks == nil {
					body.Checks = make(map[string]string)
				}
				body.Checks[name] = err.Error()
				body.Status = "degraded"
			}
		}
		if body.Checks != nil {
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}

// RawJSONResponse encodes payload without HTML escaping, so upstream text is relayed byte-for-byte.
func RawJSONResponse(c echo.Context, statusCode int, payload interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return ErrorResponse(c, UnexpectedError(err))
	}
	return c.Blob(statusCode, echo.MIMEApplicationJSON, buf.Bytes())
}
