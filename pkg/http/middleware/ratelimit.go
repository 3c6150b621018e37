package middleware

import (
	"context"
	"net/http"

	applogger "FinRelay/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit rejects callers over their budget with 429. Limiter errors fail open.
// Paths in skip bypass the limiter.
func RateLimit(lim Limiter, l *applogger.Logger, skip ...string) echo.MiddlewareFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if lim == nil || skipped[c.Path()] {
				return next(c)
			}
			key := c.RealIP()
			ok, err := lim.Allow(c.Request().Context(), key)
			if err != nil {
				if l != nil {
					l.Warn("rate limiter unavailable, allowing request", applogger.Error(err))
				}
				return next(c)
			}
			if !ok {
				if l != nil {
					l.Warn("rate limited", applogger.String("remote", key), applogger.String("path", c.Path()))
				}
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
			}
			return next(c)
		}
	}
}
