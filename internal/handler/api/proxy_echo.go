package api

import (
	"errors"
	"net/http"

	"FinRelay/internal/usecase"
	xhttp "FinRelay/pkg/http"
	xlogger "FinRelay/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Route binds one provider instance to its inbound path.
type Route struct {
	Path       string
	Translator *usecase.Translator
}

// ProxyEchoHandler serves every configured provider instance.
type ProxyEchoHandler struct {
	logger *xlogger.Logger
	routes []Route
}

// NewProxyEchoHandler creates a handler for the given routes.
func NewProxyEchoHandler(logger *xlogger.Logger, routes []Route) *ProxyEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ProxyEchoHandler{logger: logger, routes: routes}
}

// RegisterRoutes mounts one GET route per provider instance.
func (h *ProxyEchoHandler) RegisterRoutes(e *echo.Echo) {
	for _, r := range h.routes {
		e.GET(r.Path, h.Proxy(r.Translator))
	}
}

// Proxy answers one inbound GET with the translated upstream payload.
func (h *ProxyEchoHandler) Proxy(tr *usecase.Translator) echo.HandlerFunc {
	provider := tr.Provider().Name
	return func(c echo.Context) error {
		res, err := tr.Translate(c.Request().Context(), c.QueryParams())
		if err != nil {
			h.logError(provider, c, err)
			return xhttp.ErrorResponse(c, err)
		}

		if env := res.Envelope; env.Status != "" || res.Status != http.StatusOK {
			h.logger.Warn("upstream failure",
				xlogger.String("provider", provider),
				xlogger.String("endpoint", env.Endpoint),
				xlogger.Int("upstream_status", env.HTTPStatus),
				xlogger.Int("status", res.Status),
			)
		}
		c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
		return xhttp.RawJSONResponse(c, res.Status, res.Envelope)
	}
}

func (h *ProxyEchoHandler) logError(provider string, c echo.Context, err error) {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) && appErr.Status < http.StatusInternalServerError {
		h.logger.Debug("rejected request",
			xlogger.String("provider", provider),
			xlogger.String("path", c.Path()),
			xlogger.Error(err),
		)
		return
	}
	h.logger.Error("proxy request failed",
		xlogger.String("provider", provider),
		xlogger.String("path", c.Path()),
		xlogger.Error(err),
	)
}

var _ xhttp.Handler = (*ProxyEchoHandler)(nil)
