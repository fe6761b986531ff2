package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// MiddlewareConfig configures Middleware.
type MiddlewareConfig struct {
	Skipper middleware.Skipper

	// OnError observes rejected and failed authentications.
	OnError func(c echo.Context, err error)
}

// Middleware authenticates each request with a. Rejections answer 401;
// internal errors answer 500. A nil a passes requests through with the
// anonymous identity.
func Middleware(a Authenticator, cfg MiddlewareConfig) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = middleware.DefaultSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}
			req := c.Request()

			id := Anonymous()
			if a != nil {
				var err error
				id, err = a.Authenticate(req.Context(), req.Header)
				if err != nil {
					if cfg.OnError != nil {
						cfg.OnError(c, err)
					}
					if IsAuthError(err) {
						c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="weather-mcp"`)
						return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized").SetInternal(err)
					}
					return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
				}
			}

			c.SetRequest(req.WithContext(WithIdentity(req.Context(), id)))
			return next(c)
		}
	}
}
