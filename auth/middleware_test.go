package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newEcho(a Authenticator, cfg MiddlewareConfig) *echo.Echo {
	e := echo.New()
	e.Use(Middleware(a, cfg))
	e.GET("/whoami", func(c echo.Context) error {
		return c.String(http.StatusOK, PrincipalFromContext(c.Request().Context()))
	})
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func do(e *echo.Echo, path string, h http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range h {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	var seen error
	e := newEcho(NewAPIKeyAuthenticator("alpha"), MiddlewareConfig{
		Skipper: func(c echo.Context) bool { return c.Path() == "/healthz" },
		OnError: func(_ echo.Context, err error) { seen = err },
	})

	rec := do(e, "/whoami", header(APIKeyHeader, "alpha"))
	if rec.Code != http.StatusOK || rec.Body.String() != "key:"+HashAPIKey("alpha")[:8] {
		t.Errorf("authorized = %d %q", rec.Code, rec.Body.String())
	}

	rec = do(e, "/whoami", header(APIKeyHeader, "wrong"))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthorized = %d", rec.Code)
	}
	if rec.Header().Get(echo.HeaderWWWAuthenticate) == "" {
		t.Error("WWW-Authenticate should be set")
	}
	if seen != ErrInvalidCredentials {
		t.Errorf("OnError saw %v", seen)
	}

	if rec := do(e, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("skipped route = %d", rec.Code)
	}
}

func TestMiddleware_InternalError(t *testing.T) {
	e := newEcho(failingAuth{err: http.ErrHandlerTimeout}, MiddlewareConfig{})
	if rec := do(e, "/whoami", nil); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	e := newEcho(nil, MiddlewareConfig{})
	rec := do(e, "/whoami", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Errorf("disabled = %d %q", rec.Code, rec.Body.String())
	}
}
