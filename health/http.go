package health

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Response is the JSON body of the detailed health endpoint.
type Response struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Checks    map[string]CheckResponse `json:"checks,omitempty"`
}

// CheckResponse is one entry of Response.Checks.
type CheckResponse struct {
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Liveness answers {"status":"OK"} while the process is up.
func Liveness() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "OK"})
	}
}

// Readiness runs every check and answers OK, DEGRADED (both 200) or
// UNHEALTHY (503).
func Readiness(agg *Aggregator) echo.HandlerFunc {
	return func(c echo.Context) error {
		status := Overall(agg.CheckAll(c.Request().Context()))
		switch status {
		case StatusHealthy:
			return c.String(http.StatusOK, "OK")
		case StatusDegraded:
			return c.String(http.StatusOK, "DEGRADED")
		default:
			return c.String(http.StatusServiceUnavailable, "UNHEALTHY")
		}
	}
}

// Detailed answers a per-check JSON report.
func Detailed(agg *Aggregator) echo.HandlerFunc {
	return func(c echo.Context) error {
		results := agg.CheckAll(c.Request().Context())
		status := Overall(results)

		resp := Response{
			Status:    status.String(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    make(map[string]CheckResponse, len(results)),
		}
		for name, r := range results {
			cr := CheckResponse{
				Status:   r.Status.String(),
				Message:  r.Message,
				Duration: r.Duration.String(),
				Details:  r.Details,
			}
			if r.Err != nil {
				cr.Error = r.Err.Error()
			}
			resp.Checks[name] = cr
		}

		code := http.StatusOK
		if status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, resp)
	}
}

// Register mounts /healthz, /readyz and /health on e.
func Register(e *echo.Echo, agg *Aggregator) {
	e.GET("/healthz", Liveness())
	e.GET("/readyz", Readiness(agg))
	e.GET("/health", Detailed(agg))
}
