package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/josephpugh/weather-mcp/observe"
	"github.com/josephpugh/weather-mcp/resilience"
	"github.com/josephpugh/weather-mcp/weather"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorHandler maps lookup failures to HTTP statuses. 5xx answers are logged.
func ErrorHandler(log observe.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, detail := classify(err)
		if status >= http.StatusInternalServerError {
			log.Error(c.Request().Context(), "request error",
				observe.Field{Key: "status", Value: status},
				observe.Field{Key: "error", Value: err},
			)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, ErrorBody{Error: detail})
	}
}

func classify(err error) (int, ErrorDetail) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, ErrorDetail{Code: codeFor(he.Code), Message: msg}
	case errors.Is(err, weather.ErrCityRequired), errors.Is(err, weather.ErrTooManyCities):
		return http.StatusBadRequest, ErrorDetail{Code: "bad_request", Message: err.Error()}
	case errors.Is(err, weather.ErrCityNotFound):
		return http.StatusNotFound, ErrorDetail{Code: "city_not_found", Message: err.Error()}
	case resilience.IsRejection(err):
		return http.StatusServiceUnavailable, ErrorDetail{Code: "unavailable", Message: "weather service is temporarily unavailable"}
	case errors.Is(err, resilience.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorDetail{Code: "upstream_timeout", Message: "weather service timed out"}
	default:
		return http.StatusBadGateway, ErrorDetail{Code: "upstream_error", Message: "weather lookup failed"}
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	if status >= http.StatusInternalServerError {
		return "internal_error"
	}
	return "error"
}
