package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCityRequired is returned for a blank city.
	ErrCityRequired = errors.New("weather: city is required")

	// ErrCityNotFound is returned when the upstream has no matching location.
	ErrCityNotFound = errors.New("weather: city not found")

	// ErrUpstream marks any other failure talking to the weather API.
	ErrUpstream = errors.New("weather: upstream error")

	// ErrTooManyCities is returned when a batch exceeds MaxBatchSize.
	ErrTooManyCities = fmt.Errorf("weather: at most %d cities per batch", MaxBatchSize)
)

// weatherapi.com error code for "No matching location found."
const codeNoLocation = 1006

// UpstreamError describes a non-2xx answer from the weather API.
type UpstreamError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("weather: upstream status %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("weather: upstream status %d", e.StatusCode)
}

func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstream:
		return true
	case ErrCityNotFound:
		return e.Code == codeNoLocation
	}
	return false
}

// IsTransient reports whether retrying the same request could succeed.
// Caller errors (blank or unknown city, rejected key, bad request) and
// cancellation are permanent.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrCityRequired) || errors.Is(err, ErrTooManyCities) || errors.Is(err, context.Canceled) {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode == http.StatusTooManyRequests || ue.StatusCode >= 500
	}
	return true
}
