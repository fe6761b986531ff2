package weather

import "strings"

// Request is the body of a single lookup.
type Request struct {
	City string `json:"city"`
}

// Report is the current weather for one city.
type Report struct {
	Condition string  `json:"condition"`
	TempF     float64 `json:"temp_f"`
	WindMPH   float64 `json:"wind_mph"`
}

// Result pairs a city with its lookup outcome in a batch.
type Result struct {
	City   string  `json:"city"`
	Report *Report `json:"report,omitempty"`
	Error  string  `json:"error,omitempty"`
	Err    error   `json:"-"`
}

// NormalizeCity trims surrounding whitespace and validates the city.
func NormalizeCity(city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", ErrCityRequired
	}
	return city, nil
}
