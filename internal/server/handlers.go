package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/josephpugh/weather-mcp/weather"
)

// BatchRequest is the body of POST /get_weather/batch.
type BatchRequest struct {
	Cities []string `json:"cities"`
}

// BatchResponse is the answer of POST /get_weather/batch.
type BatchResponse struct {
	Results []weather.Result `json:"results"`
}

func (s *Server) getWeather(c echo.Context) error {
	var req weather.Request
	if err := c.Bind(&req); err != nil {
		return err
	}
	report, err := s.svc.Lookup(c.Request().Context(), req.City)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) getWeatherBatch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	results, err := s.svc.LookupMany(c.Request().Context(), req.Cities)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BatchResponse{Results: results})
}
