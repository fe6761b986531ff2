// Package weather looks up current conditions for a city.
//
// Client talks to the weatherapi.com current-conditions endpoint. Service
// layers a response cache, the upstream resilience policy and a traced
// "weather.fetch" span on top, and is what the REST and MCP surfaces call.
package weather
