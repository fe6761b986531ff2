// Package secret resolves credentials referenced from configuration, such
// as the upstream weather API key.
//
// A configured value may be:
//   - a literal: "abc123"
//   - an environment expansion: "${WEATHER_API_KEY}" (missing vars error)
//   - a provider reference: "secretref:env:WEATHER_API_KEY" or
//     "secretref:file:/run/secrets/weather_api_key"
//
// References may also appear inline, e.g. "Bearer secretref:env:TOKEN".
// Resolved values must never be logged.
package secret
