// Package cache keeps recent upstream weather reports so repeated lookups
// for the same city within the TTL skip the upstream call.
//
// Cache stores opaque bytes with a TTL. Loader layers a typed, JSON-encoded
// read-through on top and collapses concurrent misses for the same key into
// a single fetch.
package cache
