// Package cachestore persists raw catalog API responses on disk, one JSON
// document per entity id. Presence of an entry means "trust it": entries are
// never expired automatically, only overwritten or removed by the caller.
package cachestore
