// Package resolver orchestrates the cache-or-fetch decision for a batch of
// entity ids. Cached ids never touch the network; misses are fetched on a
// bounded worker pool with per-id locking and written through to the cache.
// Resolution follows partial-failure semantics: failures are collected per
// id alongside the successful record set.
package resolver
