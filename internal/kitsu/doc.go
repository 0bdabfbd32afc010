// Package kitsu implements the upstream catalog API client.
//
// FetchAnime performs exactly one round trip per call and classifies failures
// into the shared transient/permanent taxonomy so the resolver can decide
// what to retry. Listing helpers resolve a username to the set of anime ids
// in that user's library, which supplies the id batch the pipeline consumes.
package kitsu
