// Package publish pushes run artifacts (database, summary) to a destination.
// Each artifact is attempted independently and failures are collected into an
// operator-facing report keyed by artifact id; one failure never aborts the
// batch. Destinations must treat re-publishing as a deterministic overwrite.
package publish
