package library

import (
	"encoding/json"
	"time"
)

// FieldState distinguishes the three shapes a source field can arrive in.
// Downstream consumers must handle all three; there is no null.
type FieldState int

const (
	// FieldAbsent means the payload did not carry the field (or carried JSON null).
	FieldAbsent FieldState = iota
	// FieldPresent means the field decoded (possibly via safe coercion) to the expected type.
	FieldPresent
	// FieldMalformed means the field was present but not safely convertible;
	// the row is flagged and the original payload retained.
	FieldMalformed
)

// Field is one normalized column value tagged with its source state.
type Field[T any] struct {
	State FieldState
	Value T
}

// Present wraps a decoded value.
func Present[T any](value T) Field[T] {
	return Field[T]{State: FieldPresent, Value: value}
}

// IsPresent reports whether the field carries a usable value.
func (f Field[T]) IsPresent() bool {
	return f.State == FieldPresent
}

// Row is the fixed-schema representation of one catalog entry. Every entity
// in the database has exactly one Row; re-ingestion replaces it entirely.
type Row struct {
	ID             string
	CanonicalTitle Field[string]
	Subtype        Field[string]
	Status         Field[string]
	AverageRating  Field[float64]
	EpisodeCount   Field[int64]
	StartDate      Field[string]
	AgeRating      Field[string]
	Synopsis       Field[string]

	// Flagged marks rows where at least one field was malformed. The original
	// payload is retained in RawJSON for diagnostics on flagged rows only.
	Flagged     bool
	ParseErrors []string
	RawJSON     json.RawMessage
	IngestedAt  time.Time
}

// Report summarizes one ingestion run. Failures hold the records that could
// not produce a row at all; flagged rows are ingested and counted separately.
type Report struct {
	Ingested int
	Flagged  int
	Failures map[string]error
}

// HasFailures reports whether any record was rejected outright.
func (r *Report) HasFailures() bool {
	return len(r.Failures) > 0
}
