// Package library builds and serves the normalized catalog database.
//
// Ingestion reduces heterogeneous raw API payloads to a fixed relational
// schema backed by SQLite. Each expected field is tracked as a tri-state
// (present, absent, malformed) so schema stays uniform across entities whose
// payloads differ in completeness. Writes are per-id upserts: re-ingesting an
// entity replaces its row entirely. The read surface (GetByID, List, Count)
// is what the summary exporter and the dashboard layer consume; neither
// writes.
package library
