// Package summary derives the flattened CSV extract of the catalog database.
// The summary has no lifecycle of its own: it is a deterministic projection
// of current database contents and may be discarded and rebuilt freely.
package summary
