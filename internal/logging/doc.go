// Package logging wires log/slog for kitsusync.
//
// It builds console and JSON handlers with multi-destination output, exposes
// Attr helper aliases and the standardized field keys used across components,
// and provides NewNop plus NewComponentLogger so every component can accept an
// optional logger and default to a no-op sink.
package logging
