// Package config loads, normalizes, and validates kitsusync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and centralizes every knob the CLI and
// pipeline need: cache and database locations, upstream API rate limits and
// retry policy, worker counts, and publish destinations.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical modes, and clear validation errors.
package config
