// Package services defines the error taxonomy shared across pipeline
// components. Sentinel markers classify failures as transient, permanent,
// parse, or publish; Wrap tags errors with a marker plus component context so
// callers can branch on errors.Is without string matching.
package services
