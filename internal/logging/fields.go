package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEntityID is the standardized structured logging key for catalog entry identifiers.
	FieldEntityID = "entity_id"
	// FieldRunID is the standardized structured logging key for per-run correlation ids.
	FieldRunID = "run_id"
	// FieldEventType is the standardized structured logging key for machine-matchable event names.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator next steps.
	FieldErrorHint = "error_hint"
	// FieldArtifact is the standardized structured logging key for publish artifact identifiers.
	FieldArtifact = "artifact"
)
