package logging

// Standardized attribute keys used across the codebase so log lines stay
// greppable regardless of which component emitted them.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
	FieldJobID     = "job_id"
	FieldState     = "state"
	FieldPath      = "path"
)
