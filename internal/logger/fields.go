package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried by context loggers.
const (
	FieldRequestID  = "request_id"
	FieldRunID      = "run_id"
	FieldCampaignID = "campaign_id"
	FieldUserID     = "user_id"
	FieldStage      = "stage"
	FieldComponent  = "component"
)

// Metric fields, attached per line through Entry.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldFailed     = "failed" // failed item count
	FieldSize       = "size"   // bytes
	FieldStatus     = "status"
)
