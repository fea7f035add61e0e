package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Tracing Fields (Context level)
// Propagated through the call chain of one harvest run
// ============================================

const (
	// FieldRunID is the harvest run ID (UUID)
	FieldRunID = "run_id"

	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldStage is the pipeline stage currently executing
	FieldStage = "stage"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSource is the source variant identifier (social, feed)
	FieldSource = "source"

	// FieldQuery is the discovery query (hashtag, account, feed URL)
	FieldQuery = "query"

	// FieldItemID is the external ID of the item being processed
	FieldItemID = "item_id"
)

// ============================================
// Metric Fields (Entry level)
// Used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldFailed is the number of failed items in a stage
	FieldFailed = "failed"

	// FieldStatus is the operation or run status
	FieldStatus = "status"

	// FieldSize is the response size in bytes
	FieldSize = "size"
)
