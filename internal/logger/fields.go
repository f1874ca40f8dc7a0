package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the processing job ID
	FieldJobID = "job_id"

	// FieldCorrelationID is the correlation ID shared between a webhook
	// event and its job
	FieldCorrelationID = "correlation_id"

	// FieldStage is the current workflow stage
	FieldStage = "stage"

	// FieldDeliveryID is the GitHub webhook delivery ID
	FieldDeliveryID = "delivery_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldRepository is the GitHub repository (owner/name)
	FieldRepository = "repository"

	// FieldIssueNumber is the GitHub issue number
	FieldIssueNumber = "issue_number"
)

// Standard metric fields, attached at the log entry level.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
