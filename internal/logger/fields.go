package logger

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Tracing fields, carried on the context logger through a job.
const (
	FieldRequestID  = "request_id"
	FieldJobID      = "job_id"
	FieldSheet      = "sheet" // original sheet name
	FieldTemplateID = "template_id"
	FieldComponent  = "component"
	FieldSource     = "source" // stored path of the uploaded workbook
)

// Metric fields, attached per call through Entry.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size" // bytes
	FieldStatus     = "status"
	FieldChunkIndex = "chunk_index"
)
