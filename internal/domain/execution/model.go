package execution

import "time"

// Execution is the durable record tracking one invocation. The id is the
// correlation key across the request/response boundary, the blob path
// namespace and the remote trigger payload. Once the record enters a
// terminal state it is append-only: no field mutates afterwards.
type Execution struct {
	ID              string            `json:"id"`
	ToolName        string            `json:"tool_name"`
	Category        string            `json:"category"`
	Status          Status            `json:"status"`
	InputRef        string            `json:"input_ref,omitempty"`
	OutputRef       string            `json:"output_ref,omitempty"`
	OutputBytes     int64             `json:"output_bytes,omitempty"`
	Parameters      map[string]string `json:"parameters,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	ErrorDetail     string            `json:"error_detail,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	DurationSeconds *float64          `json:"duration_seconds,omitempty"`
}

// CreateParams captures everything known when the dispatcher persists a new
// pending record.
type CreateParams struct {
	ID         string
	ToolName   string
	Category   string
	InputRef   string
	Parameters map[string]string
}

// CallbackUpdate is the inbound terminal update from whichever executor
// finished the work.
type CallbackUpdate struct {
	Status       Status
	OutputRef    string
	OutputBytes  int64
	ErrorMessage string
	ErrorDetail  string
}
