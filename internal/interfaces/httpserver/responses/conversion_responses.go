package responses

import (
	"time"

	"toolhub/services/conversion-api/internal/domain/execution"
	"toolhub/services/conversion-api/internal/domain/tool"
)

// ToolPayload describes one registered tool in the catalog listing.
type ToolPayload struct {
	Name              string   `json:"name"`
	DisplayName       string   `json:"display_name"`
	Category          string   `json:"category"`
	Version           string   `json:"version"`
	AllowedExtensions []string `json:"allowed_extensions"`
	MaxInputBytes     int64    `json:"max_input_bytes"`
	SupportsBulk      bool     `json:"supports_bulk"`
	MinBatchFiles     int      `json:"min_batch_files,omitempty"`
	MaxBatchFiles     int      `json:"max_batch_files,omitempty"`
	Async             bool     `json:"async"`
}

// ToolListResponse is the catalog listing.
type ToolListResponse struct {
	Tools []ToolPayload `json:"tools"`
}

// NewToolPayload maps a descriptor onto its public representation. The
// handoff flag surfaces as "async" so clients know which response shape to
// expect from a convert call.
func NewToolPayload(d tool.Descriptor) ToolPayload {
	return ToolPayload{
		Name:              d.Name,
		DisplayName:       d.DisplayName,
		Category:          d.Category,
		Version:           d.Version,
		AllowedExtensions: d.AllowedExtensions,
		MaxInputBytes:     d.MaxInputBytes,
		SupportsBulk:      d.SupportsBulk,
		MinBatchFiles:     d.MinBatchFiles,
		MaxBatchFiles:     d.MaxBatchFiles,
		Async:             d.Handoff,
	}
}

// AsyncAcceptedResponse is returned with 202 when the work was handed off.
type AsyncAcceptedResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// SyncResultResponse is returned when an in-process tool produced a
// structured result instead of an artifact.
type SyncResultResponse struct {
	Tool   string `json:"tool"`
	Result any    `json:"result"`
}

// ExecutionPayload is the polled status of one execution.
type ExecutionPayload struct {
	ID              string            `json:"id"`
	ToolName        string            `json:"tool_name"`
	Status          string            `json:"status"`
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

// NewExecutionPayload maps a domain record onto the poll response.
func NewExecutionPayload(exec *execution.Execution) ExecutionPayload {
	return ExecutionPayload{
		ID:              exec.ID,
		ToolName:        exec.ToolName,
		Status:          exec.Status.String(),
		OutputRef:       exec.OutputRef,
		OutputBytes:     exec.OutputBytes,
		Parameters:      exec.Parameters,
		ErrorMessage:    exec.ErrorMessage,
		ErrorDetail:     exec.ErrorDetail,
		CreatedAt:       exec.CreatedAt,
		StartedAt:       exec.StartedAt,
		CompletedAt:     exec.CompletedAt,
		DurationSeconds: exec.DurationSeconds,
	}
}

// BulkItemPayload is the per-file entry of a bulk response.
type BulkItemPayload struct {
	Filename    string `json:"filename"`
	Accepted    bool   `json:"accepted"`
	ExecutionID string `json:"execution_id,omitempty"`
	Result      any    `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BulkResponse summarizes a multi-file submission. BatchID groups the
// resulting executions in logs and client bookkeeping.
type BulkResponse struct {
	BatchID  string            `json:"batch_id"`
	Tool     string            `json:"tool"`
	Total    int               `json:"total"`
	Accepted int               `json:"accepted"`
	Rejected int               `json:"rejected"`
	Items    []BulkItemPayload `json:"items"`
}
