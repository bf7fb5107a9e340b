package tool

import (
	"path/filepath"
	"strings"
)

// Descriptor is the static metadata for a registered plugin. It is immutable
// after registration; the registry hands out copies, never pointers into its
// own state.
type Descriptor struct {
	Name              string   `json:"name"`
	DisplayName       string   `json:"display_name"`
	Category          string   `json:"category"`
	Version           string   `json:"version"`
	AllowedExtensions []string `json:"allowed_extensions"`
	MaxInputBytes     int64    `json:"max_input_bytes"`
	SupportsBulk      bool     `json:"supports_bulk"`
	MinBatchFiles     int      `json:"min_batch_files,omitempty"`
	MaxBatchFiles     int      `json:"max_batch_files,omitempty"`

	// Handoff marks the tool as hand-off-capable: the dispatcher uploads the
	// input and delegates to the remote compute tier instead of running
	// Process in-process. Decided at registration time, never per call.
	Handoff bool `json:"handoff"`

	// RemoteAction is the trigger action segment for handoff tools
	// (POST {base}/{category}/{action}).
	RemoteAction string `json:"remote_action,omitempty"`

	// BulkMerge means a bulk submission produces a single execution over all
	// inputs (e.g. merging PDFs) rather than one result per file.
	BulkMerge bool `json:"bulk_merge,omitempty"`
}

// AllowsExtension reports whether the descriptor accepts the extension of the
// given filename. An empty allow-list accepts everything.
func (d Descriptor) AllowsExtension(filename string) bool {
	if len(d.AllowedExtensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, allowed := range d.AllowedExtensions {
		if strings.TrimPrefix(strings.ToLower(allowed), ".") == ext {
			return true
		}
	}
	return false
}
