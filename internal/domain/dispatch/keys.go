package dispatch

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Blob keys are derived from the execution id so that every artifact of an
// execution can be located from its record alone.

// UploadKey is where the dispatcher stores a single handed-off input.
func UploadKey(category, id, filename string) string {
	return fmt.Sprintf("uploads/%s/%s%s", category, id, normalizedExt(filename))
}

// UploadKeyIndexed is where the dispatcher stores the n-th input of a
// merge-style execution.
func UploadKeyIndexed(category, id string, n int, filename string) string {
	return fmt.Sprintf("uploads/%s/%s_%d%s", category, id, n, normalizedExt(filename))
}

// UploadPrefix is the shared key prefix of every input of an execution.
func UploadPrefix(category, id string) string {
	return fmt.Sprintf("uploads/%s/%s", category, id)
}

// ProcessedKey is where the compute tier is expected to store the output.
func ProcessedKey(category, id, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("processed/%s/%s%s", category, id, strings.ToLower(ext))
}

func normalizedExt(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
