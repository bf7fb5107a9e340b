package tool

import (
	"context"
	"errors"
	"fmt"
)

// ErrRemoteOnly is returned by Process on handoff-capable plugins; the
// dispatcher never calls Process for them, so seeing this error means a
// caller bypassed the capability flag.
var ErrRemoteOnly = errors.New("tool runs on the remote compute tier")

// Input carries one file submitted for conversion together with its
// tool-specific parameters. The orchestration layer never interprets Params.
type Input struct {
	Filename string
	Data     []byte
	Params   map[string]string
}

// Output is the polymorphic result of a synchronous Process call. Artifact
// tools set Name, MIME and Data; results-as-JSON tools set JSON and leave
// Name empty. Callers branch on Name.
type Output struct {
	Name string
	MIME string
	Data []byte
	JSON any
}

// IsArtifact reports whether the output carries artifact bytes rather than a
// structured result.
func (o *Output) IsArtifact() bool {
	return o != nil && o.Name != ""
}

// ValidationError is the normal outcome of rejecting bad input. It is a
// value, not a failure: Validate must never have side effects and must never
// surface expected bad input as anything else.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Rejectf builds a ValidationError.
func Rejectf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is an expected input rejection.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Plugin is the uniform contract every conversion tool implements.
type Plugin interface {
	// Metadata returns the static descriptor the plugin was registered with.
	Metadata() Descriptor

	// Validate inspects the input and returns a *ValidationError when it is
	// rejected. It must not mutate state.
	Validate(ctx context.Context, in Input) error

	// Process runs the conversion in-process and returns the output. Handoff
	// plugins return ErrRemoteOnly; the dispatcher routes them to the remote
	// tier instead.
	Process(ctx context.Context, in Input) (*Output, error)

	// Cleanup removes local temporary artifacts, best effort. Failures are
	// logged by the implementation and never propagated, so cleanup can never
	// mask the outcome of Process.
	Cleanup(paths ...string)
}

// BulkPlugin is implemented by tools that accept multiple files at once.
type BulkPlugin interface {
	Plugin

	// ValidateBatch enforces the tool's min/max file counts before the
	// per-file path runs.
	ValidateBatch(ctx context.Context, inputs []Input) error
}

// ValidateBatchSize is the shared count check bulk tools delegate to.
func ValidateBatchSize(d Descriptor, count int) error {
	if !d.SupportsBulk {
		return Rejectf("tool %s does not support bulk submissions", d.Name)
	}
	if d.MinBatchFiles > 0 && count < d.MinBatchFiles {
		return Rejectf("at least %d files are required, got %d", d.MinBatchFiles, count)
	}
	if d.MaxBatchFiles > 0 && count > d.MaxBatchFiles {
		return Rejectf("at most %d files are allowed, got %d", d.MaxBatchFiles, count)
	}
	return nil
}

// ValidateCommon is the baseline validation every plugin shares: extension
// allow-list and size ceiling from the descriptor.
func ValidateCommon(d Descriptor, in Input) error {
	if len(in.Data) == 0 {
		return Rejectf("file is empty")
	}
	if d.MaxInputBytes > 0 && int64(len(in.Data)) > d.MaxInputBytes {
		return Rejectf("file exceeds max size of %d bytes", d.MaxInputBytes)
	}
	if !d.AllowsExtension(in.Filename) {
		return Rejectf("unsupported file extension for %s", d.Name)
	}
	return nil
}
