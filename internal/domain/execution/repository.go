package execution

import (
	"context"
	"time"
)

// Repository defines persistence operations for execution records. Updates
// that move a record into or out of a state must be guarded so that a racing
// duplicate callback cannot mutate a record that is already terminal;
// implementations signal a lost race by returning applied=false.
type Repository interface {
	Create(ctx context.Context, exec *Execution) error
	GetByID(ctx context.Context, id string) (*Execution, error)

	// MarkProcessing flips pending -> processing and stamps StartedAt. It is
	// a no-op (applied=false) when the record already left pending.
	MarkProcessing(ctx context.Context, id string, startedAt time.Time) (applied bool, err error)

	// Finalize writes a terminal state with its output/error fields, guarded
	// against records that are already terminal.
	Finalize(ctx context.Context, id string, update CallbackUpdate, completedAt time.Time, durationSeconds float64) (applied bool, err error)

	// ListPendingBefore returns pending records created before the cutoff,
	// for the reconciliation sweep.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Execution, error)
}
