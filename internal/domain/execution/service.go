package execution

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"toolhub/services/conversion-api/utils/platformerrors"
)

// Service mediates every lifecycle mutation of execution records. Duplicate
// or out-of-order terminal callbacks are a normal consequence of
// at-least-once delivery from the compute tier, so a late update against a
// terminal record is logged and ignored rather than treated as an error.
type Service struct {
	repo Repository
	log  zerolog.Logger
	now  func() time.Time
}

// NewService creates the execution lifecycle service.
func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "execution-service").Logger(),
		now:  time.Now,
	}
}

// Create persists a new record in pending. It is called by the dispatcher
// after the blob upload succeeded and before the remote trigger fires.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Execution, error) {
	exec := &Execution{
		ID:         params.ID,
		ToolName:   params.ToolName,
		Category:   params.Category,
		Status:     StatusPending,
		InputRef:   params.InputRef,
		Parameters: params.Parameters,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.Create(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// Get returns the record polled by clients.
func (s *Service) Get(ctx context.Context, id string) (*Execution, error) {
	return s.repo.GetByID(ctx, id)
}

// MarkProcessing records that an executor acknowledged the work. Losing the
// race against a terminal update is fine and only logged.
func (s *Service) MarkProcessing(ctx context.Context, id string) error {
	applied, err := s.repo.MarkProcessing(ctx, id, s.now().UTC())
	if err != nil {
		return err
	}
	if !applied {
		s.log.Debug().Str("execution_id", id).Msg("ignored late update: record already left pending")
	}
	return nil
}

// ApplyCallback applies a terminal update from whichever executor finished
// the work and returns the current record. A callback against a record that
// is already terminal is a no-op.
func (s *Service) ApplyCallback(ctx context.Context, id string, update CallbackUpdate) (*Execution, error) {
	if !update.Status.IsTerminal() {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation,
			"callback status must be completed or failed",
			nil,
			"3f6a1d9c-8e2b-4f5d-a7c1-0b9e4d2f6a83",
		)
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if current.Status.IsTerminal() {
		s.log.Warn().
			Str("execution_id", id).
			Str("current_status", current.Status.String()).
			Str("callback_status", update.Status.String()).
			Msg("ignored late update: execution already terminal")
		return current, nil
	}

	// A completed callback from pending implies the remote tier started the
	// work without a separate acknowledgment; stamp StartedAt on the way.
	if current.Status == StatusPending {
		if _, err := s.repo.MarkProcessing(ctx, id, s.now().UTC()); err != nil {
			return nil, err
		}
		current, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	completedAt := s.now().UTC()
	started := current.CreatedAt
	if current.StartedAt != nil {
		started = *current.StartedAt
	}
	duration := completedAt.Sub(started).Seconds()
	if duration < 0 {
		duration = 0
	}

	applied, err := s.repo.Finalize(ctx, id, update, completedAt, duration)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the race against a concurrent terminal update.
		s.log.Warn().Str("execution_id", id).Msg("ignored late update: lost finalize race")
	} else {
		s.log.Info().
			Str("execution_id", id).
			Str("status", update.Status.String()).
			Float64("duration_seconds", duration).
			Msg("execution finalized")
	}

	return s.repo.GetByID(ctx, id)
}

// Fail finalizes a record as failed with the given message. Used by the
// local fallback paths; shares the terminal guard with ApplyCallback.
func (s *Service) Fail(ctx context.Context, id, message, detail string) error {
	_, err := s.ApplyCallback(ctx, id, CallbackUpdate{
		Status:       StatusFailed,
		ErrorMessage: message,
		ErrorDetail:  detail,
	})
	return err
}

// ListStalePending returns pending records older than the cutoff for the
// reconciliation sweep.
func (s *Service) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*Execution, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	return s.repo.ListPendingBefore(ctx, cutoff, limit)
}
