// Package worker hosts the background reconciliation loop.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"toolhub/services/conversion-api/internal/domain/execution"
	"toolhub/services/conversion-api/internal/infrastructure/metrics"
)

const sweepBatchLimit = 200

// Sweeper periodically reports executions stuck in pending. It observes and
// surfaces; it never force-fails a record, because a slow compute tier and a
// lost trigger are indistinguishable from here and the callback path already
// tolerates arbitrarily late updates.
type Sweeper struct {
	executions *execution.Service
	interval   time.Duration
	staleAfter time.Duration
	log        zerolog.Logger
}

// NewSweeper creates the reconciliation sweeper.
func NewSweeper(executions *execution.Service, interval, staleAfter time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		executions: executions,
		interval:   interval,
		staleAfter: staleAfter,
		log:        log.With().Str("component", "sweeper").Logger(),
	}
}

// Run blocks until ctx is cancelled, sweeping at the configured interval.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info().Msg("sweeper disabled")
		return
	}

	s.log.Info().
		Dur("interval", s.interval).
		Dur("stale_after", s.staleAfter).
		Msg("sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	stale, err := s.executions.ListStalePending(ctx, s.staleAfter, sweepBatchLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("stale pending sweep failed")
		return
	}

	metrics.SetStalePending(len(stale))
	if len(stale) == 0 {
		return
	}

	for _, exec := range stale {
		s.log.Warn().
			Str("execution_id", exec.ID).
			Str("tool", exec.ToolName).
			Time("created_at", exec.CreatedAt).
			Msg("execution stuck in pending beyond staleness threshold")
	}
	s.log.Warn().Int("count", len(stale)).Msg("stale pending executions detected")
}
