package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OverdueJobName is the scheduler entry of the invoice sweep
const OverdueJobName = "invoices:overdue-sweep"

// OverdueSweeper flags sent invoices that are past due. It returns how
// many invoices it flagged, at most limit.
type OverdueSweeper interface {
	SweepOverdue(ctx context.Context, now time.Time, limit int) (int, error)
}

// RegisterOverdueSweep schedules the sweep on OverdueSweepCron. Each run
// drains up to MaxSweepBatches full batches.
func RegisterOverdueSweep(s *Scheduler, sweeper OverdueSweeper, logger *zap.Logger) error {
	return s.Schedule(OverdueJobName, s.cfg.OverdueSweepCron, func(ctx context.Context) error {
		return sweepOverdue(ctx, sweeper, s.cfg, time.Now(), logger)
	})
}

func sweepOverdue(ctx context.Context, sweeper OverdueSweeper, cfg Config, now time.Time, logger *zap.Logger) error {
	batch := cfg.OverdueSweepBatch
	if batch <= 0 {
		batch = 200
	}
	maxBatches := cfg.MaxSweepBatches
	if maxBatches <= 0 {
		maxBatches = 1
	}

	total := 0
	for i := 0; i < maxBatches; i++ {
		n, err := sweeper.SweepOverdue(ctx, now, batch)
		total += n
		if err != nil {
			return err
		}
		if n < batch {
			break
		}
	}
	if total > 0 {
		logger.Info("overdue invoices flagged", zap.Int("count", total))
	}
	return nil
}
