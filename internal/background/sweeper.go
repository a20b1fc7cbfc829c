package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/bastionhq/bastion/internal/ratelimit"
)

// AuditCleaner removes audit records past the retention window
type AuditCleaner interface {
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
}

// Sweeper periodically compacts the rate limiter's in-memory state and
// enforces audit retention
type Sweeper struct {
	limiter       *ratelimit.Limiter
	audits        AuditCleaner
	retentionDays int
	interval      time.Duration
	logger        *slog.Logger
	stopCh        chan struct{}
}

// NewSweeper creates a new Sweeper
func NewSweeper(
	limiter *ratelimit.Limiter,
	audits AuditCleaner,
	retentionDays int,
	interval time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		limiter:       limiter,
		audits:        audits,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic sweep. Blocks until Stop is called or the
// context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on startup
	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopCh:
			s.logger.Info("sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("sweeper context cancelled")
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	s.limiter.Sweep()

	if s.audits == nil || s.retentionDays <= 0 {
		return
	}

	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := s.audits.Cleanup(sweepCtx, s.retentionDays)
	if err != nil {
		s.logger.Error("audit retention cleanup failed", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		s.logger.Info("audit retention cleanup completed", slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the sweeper to stop
func (s *Sweeper) Stop() {
	close(s.stopCh)
}
