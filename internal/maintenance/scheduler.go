package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yourusername/tmichat/internal/output"
)

const vacuumTimeout = 5 * time.Minute

// Store is the database surface the scheduler maintains
type Store interface {
	PruneJoinEvents(before time.Time) (int64, error)
	Vacuum(ctx context.Context) error
}

// Scheduler periodically prunes old join history and vacuums the database
type Scheduler struct {
	store     Store
	logger    output.Logger
	interval  time.Duration
	retention time.Duration
	nowFunc   func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

// New creates a scheduler that runs every interval and keeps retention worth of join history
func New(store Store, logger output.Logger, interval, retention time.Duration) *Scheduler {
	if logger == nil {
		logger = output.NopLogger{}
	}
	return &Scheduler{
		store:     store,
		logger:    logger,
		interval:  interval,
		retention: retention,
		nowFunc:   time.Now,
	}
}

// Run performs maintenance every interval until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Starting database maintenance (every %v, keeping %v of join history)", s.interval, s.retention)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Database maintenance failed: %v", err)
			}
		}
	}
}

// RunOnce prunes join events older than the retention and vacuums
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := s.nowFunc()

	removed, err := s.store.PruneJoinEvents(start.Add(-s.retention))
	if err != nil {
		return fmt.Errorf("failed to prune join history: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, vacuumTimeout)
	defer cancel()
	if err := s.store.Vacuum(vctx); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	s.mu.Lock()
	s.lastRun = s.nowFunc()
	s.mu.Unlock()

	s.logger.Success("Database maintenance completed in %.2f seconds: pruned %s join events",
		time.Since(start).Seconds(), humanize.Comma(removed))
	return nil
}

// LastRun returns when maintenance last completed, or the zero time
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
