package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gantz-ai/gantz/internal/cache"
	"github.com/gantz-ai/gantz/internal/db/repositories"
	"github.com/gantz-ai/gantz/internal/logging"
)

const sweepTimeout = 30 * time.Second

// Sweeper runs periodic maintenance: expired cache entries are evicted every
// minute and run records older than the retention window are deleted daily.
type Sweeper struct {
	cron      *cron.Cron
	repos     *repositories.Repositories
	memCache  *cache.MemoryStore
	retention time.Duration
}

// NewSweeper creates a sweeper. memCache may be nil when the cache backend
// does not need in-process eviction (Redis expires keys itself).
func NewSweeper(repos *repositories.Repositories, memCache *cache.MemoryStore, retentionDays int) *Sweeper {
	if retentionDays <= 0 {
		retentionDays = 30
	}

	c := cron.New(cron.WithLogger(cron.PrintfLogger(log.New(log.Writer(), "cron: ", log.LstdFlags))))

	return &Sweeper{
		cron:      c,
		repos:     repos,
		memCache:  memCache,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Start registers the maintenance jobs and starts the scheduler.
func (s *Sweeper) Start() error {
	if s.memCache != nil {
		if _, err := s.cron.AddFunc("@every 1m", s.sweepCache); err != nil {
			return fmt.Errorf("failed to schedule cache sweep: %w", err)
		}
	}

	if _, err := s.cron.AddFunc("@daily", s.sweepRuns); err != nil {
		return fmt.Errorf("failed to schedule run retention sweep: %w", err)
	}

	s.cron.Start()
	logging.Debug("Sweeper started (run retention %s)", s.retention)

	return nil
}

// Stop stops the scheduler with a timeout so shutdown cannot hang on a
// running job.
func (s *Sweeper) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.cron.Stop()
		close(done)
	}()

	select {
	case <-done:
		logging.Debug("Sweeper stopped gracefully")
	case <-ctx.Done():
		logging.Error("Sweeper stop timeout, forcing close")
	}
}

// sweepCache evicts expired entries from the in-memory cache.
func (s *Sweeper) sweepCache() {
	if n := s.memCache.Sweep(time.Now()); n > 0 {
		logging.Debug("Cache sweep evicted %d expired entries", n)
	}
}

// sweepRuns deletes run records older than the retention window.
func (s *Sweeper) sweepRuns() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	cutoff := time.Now().Add(-s.retention)
	deleted, err := s.repos.Runs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		logging.Error("Run retention sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		logging.Info("Run retention sweep deleted %d runs older than %s", deleted, cutoff.Format(time.RFC3339))
	}
}
