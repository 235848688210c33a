package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/rostergate/internal/gate/store"
)

// Pruner drops elapsed rate limit windows. ratelimit.LocalFileStore
// implements it.
type Pruner interface {
	Prune(ctx context.Context, now time.Time) (int, error)
}

// HousekeepingService periodically removes expired refresh credentials and
// elapsed rate limit windows from the fallback file.
type HousekeepingService struct {
	Store    store.Store
	Pruner   Pruner // optional
	Logger   *slog.Logger
	Interval time.Duration
	Now      func() time.Time

	// Internal channels for lifecycle management
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, pruner Pruner, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Pruner:   pruner,
		Logger:   logger,
		Interval: interval,
		Now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run()
		s.Logger.Info("housekeeping service started", "interval", s.Interval)
	})
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup. Calls after
// the first are no-ops.
func (s *HousekeepingService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.started.Load() {
			<-s.doneCh
		}
		s.Logger.Info("housekeeping service stopped")
	})
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs a single cleanup pass. Each step is independent; a
// failure in one is logged and does not stop the other.
func (s *HousekeepingService) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	now := s.Now()

	if n, err := s.Store.RefreshCredentials().DeleteExpiredRefreshCredentials(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired refresh credentials", "error", err)
	} else {
		s.Logger.Debug("deleted expired refresh credentials", "count", n)
	}

	if s.Pruner == nil {
		return
	}
	if n, err := s.Pruner.Prune(ctx, now); err != nil {
		s.Logger.Error("failed to prune rate limit file", "error", err)
	} else {
		s.Logger.Debug("pruned rate limit windows", "count", n)
	}
}
