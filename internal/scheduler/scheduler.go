// Package scheduler starts runs on an interval and keeps the run journal
// trimmed while tessera is serving.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/mattjoyce/tessera/internal/control"
	"github.com/mattjoyce/tessera/internal/events"
)

// DefaultPruneEvery paces journal pruning.
const DefaultPruneEvery = time.Hour

// Config controls both loops. A zero Every disables scheduled runs; a nil
// Pruner or zero Retention disables pruning.
type Config struct {
	Every      time.Duration
	Jitter     time.Duration
	Retention  time.Duration
	PruneEvery time.Duration
}

// Scheduler drives periodic runs and journal pruning.
type Scheduler struct {
	cfg    Config
	runner Runner
	pruner Pruner
	events *events.Hub
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Scheduler. pruner may be nil.
func New(cfg Config, runner Runner, pruner Pruner, hub *events.Hub, logger *slog.Logger) *Scheduler {
	if hub == nil {
		hub = events.NewHub(128)
	}
	if cfg.PruneEvery <= 0 {
		cfg.PruneEvery = DefaultPruneEvery
	}
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		pruner: pruner,
		events: hub,
		logger: logger.With("component", "scheduler"),
		stopCh: make(chan struct{}),
	}
}

// Start launches the enabled loops and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cfg.Every > 0 {
		s.logger.Info("starting run schedule", "every", s.cfg.Every, "jitter", s.cfg.Jitter)
		s.wg.Add(1)
		go s.runLoop(ctx)
	}
	if s.pruner != nil && s.cfg.Retention > 0 {
		s.wg.Add(1)
		go s.pruneLoop(ctx)
	}
}

// Stop ends both loops and waits for them. It does not cancel a run the
// scheduler started.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		wait := calculateJitteredInterval(s.cfg.Every, s.cfg.Jitter)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			s.Trigger(ctx)
		case <-s.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// Trigger starts a run unless one is in flight. A finished run is reset
// first. It reports whether a run was started.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	st := s.runner.Status()
	if st.State == control.Running {
		s.skip("run in progress", st.RunID)
		return false
	}
	if st.State.Terminal() {
		if err := s.runner.Reset(); err != nil {
			s.skip(err.Error(), st.RunID)
			return false
		}
	}
	if err := s.runner.Start(ctx); err != nil {
		if errors.Is(err, control.ErrNotIdle) {
			s.skip("controller not idle", "")
			return false
		}
		s.logger.Error("scheduled run failed to start", "error", err)
		s.skip(err.Error(), "")
		return false
	}

	runID := s.runner.Status().RunID
	s.logger.Info("scheduled run started", "run_id", runID)
	s.events.Publish(events.ScheduleTriggered, events.SchedulePayload{RunID: runID})
	return true
}

func (s *Scheduler) skip(reason, runID string) {
	s.logger.Debug("scheduled run skipped", "reason", reason, "run_id", runID)
	s.events.Publish(events.ScheduleSkipped, events.SchedulePayload{RunID: runID, Reason: reason})
}

func (s *Scheduler) pruneLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Prune(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Prune removes journalled runs older than the retention window.
func (s *Scheduler) Prune(ctx context.Context) int64 {
	if s.pruner == nil || s.cfg.Retention <= 0 {
		return 0
	}
	n, err := s.pruner.Prune(ctx, s.cfg.Retention)
	if err != nil {
		s.logger.Warn("failed to prune run journal", "error", err)
		return 0
	}
	if n > 0 {
		s.logger.Info("pruned run journal", "removed", n, "retention", s.cfg.Retention)
		s.events.Publish(events.JournalPruned, events.SchedulePayload{Removed: n})
	}
	return n
}

// calculateJitteredInterval adds a random jitter in [0, jitter) to the base
// interval.
func calculateJitteredInterval(baseInterval, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return baseInterval
	}
	return baseInterval + time.Duration(rand.Int63n(int64(jitter)))
}
