package retention

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"

	"custodian/internal/platform/config"
	"custodian/internal/platform/metrics"
)

// Sweeper runs the retention sweeps on a cron schedule. Overlapping runs are
// skipped rather than queued, so a slow sweep is never doubled up on, and a
// random jitter keeps replicas started together from sweeping in lockstep.
type Sweeper struct {
	engine  *Engine
	cfg     config.SweepConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	cron    *cron.Cron
}

// NewSweeper creates the sweep daemon.
func NewSweeper(engine *Engine, cfg config.SweepConfig, m *metrics.Metrics, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		engine:  engine,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// Start registers the schedule and begins sweeping. It returns immediately;
// call Stop to drain.
func (s *Sweeper) Start(ctx context.Context) error {
	runner := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))
	_, err := runner.AddFunc(s.cfg.Schedule, func() {
		if s.cfg.Jitter > 0 {
			delay := time.Duration(rand.Int63n(int64(s.cfg.Jitter)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("register sweep schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron = runner
	runner.Start()
	s.logger.InfoContext(ctx, "retention sweeper started", "schedule", s.cfg.Schedule)
	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunOnce executes one full sweep cycle: archiving, gated deletions, record
// purges, and tracking purges. Each phase reports its own summary; a phase
// failure is logged and does not stop the later phases.
func (s *Sweeper) RunOnce(ctx context.Context) {
	started := time.Now()
	defer func() {
		s.metrics.SweepDuration.Observe(time.Since(started).Seconds())
	}()

	s.runPhase(ctx, "archive", s.engine.ProcessScheduledArchiving)
	s.runPhase(ctx, "delete", s.engine.ProcessScheduledDeletions)
	s.runPhase(ctx, "purge_tracking", s.engine.ProcessPurges)

	result, err := s.engine.store.PurgeExpired(ctx)
	if err != nil {
		s.metrics.SweepRuns.WithLabelValues("purge_expired", "error").Inc()
		s.logger.ErrorContext(ctx, "expired-record purge failed", "error", err)
		return
	}
	s.metrics.SweepRuns.WithLabelValues("purge_expired", "ok").Inc()
	s.logger.InfoContext(ctx, "expired-record purge finished",
		"deleted", result.Deleted, "errors", result.Errors)
}

func (s *Sweeper) runPhase(ctx context.Context, kind string, phase func(context.Context) (SweepSummary, error)) {
	summary, err := phase(ctx)
	if err != nil {
		s.metrics.SweepRuns.WithLabelValues(kind, "error").Inc()
		s.logger.ErrorContext(ctx, "retention sweep phase failed", "phase", kind, "error", err)
		return
	}
	s.metrics.SweepRuns.WithLabelValues(kind, "ok").Inc()
	s.logger.InfoContext(ctx, "retention sweep phase finished",
		"phase", kind,
		"processed", summary.Processed,
		"archived", summary.Archived,
		"deleted", summary.Deleted,
		"purged", summary.Purged,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
	)
	for _, detail := range summary.Details {
		if detail.Action == "skipped" || detail.Action == "error" {
			s.logger.DebugContext(ctx, "sweep detail",
				"phase", kind, "record_id", detail.RecordID, "action", detail.Action, "reason", detail.Reason)
		}
	}
}
