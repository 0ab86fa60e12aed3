// Package watchdog force-fails runs whose workers stopped reporting
// progress. A dead worker leaves its run RUNNING forever; the sweep converts
// those into resumable failures.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-pilot/internal/config"
	auditlog "github.com/yourusername/backtest-pilot/internal/logger"
	"github.com/yourusername/backtest-pilot/internal/metrics"
	"github.com/yourusername/backtest-pilot/internal/models"
	"github.com/yourusername/backtest-pilot/internal/repository"
)

// Watchdog sweeps for stale runs on a fixed interval
type Watchdog struct {
	runs   repository.RunRepository
	cfg    config.WatchdogConfig
	logger *logrus.Logger
	audit  *auditlog.RunLogger
	now    func() time.Time
}

// NewWatchdog creates a stale-run watchdog
func NewWatchdog(runs repository.RunRepository, cfg config.WatchdogConfig, logger *logrus.Logger) *Watchdog {
	return &Watchdog{
		runs:   runs,
		cfg:    cfg,
		logger: logger,
		audit:  auditlog.NewRunLogger(logger),
		now:    time.Now,
	}
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Killed int
	Errors []error
}

// Sweep force-fails every RUNNING run whose last sign of life is older than
// its type's threshold. Replay runs get a longer leash because they pace
// themselves against wall-clock time. Failures on individual runs are
// collected, not fatal.
func (w *Watchdog) Sweep(ctx context.Context) (*SweepResult, error) {
	start := w.now()
	defer func() {
		metrics.WatchdogSweepDuration.Observe(w.now().Sub(start).Seconds())
	}()

	result := &SweepResult{}
	thresholds := map[models.RunType]time.Duration{
		models.RunTypeHistorical: time.Duration(w.cfg.HistoricalStaleMinutes) * time.Minute,
		models.RunTypeLiveReplay: time.Duration(w.cfg.ReplayStaleMinutes) * time.Minute,
	}

	for runType, threshold := range thresholds {
		stale, err := w.runs.FindStale(ctx, runType, w.now().Add(-threshold))
		if err != nil {
			return nil, fmt.Errorf("failed to find stale %s runs: %w", runType, err)
		}

		for _, run := range stale {
			if err := w.kill(ctx, run, threshold); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("run %s: %w", run.ID, err))
				continue
			}
			result.Killed++
		}
	}

	if result.Killed > 0 || len(result.Errors) > 0 {
		w.logger.WithFields(logrus.Fields{
			"killed": result.Killed,
			"errors": len(result.Errors),
		}).Warn("Watchdog sweep force-failed stale runs")
	}
	return result, nil
}

func (w *Watchdog) kill(ctx context.Context, run *models.BacktestRun, threshold time.Duration) error {
	var lastIndex int64
	if run.Checkpoint != nil {
		lastIndex = run.Checkpoint.LastProcessedIndex
	}
	reason := fmt.Sprintf(
		"force-failed by watchdog: no progress for over %s (last processed index %d)",
		threshold, lastIndex,
	)

	if err := w.runs.UpdateStatus(ctx, run.ID, models.RunStatusRunning, models.RunStatusFailed, reason); err != nil {
		// The worker may have finished between the scan and the update.
		if err == models.ErrNotFound {
			return nil
		}
		return err
	}

	metrics.RecordWatchdogKill(string(run.Type))
	w.audit.LogTransition(run.ID, string(run.Type), string(models.RunStatusRunning), string(models.RunStatusFailed), reason)
	w.logger.WithFields(logrus.Fields{
		"run_id":      run.ID,
		"type":        run.Type,
		"stale_since": run.StaleSince(),
	}).Warn("Stale run force-failed")
	return nil
}
