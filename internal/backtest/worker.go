package backtest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-pilot/internal/metrics"
	"github.com/yourusername/backtest-pilot/internal/models"
)

// Worker-facing callbacks. The simulation worker drives a run through
// RUNNING, checkpoints periodically, and finishes via MarkCompleted or
// MarkFailed. Every transition goes through the conditional status update so
// a concurrent cancel or watchdog kill wins cleanly.

// MarkRunning moves a pending run to RUNNING when a worker picks it up
func (m *Manager) MarkRunning(ctx context.Context, id uuid.UUID) (*models.BacktestRun, error) {
	run, err := m.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.runs.UpdateStatus(ctx, run.ID, models.RunStatusPending, models.RunStatusRunning, ""); err != nil {
		return nil, err
	}
	run.Status = models.RunStatusRunning
	m.audit.LogTransition(run.ID, string(run.Type), string(models.RunStatusPending), string(models.RunStatusRunning), "picked up by worker")
	m.publish(ctx, run, "started")
	return run, nil
}

// RecordCheckpoint persists worker progress. It returns true when a pending
// pause request was honored, in which case the worker must stop; the run is
// already PAUSED with its checkpoint saved.
func (m *Manager) RecordCheckpoint(ctx context.Context, id uuid.UUID, cp *models.CheckpointState, processed, total int64) (paused bool, err error) {
	run, err := m.runs.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if run.Status != models.RunStatusRunning {
		// Cancelled or force-failed underneath the worker.
		return false, &models.InvalidTransitionError{From: run.Status, To: run.Status, Action: "checkpoint"}
	}

	if err := m.runs.RecordCheckpoint(ctx, run.ID, cp, processed, total); err != nil {
		return false, fmt.Errorf("failed to record checkpoint: %w", err)
	}
	m.audit.LogCheckpoint(run.ID, cp.LastProcessedIndex, processed, total)

	if !run.PauseRequested {
		return false, nil
	}

	if err := m.runs.UpdateStatus(ctx, run.ID, models.RunStatusRunning, models.RunStatusPaused, ""); err != nil {
		return false, err
	}
	if err := m.runs.SetPauseRequested(ctx, run.ID, false); err != nil {
		return false, err
	}
	run.Status = models.RunStatusPaused

	m.audit.LogTransition(run.ID, string(run.Type), string(models.RunStatusRunning), string(models.RunStatusPaused), "pause request honored at checkpoint")
	m.logger.WithField("run_id", run.ID).Info("Run paused at checkpoint")
	m.publish(ctx, run, "paused")
	return true, nil
}

// MarkCompleted finishes a run and stores its performance summary
func (m *Manager) MarkCompleted(ctx context.Context, id uuid.UUID, perf *models.RunPerformance) error {
	run, err := m.runs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := m.runs.UpdateStatus(ctx, run.ID, models.RunStatusRunning, models.RunStatusCompleted, ""); err != nil {
		return err
	}
	run.Status = models.RunStatusCompleted

	if perf != nil {
		perf.RunID = run.ID
		if err := m.performance.Save(ctx, perf); err != nil {
			return fmt.Errorf("failed to save performance summary: %w", err)
		}
	}

	metrics.RunsCompletedTotal.Inc()
	m.audit.LogTransition(run.ID, string(run.Type), string(models.RunStatusRunning), string(models.RunStatusCompleted), "worker finished")
	m.logger.WithField("run_id", run.ID).Info("Backtest run completed")
	m.publish(ctx, run, "completed")
	return nil
}

// MarkFailed records a worker failure. The run stays resumable.
func (m *Manager) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	run, err := m.runs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := m.runs.UpdateStatus(ctx, run.ID, models.RunStatusRunning, models.RunStatusFailed, reason); err != nil {
		return err
	}
	run.Status = models.RunStatusFailed
	run.ErrorMessage = reason

	metrics.RunsFailedTotal.Inc()
	m.audit.LogTransition(run.ID, string(run.Type), string(models.RunStatusRunning), string(models.RunStatusFailed), reason)
	m.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"reason": reason,
	}).Warn("Backtest run failed")
	m.publish(ctx, run, reason)
	return nil
}
