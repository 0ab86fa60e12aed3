// Package logger provides audit logging for run lifecycle events.
package logger

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunLogger provides a dedicated audit trail for run state transitions.
type RunLogger struct {
	*logrus.Entry
}

// NewRunLogger creates a new run audit logger.
func NewRunLogger(baseLogger *logrus.Logger) *RunLogger {
	return &RunLogger{
		Entry: baseLogger.WithField("component", "run-audit"),
	}
}

// LogTransition logs a run status change.
func (rl *RunLogger) LogTransition(runID uuid.UUID, runType, oldStatus, newStatus, reason string) {
	rl.WithFields(logrus.Fields{
		"run_id":     runID,
		"run_type":   runType,
		"old_status": oldStatus,
		"new_status": newStatus,
		"reason":     reason,
	}).Info("Run status changed")
}

// LogCheckpoint logs a worker-reported checkpoint.
func (rl *RunLogger) LogCheckpoint(runID uuid.UUID, lastProcessedIndex, processedCount, totalCount int64) {
	rl.WithFields(logrus.Fields{
		"run_id":               runID,
		"last_processed_index": lastProcessedIndex,
		"processed_count":      processedCount,
		"total_count":          totalCount,
	}).Debug("Checkpoint recorded")
}

// LogPromotion logs a promotion or rotation decision.
func (rl *RunLogger) LogPromotion(strategyID uuid.UUID, level int, score float64, rotated bool, demotedID *uuid.UUID) {
	fields := logrus.Fields{
		"strategy_id": strategyID,
		"risk_level":  level,
		"score":       score,
		"rotated":     rotated,
	}
	if demotedID != nil {
		fields["demoted_strategy_id"] = *demotedID
	}
	rl.WithFields(fields).Info("Strategy promoted to risk pool")
}
