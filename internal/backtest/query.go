package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/backtest-pilot/internal/cursor"
	"github.com/yourusername/backtest-pilot/internal/models"
	"github.com/yourusername/backtest-pilot/internal/repository"
)

// Progress is the derived progress view of a run
type Progress struct {
	RunID            uuid.UUID        `json:"run_id"`
	Status           models.RunStatus `json:"status"`
	Percent          float64          `json:"percent"`
	ProcessedCount   int64            `json:"processed_count"`
	TotalCount       int64            `json:"total_count"`
	LastCheckpointAt *time.Time       `json:"last_checkpoint_at,omitempty"`
	WarningFlags     []string         `json:"warning_flags,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
}

// GetProgress returns the progress view for a run
func (m *Manager) GetProgress(ctx context.Context, id, accountID uuid.UUID) (*Progress, error) {
	run, err := m.runs.GetForAccount(ctx, id, accountID)
	if err != nil {
		return nil, err
	}
	return &Progress{
		RunID:            run.ID,
		Status:           run.Status,
		Percent:          run.ProgressPercent(),
		ProcessedCount:   run.ProcessedTimestampCount,
		TotalCount:       run.TotalTimestampCount,
		LastCheckpointAt: run.LastCheckpointAt,
		WarningFlags:     run.WarningFlags,
		ErrorMessage:     run.ErrorMessage,
	}, nil
}

// GetPerformance returns the performance summary of a completed run. Runs in
// any other status have no summary yet.
func (m *Manager) GetPerformance(ctx context.Context, id, accountID uuid.UUID) (*models.RunPerformance, error) {
	run, err := m.runs.GetForAccount(ctx, id, accountID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunStatusCompleted {
		return nil, models.NewValidationError("run %s has no performance summary in status %s", run.ID, run.Status)
	}
	return m.performance.GetByRun(ctx, run.ID)
}

// ArtifactRequest narrows signal and fill listings
type ArtifactRequest struct {
	Instrument string
	Kind       string
	Direction  string
	Status     string
	Cursor     string
	Limit      int
}

func (m *Manager) artifactFilter(req ArtifactRequest) repository.ArtifactFilter {
	limit := req.Limit
	if limit <= 0 {
		limit = m.cfg.DefaultListLimit
	}
	if limit > m.cfg.MaxListLimit {
		limit = m.cfg.MaxListLimit
	}
	return repository.ArtifactFilter{
		Instrument: req.Instrument,
		Kind:       req.Kind,
		Direction:  req.Direction,
		Status:     req.Status,
		Cursor:     cursor.Decode(req.Cursor),
		Limit:      limit,
	}
}

// ListSignals returns a page of signals emitted by a run
func (m *Manager) ListSignals(ctx context.Context, runID, accountID uuid.UUID, req ArtifactRequest) ([]*models.Signal, error) {
	if _, err := m.runs.GetForAccount(ctx, runID, accountID); err != nil {
		return nil, err
	}
	return m.signals.ListByRun(ctx, runID, m.artifactFilter(req))
}

// ListFills returns a page of simulated executions recorded by a run
func (m *Manager) ListFills(ctx context.Context, runID, accountID uuid.UUID, req ArtifactRequest) ([]*models.TradeFill, error) {
	if _, err := m.runs.GetForAccount(ctx, runID, accountID); err != nil {
		return nil, err
	}
	return m.fills.ListByRun(ctx, runID, m.artifactFilter(req))
}

// ComparisonEntry pairs a run with its performance summary
type ComparisonEntry struct {
	Run         *models.BacktestRun    `json:"run"`
	Performance *models.RunPerformance `json:"performance,omitempty"`
}

// Comparison is the side-by-side result, optionally persisted as a report
type Comparison struct {
	ReportID *uuid.UUID        `json:"report_id,omitempty"`
	Name     string            `json:"name,omitempty"`
	Entries  []ComparisonEntry `json:"entries"`
}

// Compare builds a side-by-side comparison of two or more runs belonging to
// the same account. Runs without a performance summary appear with a nil
// summary. When name is non-empty the comparison is persisted as a report.
func (m *Manager) Compare(ctx context.Context, accountID uuid.UUID, name string, runIDs []uuid.UUID) (*Comparison, error) {
	distinct := make(map[uuid.UUID]struct{}, len(runIDs))
	for _, id := range runIDs {
		distinct[id] = struct{}{}
	}
	if len(distinct) < 2 {
		return nil, models.NewValidationError("comparison requires at least two distinct runs")
	}

	cmp := &Comparison{Name: name}
	for _, id := range runIDs {
		run, err := m.runs.GetForAccount(ctx, id, accountID)
		if err != nil {
			if err == models.ErrNotFound {
				return nil, models.NewValidationError("run %s does not exist for this account", id)
			}
			return nil, err
		}
		entry := ComparisonEntry{Run: run}
		if run.Status == models.RunStatusCompleted {
			perf, err := m.performance.GetByRun(ctx, run.ID)
			if err != nil && err != models.ErrNotFound {
				return nil, fmt.Errorf("failed to load performance for run %s: %w", run.ID, err)
			}
			entry.Performance = perf
		}
		cmp.Entries = append(cmp.Entries, entry)
	}

	if name != "" {
		report := &models.ComparisonReport{
			ID:        uuid.New(),
			Name:      name,
			AccountID: accountID,
			RunIDs:    runIDs,
			CreatedAt: m.now().UTC(),
		}
		if err := m.reports.Create(ctx, report); err != nil {
			return nil, fmt.Errorf("failed to persist comparison report: %w", err)
		}
		cmp.ReportID = &report.ID
	}

	return cmp, nil
}
