// Package backtest implements the run lifecycle: creation, resume, pause,
// cancellation and the worker-facing progress callbacks.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-pilot/internal/config"
	"github.com/yourusername/backtest-pilot/internal/cursor"
	auditlog "github.com/yourusername/backtest-pilot/internal/logger"
	"github.com/yourusername/backtest-pilot/internal/metrics"
	"github.com/yourusername/backtest-pilot/internal/models"
	"github.com/yourusername/backtest-pilot/internal/queue"
	"github.com/yourusername/backtest-pilot/internal/repository"
	"github.com/yourusername/backtest-pilot/internal/slippage"
	"github.com/yourusername/backtest-pilot/internal/stream"
)

// Warning flags attached to runs at creation time
const (
	WarningLowIntegrity     = "LOW_INTEGRITY_DATA"
	WarningWindowClipped    = "WINDOW_OUTSIDE_DATASET"
	WarningNotReplayCapable = "dataset_not_replay_capable"
)

// RunDispatcher routes runs onto their execution queue
type RunDispatcher interface {
	Dispatch(ctx context.Context, run *models.BacktestRun, opts queue.EnqueueOptions) error
	Remove(run *models.BacktestRun) bool
}

// dispatchable reports whether a run type has an execution queue here
func dispatchable(t models.RunType) bool {
	return t == models.RunTypeHistorical || t == models.RunTypeLiveReplay
}

// Manager coordinates the run lifecycle against the repositories, the queue
// dispatcher and the status stream.
type Manager struct {
	runs        repository.RunRepository
	datasets    repository.DatasetRepository
	algorithms  repository.AlgorithmRepository
	performance repository.PerformanceRepository
	signals     repository.SignalRepository
	fills       repository.FillRepository
	reports     repository.ReportRepository
	dispatcher  RunDispatcher
	publisher   stream.StatusPublisher
	cfg         config.BacktestConfig
	logger      *logrus.Logger
	audit       *auditlog.RunLogger
	now         func() time.Time
}

// NewManager creates a run lifecycle manager
func NewManager(
	repos *repository.Repositories,
	dispatcher RunDispatcher,
	publisher stream.StatusPublisher,
	cfg config.BacktestConfig,
	logger *logrus.Logger,
) *Manager {
	if publisher == nil {
		publisher = stream.NopPublisher{}
	}
	return &Manager{
		runs:        repos.Run,
		datasets:    repos.Dataset,
		algorithms:  repos.Algorithm,
		performance: repos.Performance,
		signals:     repos.Signal,
		fills:       repos.Fill,
		reports:     repos.Report,
		dispatcher:  dispatcher,
		publisher:   publisher,
		cfg:         cfg,
		logger:      logger,
		audit:       auditlog.NewRunLogger(logger),
		now:         time.Now,
	}
}

// CreateRunRequest carries everything needed to create a run. The request is
// resolved against the catalog once; the resulting snapshot is immutable.
type CreateRunRequest struct {
	AccountID          uuid.UUID
	Type               models.RunType
	AlgorithmID        uuid.UUID
	DatasetID          uuid.UUID
	WindowStart        time.Time
	WindowEnd          time.Time
	InitialCapital     float64
	TradingFee         float64
	Slippage           *models.SlippageConfig
	StrategyParameters json.RawMessage
	DeterministicSeed  string
	Orchestrated       bool
	RiskLevel          int
}

// Create validates the request against the catalog, snapshots the
// configuration, persists the run in PENDING and enqueues it keyed by its own
// id. Dataset problems that make execution impossible reject the request;
// quality concerns only attach warning flags.
func (m *Manager) Create(ctx context.Context, req CreateRunRequest) (*models.BacktestRun, error) {
	if !req.Type.Valid() {
		return nil, models.NewValidationError("unknown run type %q", req.Type)
	}
	if req.InitialCapital <= 0 {
		return nil, models.NewValidationError("initial capital must be positive")
	}
	if !req.WindowStart.Before(req.WindowEnd) {
		return nil, models.NewValidationError("window start must precede window end")
	}

	algo, err := m.algorithms.GetByID(ctx, req.AlgorithmID)
	if err != nil {
		if err == models.ErrNotFound {
			return nil, models.NewValidationError("algorithm %s does not exist", req.AlgorithmID)
		}
		return nil, fmt.Errorf("failed to load algorithm: %w", err)
	}
	if !algo.Active {
		return nil, models.NewValidationError("algorithm %s is inactive", algo.Name)
	}

	dataset, err := m.datasets.GetByID(ctx, req.DatasetID)
	if err != nil {
		if err == models.ErrNotFound {
			return nil, models.NewValidationError("dataset %s does not exist", req.DatasetID)
		}
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	if req.Type == models.RunTypeLiveReplay && !dataset.ReplayCapable {
		return nil, models.NewValidationError("dataset %s cannot serve live replay runs", dataset.Label)
	}

	var warnings []string
	if req.Type != models.RunTypeHistorical && req.Type != models.RunTypeLiveReplay && !dataset.ReplayCapable {
		warnings = append(warnings, WarningNotReplayCapable)
	}
	if !dataset.Covers(req.WindowStart, req.WindowEnd) {
		warnings = append(warnings, WarningWindowClipped)
	}
	if dataset.IntegrityScore < m.cfg.LowIntegrityThreshold {
		warnings = append(warnings, WarningLowIntegrity)
	}

	slip := models.SlippageConfig{Model: slippage.ModelFixed}
	if req.Slippage != nil && req.Slippage.Model != "" {
		slip = *req.Slippage
	}

	seed := req.DeterministicSeed
	if seed == "" {
		seed = uuid.NewString()
	}

	run := &models.BacktestRun{
		ID:        uuid.New(),
		AccountID: req.AccountID,
		Type:      req.Type,
		Status:    models.RunStatusPending,
		Config: models.ConfigSnapshot{
			AlgorithmID:        algo.ID,
			AlgorithmName:      algo.Name,
			DatasetID:          dataset.ID,
			WindowStart:        req.WindowStart,
			WindowEnd:          req.WindowEnd,
			InitialCapital:     req.InitialCapital,
			TradingFee:         req.TradingFee,
			Slippage:           slip,
			StrategyParameters: req.StrategyParameters,
			Orchestrated:       req.Orchestrated,
			RiskLevel:          req.RiskLevel,
		},
		DeterministicSeed: seed,
		WarningFlags:      warnings,
		CreatedAt:         m.now().UTC(),
		UpdatedAt:         m.now().UTC(),
	}

	if err := m.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist run: %w", err)
	}

	// Paper-trading and optimization runs are picked up by their own
	// subsystems; only backtest queues are fed from here.
	if dispatchable(run.Type) {
		if err := m.dispatcher.Dispatch(ctx, run, queue.EnqueueOptions{}); err != nil {
			return nil, fmt.Errorf("failed to enqueue run %s: %w", run.ID, err)
		}
	}

	metrics.RecordRunCreated(string(run.Type), run.Config.Orchestrated)
	m.audit.LogTransition(run.ID, string(run.Type), "", string(models.RunStatusPending), "created")
	m.logger.WithFields(logrus.Fields{
		"run_id":    run.ID,
		"type":      run.Type,
		"algorithm": algo.Name,
		"warnings":  warnings,
	}).Info("Backtest run created")
	m.publish(ctx, run, "created")

	return run, nil
}

// Resume restarts a resumable run with its original seed and job id. A
// checkpoint older than the configured maximum is discarded so the worker
// starts from the beginning; a fresh one is kept and execution continues from
// the recorded index.
func (m *Manager) Resume(ctx context.Context, id, accountID uuid.UUID) (*models.BacktestRun, error) {
	run, err := m.runs.GetForAccount(ctx, id, accountID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(run.Status, models.RunStatusPending) {
		return nil, &models.InvalidTransitionError{From: run.Status, To: models.RunStatusPending, Action: "resume"}
	}

	maxAge := time.Duration(m.cfg.MaxCheckpointAgeHours) * time.Hour
	keepCheckpoint := run.Checkpoint != nil &&
		run.LastCheckpointAt != nil &&
		cursor.Age(m.now(), *run.LastCheckpointAt) <= maxAge
	if !keepCheckpoint && run.Checkpoint != nil {
		if err := m.runs.ResetCheckpoint(ctx, run.ID); err != nil {
			return nil, fmt.Errorf("failed to reset checkpoint: %w", err)
		}
		run.Checkpoint = nil
		run.LastCheckpointAt = nil
		run.ProcessedTimestampCount = 0
	}

	// A pause requested before the run stopped must not carry over, or the
	// worker would pause again at its first checkpoint.
	if run.PauseRequested {
		if err := m.runs.SetPauseRequested(ctx, run.ID, false); err != nil {
			return nil, fmt.Errorf("failed to clear pause request: %w", err)
		}
		run.PauseRequested = false
	}

	prior := run.Status
	if err := m.runs.UpdateStatus(ctx, run.ID, prior, models.RunStatusPending, ""); err != nil {
		return nil, err
	}
	run.Status = models.RunStatusPending
	run.ErrorMessage = ""

	if dispatchable(run.Type) {
		if err := m.dispatcher.Dispatch(ctx, run, queue.EnqueueOptions{}); err != nil {
			return nil, fmt.Errorf("failed to enqueue resumed run %s: %w", run.ID, err)
		}
	}

	metrics.RecordRunResumed(keepCheckpoint)
	m.audit.LogTransition(run.ID, string(run.Type), string(prior), string(models.RunStatusPending), "resumed")
	m.logger.WithFields(logrus.Fields{
		"run_id":          run.ID,
		"checkpoint_kept": keepCheckpoint,
	}).Info("Backtest run resumed")
	m.publish(ctx, run, "resumed")

	return run, nil
}

// Pause requests a cooperative pause. Only a running live replay can be
// paused; the flag is observed by the worker at its next checkpoint, so the
// run stays RUNNING until then.
func (m *Manager) Pause(ctx context.Context, id, accountID uuid.UUID) error {
	run, err := m.runs.GetForAccount(ctx, id, accountID)
	if err != nil {
		return err
	}
	if run.Type != models.RunTypeLiveReplay {
		return models.NewValidationError("only live replay runs can be paused")
	}
	if run.Status != models.RunStatusRunning {
		return &models.InvalidTransitionError{From: run.Status, To: models.RunStatusPaused, Action: "pause"}
	}

	if err := m.runs.SetPauseRequested(ctx, run.ID, true); err != nil {
		return fmt.Errorf("failed to request pause: %w", err)
	}
	m.logger.WithField("run_id", run.ID).Info("Pause requested")
	return nil
}

// Cancel stops a pending or running run. A queued job is removed so it never
// starts; an in-flight worker observes the CANCELLED status at its next
// checkpoint write and abandons the run.
func (m *Manager) Cancel(ctx context.Context, id, accountID uuid.UUID) error {
	run, err := m.runs.GetForAccount(ctx, id, accountID)
	if err != nil {
		return err
	}
	if !models.CanTransition(run.Status, models.RunStatusCancelled) {
		return &models.InvalidTransitionError{From: run.Status, To: models.RunStatusCancelled, Action: "cancel"}
	}

	m.dispatcher.Remove(run)
	prior := run.Status
	if err := m.runs.UpdateStatus(ctx, run.ID, prior, models.RunStatusCancelled, ""); err != nil {
		return err
	}
	run.Status = models.RunStatusCancelled

	m.audit.LogTransition(run.ID, string(run.Type), string(prior), string(models.RunStatusCancelled), "cancelled by owner")
	m.logger.WithField("run_id", run.ID).Info("Backtest run cancelled")
	m.publish(ctx, run, "cancelled")
	return nil
}

// Delete removes a run and its artifacts. Running runs must be cancelled
// first.
func (m *Manager) Delete(ctx context.Context, id, accountID uuid.UUID) error {
	run, err := m.runs.GetForAccount(ctx, id, accountID)
	if err != nil {
		return err
	}
	if run.Status == models.RunStatusRunning {
		return models.NewValidationError("cannot delete a running run, cancel it first")
	}
	return m.runs.Delete(ctx, run.ID)
}

// Get returns a single run scoped to its owning account
func (m *Manager) Get(ctx context.Context, id, accountID uuid.UUID) (*models.BacktestRun, error) {
	return m.runs.GetForAccount(ctx, id, accountID)
}

// ListRequest narrows a run listing
type ListRequest struct {
	AccountID     uuid.UUID
	Type          models.RunType
	AlgorithmID   uuid.UUID
	Status        models.RunStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Cursor        string
	Limit         int
}

// ListResult is one page of runs plus the cursor for the next page
type ListResult struct {
	Runs       []*models.BacktestRun
	NextCursor string
}

// List returns a keyset-paginated page of runs, newest first. A malformed
// cursor token is treated as absent and the listing restarts from the top.
func (m *Manager) List(ctx context.Context, req ListRequest) (*ListResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = m.cfg.DefaultListLimit
	}
	if limit > m.cfg.MaxListLimit {
		limit = m.cfg.MaxListLimit
	}

	runs, err := m.runs.List(ctx, repository.RunListFilter{
		AccountID:     req.AccountID,
		Type:          req.Type,
		AlgorithmID:   req.AlgorithmID,
		Status:        req.Status,
		CreatedAfter:  req.CreatedAfter,
		CreatedBefore: req.CreatedBefore,
		Cursor:        cursor.Decode(req.Cursor),
		Limit:         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := &ListResult{Runs: runs}
	if len(runs) == limit {
		last := runs[len(runs)-1]
		result.NextCursor = cursor.Encode(cursor.Cursor{ID: last.ID, SortValue: last.CreatedAt})
	}
	return result, nil
}

// publish fires a best-effort status event. Failures are logged and counted,
// never propagated.
func (m *Manager) publish(ctx context.Context, run *models.BacktestRun, message string) {
	event := stream.RunStatusEvent{
		RunID:      run.ID.String(),
		AccountID:  run.AccountID.String(),
		Type:       run.Type,
		Status:     run.Status,
		Progress:   run.ProgressPercent(),
		Message:    message,
		OccurredAt: m.now().UTC(),
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		metrics.StatusPublishFailuresTotal.Inc()
		m.logger.WithError(err).WithField("run_id", run.ID).Warn("Status publish failed")
	}
}
