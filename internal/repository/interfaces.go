package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/backtest-pilot/internal/cursor"
	"github.com/yourusername/backtest-pilot/internal/models"
)

// RunListFilter narrows a keyset-paginated run listing
type RunListFilter struct {
	AccountID     uuid.UUID
	Type          models.RunType
	AlgorithmID   uuid.UUID
	Status        models.RunStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Cursor        *cursor.Cursor
	Limit         int
}

// RunRepository defines the interface for backtest run data access
type RunRepository interface {
	Create(ctx context.Context, run *models.BacktestRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestRun, error)
	GetForAccount(ctx context.Context, id, accountID uuid.UUID) (*models.BacktestRun, error)
	List(ctx context.Context, filter RunListFilter) ([]*models.BacktestRun, error)
	// UpdateStatus transitions a run only when it is still in the expected
	// status; a concurrent change surfaces as models.ErrNotFound.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RunStatus, errorMessage string) error
	SetPauseRequested(ctx context.Context, id uuid.UUID, requested bool) error
	ResetCheckpoint(ctx context.Context, id uuid.UUID) error
	RecordCheckpoint(ctx context.Context, id uuid.UUID, cp *models.CheckpointState, processed, total int64) error
	FindStale(ctx context.Context, runType models.RunType, olderThan time.Time) ([]*models.BacktestRun, error)
	// HasRecentRun reports whether a run for (account, algorithm) created at
	// or after since exists that is not FAILED and not CANCELLED.
	HasRecentRun(ctx context.Context, accountID, algorithmID uuid.UUID, since time.Time) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// DatasetQuery narrows dataset selection for the orchestrator
type DatasetQuery struct {
	MinIntegrity  float64
	EndAfter      time.Time
	Timeframes    []models.Timeframe
	ReplayCapable *bool
}

// DatasetRepository defines the interface for market dataset access
type DatasetRepository interface {
	Create(ctx context.Context, ds *models.MarketDataSet) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.MarketDataSet, error)
	GetByLabel(ctx context.Context, label string) (*models.MarketDataSet, error)
	// FindBest returns the best match ordered by end date then integrity
	// descending, or models.ErrNotFound when nothing qualifies.
	FindBest(ctx context.Context, q DatasetQuery) (*models.MarketDataSet, error)
	Update(ctx context.Context, ds *models.MarketDataSet) error
}

// StrategyConfigRepository defines the interface for strategy config access
type StrategyConfigRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.StrategyConfig, error)
	ListValidatedByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.StrategyConfig, error)
	Update(ctx context.Context, sc *models.StrategyConfig) error
	// LockLiveMembers selects the live members of a pool FOR UPDATE inside tx,
	// serializing concurrent promotions against the same pool.
	LockLiveMembers(ctx context.Context, tx pgx.Tx, poolID uuid.UUID) ([]*models.StrategyConfig, error)
	AssignPool(ctx context.Context, tx pgx.Tx, strategyID, poolID, scoreID uuid.UUID) error
	RetireFromPool(ctx context.Context, tx pgx.Tx, strategyID uuid.UUID) error
}

// ScoreRepository defines the interface for strategy score access
type ScoreRepository interface {
	Insert(ctx context.Context, score *models.StrategyScore) error
	GetLatest(ctx context.Context, strategyID uuid.UUID) (*models.StrategyScore, error)
	// GetLatestInTx reads the most recent score inside an open transaction so
	// rotation decisions see a consistent snapshot.
	GetLatestInTx(ctx context.Context, tx pgx.Tx, strategyID uuid.UUID) (*models.StrategyScore, error)
}

// RiskPoolRepository defines the interface for risk pool access
type RiskPoolRepository interface {
	GetByLevel(ctx context.Context, level int) (*models.RiskPool, error)
}

// AccountRepository defines the interface for account access
type AccountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	ListAutoTrading(ctx context.Context) ([]*models.Account, error)
}

// AlgorithmRepository defines the interface for algorithm catalog access
type AlgorithmRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Algorithm, error)
}

// ArtifactFilter narrows signal and fill listings
type ArtifactFilter struct {
	Instrument string
	Kind       string // signal type or order type
	Direction  string // signals only
	Status     string // fills only
	Cursor     *cursor.Cursor
	Limit      int
}

// SignalRepository defines the interface for run signal access
type SignalRepository interface {
	ListByRun(ctx context.Context, runID uuid.UUID, filter ArtifactFilter) ([]*models.Signal, error)
}

// FillRepository defines the interface for trade fill access
type FillRepository interface {
	ListByRun(ctx context.Context, runID uuid.UUID, filter ArtifactFilter) ([]*models.TradeFill, error)
}

// PerformanceRepository defines the interface for run performance access
type PerformanceRepository interface {
	GetByRun(ctx context.Context, runID uuid.UUID) (*models.RunPerformance, error)
	Save(ctx context.Context, perf *models.RunPerformance) error
}

// ReportRepository defines the interface for comparison report access
type ReportRepository interface {
	Create(ctx context.Context, report *models.ComparisonReport) error
	GetForAccount(ctx context.Context, id, accountID uuid.UUID) (*models.ComparisonReport, error)
}
