package backtest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/yourusername/backtest-pilot/internal/models"
	"github.com/yourusername/backtest-pilot/internal/queue"
	"github.com/yourusername/backtest-pilot/internal/repository"
	"github.com/yourusername/backtest-pilot/internal/stream"
)

// MockRunRepository mocks run persistence
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Create(ctx context.Context, run *models.BacktestRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BacktestRun), args.Error(1)
}

func (m *MockRunRepository) GetForAccount(ctx context.Context, id, accountID uuid.UUID) (*models.BacktestRun, error) {
	args := m.Called(ctx, id, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BacktestRun), args.Error(1)
}

func (m *MockRunRepository) List(ctx context.Context, filter repository.RunListFilter) ([]*models.BacktestRun, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BacktestRun), args.Error(1)
}

func (m *MockRunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RunStatus, errorMessage string) error {
	args := m.Called(ctx, id, from, to, errorMessage)
	return args.Error(0)
}

func (m *MockRunRepository) SetPauseRequested(ctx context.Context, id uuid.UUID, requested bool) error {
	args := m.Called(ctx, id, requested)
	return args.Error(0)
}

func (m *MockRunRepository) ResetCheckpoint(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRunRepository) RecordCheckpoint(ctx context.Context, id uuid.UUID, cp *models.CheckpointState, processed, total int64) error {
	args := m.Called(ctx, id, cp, processed, total)
	return args.Error(0)
}

func (m *MockRunRepository) FindStale(ctx context.Context, runType models.RunType, olderThan time.Time) ([]*models.BacktestRun, error) {
	args := m.Called(ctx, runType, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BacktestRun), args.Error(1)
}

func (m *MockRunRepository) HasRecentRun(ctx context.Context, accountID, algorithmID uuid.UUID, since time.Time) (bool, error) {
	args := m.Called(ctx, accountID, algorithmID, since)
	return args.Bool(0), args.Error(1)
}

func (m *MockRunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockDatasetRepository mocks dataset access
type MockDatasetRepository struct {
	mock.Mock
}

func (m *MockDatasetRepository) Create(ctx context.Context, ds *models.MarketDataSet) error {
	args := m.Called(ctx, ds)
	return args.Error(0)
}

func (m *MockDatasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MarketDataSet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MarketDataSet), args.Error(1)
}

func (m *MockDatasetRepository) GetByLabel(ctx context.Context, label string) (*models.MarketDataSet, error) {
	args := m.Called(ctx, label)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MarketDataSet), args.Error(1)
}

func (m *MockDatasetRepository) FindBest(ctx context.Context, q repository.DatasetQuery) (*models.MarketDataSet, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MarketDataSet), args.Error(1)
}

func (m *MockDatasetRepository) Update(ctx context.Context, ds *models.MarketDataSet) error {
	args := m.Called(ctx, ds)
	return args.Error(0)
}

// MockAlgorithmRepository mocks the algorithm catalog
type MockAlgorithmRepository struct {
	mock.Mock
}

func (m *MockAlgorithmRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Algorithm, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Algorithm), args.Error(1)
}

// MockPerformanceRepository mocks performance summaries
type MockPerformanceRepository struct {
	mock.Mock
}

func (m *MockPerformanceRepository) GetByRun(ctx context.Context, runID uuid.UUID) (*models.RunPerformance, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RunPerformance), args.Error(1)
}

func (m *MockPerformanceRepository) Save(ctx context.Context, perf *models.RunPerformance) error {
	args := m.Called(ctx, perf)
	return args.Error(0)
}

// MockSignalRepository mocks signal listings
type MockSignalRepository struct {
	mock.Mock
}

func (m *MockSignalRepository) ListByRun(ctx context.Context, runID uuid.UUID, filter repository.ArtifactFilter) ([]*models.Signal, error) {
	args := m.Called(ctx, runID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Signal), args.Error(1)
}

// MockFillRepository mocks fill listings
type MockFillRepository struct {
	mock.Mock
}

func (m *MockFillRepository) ListByRun(ctx context.Context, runID uuid.UUID, filter repository.ArtifactFilter) ([]*models.TradeFill, error) {
	args := m.Called(ctx, runID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TradeFill), args.Error(1)
}

// MockReportRepository mocks comparison reports
type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) Create(ctx context.Context, report *models.ComparisonReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportRepository) GetForAccount(ctx context.Context, id, accountID uuid.UUID) (*models.ComparisonReport, error) {
	args := m.Called(ctx, id, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ComparisonReport), args.Error(1)
}

// fakeDispatcher records dispatched and removed runs
type fakeDispatcher struct {
	dispatched []*models.BacktestRun
	removed    []uuid.UUID
	err        error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, run *models.BacktestRun, opts queue.EnqueueOptions) error {
	if f.err != nil {
		return f.err
	}
	f.dispatched = append(f.dispatched, run)
	return nil
}

func (f *fakeDispatcher) Remove(run *models.BacktestRun) bool {
	f.removed = append(f.removed, run.ID)
	return true
}

// capturePublisher records published events
type capturePublisher struct {
	events []stream.RunStatusEvent
}

func (c *capturePublisher) Publish(ctx context.Context, event stream.RunStatusEvent) error {
	c.events = append(c.events, event)
	return nil
}
