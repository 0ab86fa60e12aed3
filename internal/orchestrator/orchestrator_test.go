package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/backtest-pilot/internal/backtest"
	"github.com/yourusername/backtest-pilot/internal/config"
	"github.com/yourusername/backtest-pilot/internal/models"
	"github.com/yourusername/backtest-pilot/internal/queue"
	"github.com/yourusername/backtest-pilot/internal/repository"
)

var testNow = time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)

// MockAccountRepository mocks account access
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) ListAutoTrading(ctx context.Context) ([]*models.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Account), args.Error(1)
}

// MockStrategyRepository mocks strategy config access
type MockStrategyRepository struct {
	mock.Mock
}

func (m *MockStrategyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.StrategyConfig, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StrategyConfig), args.Error(1)
}

func (m *MockStrategyRepository) ListValidatedByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.StrategyConfig, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.StrategyConfig), args.Error(1)
}

func (m *MockStrategyRepository) Update(ctx context.Context, sc *models.StrategyConfig) error {
	args := m.Called(ctx, sc)
	return args.Error(0)
}

func (m *MockStrategyRepository) LockLiveMembers(ctx context.Context, tx pgx.Tx, poolID uuid.UUID) ([]*models.StrategyConfig, error) {
	args := m.Called(ctx, tx, poolID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.StrategyConfig), args.Error(1)
}

func (m *MockStrategyRepository) AssignPool(ctx context.Context, tx pgx.Tx, strategyID, poolID, scoreID uuid.UUID) error {
	args := m.Called(ctx, tx, strategyID, poolID, scoreID)
	return args.Error(0)
}

func (m *MockStrategyRepository) RetireFromPool(ctx context.Context, tx pgx.Tx, strategyID uuid.UUID) error {
	args := m.Called(ctx, tx, strategyID)
	return args.Error(0)
}

// MockRunProbe mocks only the run repository methods the orchestrator touches
type MockRunProbe struct {
	repository.RunRepository
	mock.Mock
}

func (m *MockRunProbe) HasRecentRun(ctx context.Context, accountID, algorithmID uuid.UUID, since time.Time) (bool, error) {
	args := m.Called(ctx, accountID, algorithmID, since)
	return args.Bool(0), args.Error(1)
}

// MockDatasetFinder mocks only dataset lookup
type MockDatasetFinder struct {
	repository.DatasetRepository
	mock.Mock
}

func (m *MockDatasetFinder) FindBest(ctx context.Context, q repository.DatasetQuery) (*models.MarketDataSet, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MarketDataSet), args.Error(1)
}

type fakeCreator struct {
	requests []backtest.CreateRunRequest
	err      error
}

func (f *fakeCreator) Create(ctx context.Context, req backtest.CreateRunRequest) (*models.BacktestRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &models.BacktestRun{ID: uuid.New(), Status: models.RunStatusPending}, nil
}

type fakeOrchDispatcher struct {
	payloads []queue.OrchestrationJobPayload
	delays   []time.Duration
	err      error
}

func (f *fakeOrchDispatcher) DispatchOrchestration(ctx context.Context, payload queue.OrchestrationJobPayload, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	f.delays = append(f.delays, delay)
	return nil
}

type orchestratorFixture struct {
	accounts   *MockAccountRepository
	strategies *MockStrategyRepository
	runs       *MockRunProbe
	datasets   *MockDatasetFinder
	creator    *fakeCreator
	dispatcher *fakeOrchDispatcher
	orch       *Orchestrator
}

func newOrchestratorFixture() *orchestratorFixture {
	f := &orchestratorFixture{
		accounts:   new(MockAccountRepository),
		strategies: new(MockStrategyRepository),
		runs:       new(MockRunProbe),
		datasets:   new(MockDatasetFinder),
		creator:    &fakeCreator{},
		dispatcher: &fakeOrchDispatcher{},
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	f.orch = NewOrchestrator(&repository.Repositories{
		Account:  f.accounts,
		Strategy: f.strategies,
		Run:      f.runs,
		Dataset:  f.datasets,
	}, f.creator, f.dispatcher, config.SchedulerConfig{
		CronExpression:      "0 2 * * *",
		DedupWindowHours:    24,
		StaggerSeconds:      30,
		MinDatasetIntegrity: 70,
		StandardCapital:     10000,
		DefaultRiskLevel:    3,
	}, logger)
	f.orch.now = func() time.Time { return testNow }
	return f
}

func TestScheduleDailyStaggersAccounts(t *testing.T) {
	f := newOrchestratorFixture()
	accounts := []*models.Account{
		{ID: uuid.New(), RiskLevel: 1, AutoTradingEnabled: true},
		{ID: uuid.New(), RiskLevel: 0, AutoTradingEnabled: true},
		{ID: uuid.New(), RiskLevel: 5, AutoTradingEnabled: true},
	}
	f.accounts.On("ListAutoTrading", mock.Anything).Return(accounts, nil)

	result, err := f.orch.ScheduleDaily(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.AccountsScheduled)
	assert.Equal(t, []time.Duration{0, 30 * time.Second, 60 * time.Second}, f.dispatcher.delays)
	// An account without an explicit level gets the default.
	assert.Equal(t, 1, f.dispatcher.payloads[0].RiskLevel)
	assert.Equal(t, 3, f.dispatcher.payloads[1].RiskLevel)
	assert.Equal(t, 5, f.dispatcher.payloads[2].RiskLevel)
}

type fakeEnsurer struct {
	calls int
	err   error
}

func (f *fakeEnsurer) Ensure(ctx context.Context) (*models.MarketDataSet, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.MarketDataSet{ID: uuid.New()}, nil
}

func TestScheduleDailyRefreshesDefaultDataset(t *testing.T) {
	f := newOrchestratorFixture()
	ensurer := &fakeEnsurer{}
	f.orch.SetDatasetEnsurer(ensurer)
	f.accounts.On("ListAutoTrading", mock.Anything).Return([]*models.Account{}, nil)

	_, err := f.orch.ScheduleDaily(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ensurer.calls)
}

func TestScheduleDailyContinuesWhenRefreshFails(t *testing.T) {
	f := newOrchestratorFixture()
	f.orch.SetDatasetEnsurer(&fakeEnsurer{err: errors.New("candle summary unavailable")})
	accounts := []*models.Account{{ID: uuid.New(), RiskLevel: 2, AutoTradingEnabled: true}}
	f.accounts.On("ListAutoTrading", mock.Anything).Return(accounts, nil)

	result, err := f.orch.ScheduleDaily(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.AccountsScheduled)
}

func TestScheduleDailyNoAccounts(t *testing.T) {
	f := newOrchestratorFixture()
	f.accounts.On("ListAutoTrading", mock.Anything).Return([]*models.Account{}, nil)

	result, err := f.orch.ScheduleDaily(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.AccountsScheduled)
	assert.Empty(t, f.dispatcher.payloads)
}

func TestProcessAccountCreatesRun(t *testing.T) {
	f := newOrchestratorFixture()
	accountID := uuid.New()
	strat := &models.StrategyConfig{
		ID:              uuid.New(),
		AccountID:       accountID,
		AlgorithmID:     uuid.New(),
		LifecycleStatus: models.LifecycleValidated,
	}
	dataset := &models.MarketDataSet{
		ID:             uuid.New(),
		Timeframe:      models.TimeframeHour,
		WindowStart:    testNow.AddDate(0, 0, -200),
		WindowEnd:      testNow,
		IntegrityScore: 90,
	}

	f.strategies.On("ListValidatedByAccount", mock.Anything, accountID).Return([]*models.StrategyConfig{strat}, nil)
	f.runs.On("HasRecentRun", mock.Anything, accountID, strat.AlgorithmID, testNow.Add(-24*time.Hour)).Return(false, nil)
	f.datasets.On("FindBest", mock.Anything, mock.MatchedBy(func(q repository.DatasetQuery) bool {
		return q.MinIntegrity == 70 && len(q.Timeframes) == 3 && q.Timeframes[0] == models.TimeframeHour
	})).Return(dataset, nil)

	result, err := f.orch.ProcessAccount(context.Background(), accountID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RunsCreated)
	assert.Empty(t, result.Errors)

	require.Len(t, f.creator.requests, 1)
	req := f.creator.requests[0]
	assert.Equal(t, models.RunTypeHistorical, req.Type)
	assert.Equal(t, dataset.ID, req.DatasetID)
	assert.Equal(t, 10000.0, req.InitialCapital)
	assert.Equal(t, 0.0015, req.TradingFee)
	assert.Equal(t, "VOLUME_BASED", req.Slippage.Model)
	assert.Equal(t, 10.0, req.Slippage.Bps)
	assert.True(t, req.Orchestrated)
	assert.Equal(t, 1, req.RiskLevel)
	assert.Equal(t, testNow.AddDate(0, 0, -180), req.WindowStart)
}

func TestProcessAccountDedupSkips(t *testing.T) {
	f := newOrchestratorFixture()
	accountID := uuid.New()
	strat := &models.StrategyConfig{ID: uuid.New(), AccountID: accountID, AlgorithmID: uuid.New()}

	f.strategies.On("ListValidatedByAccount", mock.Anything, accountID).Return([]*models.StrategyConfig{strat}, nil)
	f.runs.On("HasRecentRun", mock.Anything, accountID, strat.AlgorithmID, mock.Anything).Return(true, nil)

	result, err := f.orch.ProcessAccount(context.Background(), accountID, 1)
	require.NoError(t, err)
	assert.Zero(t, result.RunsCreated)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, strat.ID, result.Skipped[0].StrategyID)
	assert.Equal(t, SkipReasonDuplicate, result.Skipped[0].Reason)
	assert.Empty(t, f.creator.requests)
}

func TestProcessAccountTimeframeFallback(t *testing.T) {
	f := newOrchestratorFixture()
	accountID := uuid.New()
	strat := &models.StrategyConfig{ID: uuid.New(), AccountID: accountID, AlgorithmID: uuid.New()}
	minuteDataset := &models.MarketDataSet{ID: uuid.New(), Timeframe: models.TimeframeOneMin, IntegrityScore: 85}

	f.strategies.On("ListValidatedByAccount", mock.Anything, accountID).Return([]*models.StrategyConfig{strat}, nil)
	f.runs.On("HasRecentRun", mock.Anything, accountID, strat.AlgorithmID, mock.Anything).Return(false, nil)
	// Nothing matches the preferred timeframes; the unfiltered retry does.
	f.datasets.On("FindBest", mock.Anything, mock.MatchedBy(func(q repository.DatasetQuery) bool {
		return len(q.Timeframes) == 3
	})).Return(nil, models.ErrNotFound)
	f.datasets.On("FindBest", mock.Anything, mock.MatchedBy(func(q repository.DatasetQuery) bool {
		return len(q.Timeframes) == 0
	})).Return(minuteDataset, nil)

	result, err := f.orch.ProcessAccount(context.Background(), accountID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RunsCreated)
	assert.Equal(t, minuteDataset.ID, f.creator.requests[0].DatasetID)
}

func TestProcessAccountNoDatasetSkips(t *testing.T) {
	f := newOrchestratorFixture()
	accountID := uuid.New()
	strat := &models.StrategyConfig{ID: uuid.New(), AccountID: accountID, AlgorithmID: uuid.New()}

	f.strategies.On("ListValidatedByAccount", mock.Anything, accountID).Return([]*models.StrategyConfig{strat}, nil)
	f.runs.On("HasRecentRun", mock.Anything, accountID, strat.AlgorithmID, mock.Anything).Return(false, nil)
	f.datasets.On("FindBest", mock.Anything, mock.Anything).Return(nil, models.ErrNotFound)

	result, err := f.orch.ProcessAccount(context.Background(), accountID, 1)
	require.NoError(t, err)
	assert.Zero(t, result.RunsCreated)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, strat.ID, result.Skipped[0].StrategyID)
	assert.Equal(t, SkipReasonNoDataset, result.Skipped[0].Reason)
	assert.Empty(t, result.Errors)
}

func TestProcessAccountErrorIsolation(t *testing.T) {
	f := newOrchestratorFixture()
	accountID := uuid.New()
	broken := &models.StrategyConfig{ID: uuid.New(), AccountID: accountID, AlgorithmID: uuid.New()}
	healthy := &models.StrategyConfig{ID: uuid.New(), AccountID: accountID, AlgorithmID: uuid.New()}
	dataset := &models.MarketDataSet{ID: uuid.New(), Timeframe: models.TimeframeHour, IntegrityScore: 90}

	f.strategies.On("ListValidatedByAccount", mock.Anything, accountID).Return([]*models.StrategyConfig{broken, healthy}, nil)
	f.runs.On("HasRecentRun", mock.Anything, accountID, broken.AlgorithmID, mock.Anything).Return(false, errors.New("connection reset"))
	f.runs.On("HasRecentRun", mock.Anything, accountID, healthy.AlgorithmID, mock.Anything).Return(false, nil)
	f.datasets.On("FindBest", mock.Anything, mock.Anything).Return(dataset, nil)

	result, err := f.orch.ProcessAccount(context.Background(), accountID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RunsCreated)
	require.Len(t, result.Errors, 1)
}

func TestProcessAccountUnknownRiskLevel(t *testing.T) {
	f := newOrchestratorFixture()
	_, err := f.orch.ProcessAccount(context.Background(), uuid.New(), 9)
	require.Error(t, err)
}
