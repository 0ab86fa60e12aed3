package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/backtest-pilot/internal/config"
	"github.com/yourusername/backtest-pilot/internal/models"
	"github.com/yourusername/backtest-pilot/internal/repository"
	"github.com/yourusername/backtest-pilot/internal/slippage"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type managerFixture struct {
	runs        *MockRunRepository
	datasets    *MockDatasetRepository
	algorithms  *MockAlgorithmRepository
	performance *MockPerformanceRepository
	signals     *MockSignalRepository
	fills       *MockFillRepository
	reports     *MockReportRepository
	dispatcher  *fakeDispatcher
	publisher   *capturePublisher
	manager     *Manager
}

func newManagerFixture() *managerFixture {
	f := &managerFixture{
		runs:        new(MockRunRepository),
		datasets:    new(MockDatasetRepository),
		algorithms:  new(MockAlgorithmRepository),
		performance: new(MockPerformanceRepository),
		signals:     new(MockSignalRepository),
		fills:       new(MockFillRepository),
		reports:     new(MockReportRepository),
		dispatcher:  &fakeDispatcher{},
		publisher:   &capturePublisher{},
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	f.manager = NewManager(&repository.Repositories{
		Run:         f.runs,
		Dataset:     f.datasets,
		Algorithm:   f.algorithms,
		Performance: f.performance,
		Signal:      f.signals,
		Fill:        f.fills,
		Report:      f.reports,
	}, f.dispatcher, f.publisher, config.BacktestConfig{
		MaxCheckpointAgeHours: 24,
		DefaultListLimit:      50,
		MaxListLimit:          200,
		LowIntegrityThreshold: 80,
	}, logger)
	f.manager.now = func() time.Time { return testNow }
	return f
}

func activeAlgorithm() *models.Algorithm {
	return &models.Algorithm{ID: uuid.New(), Name: "mean-reversion", Active: true}
}

func goodDataset() *models.MarketDataSet {
	return &models.MarketDataSet{
		ID:             uuid.New(),
		Label:          "btc-2024",
		Timeframe:      models.TimeframeHour,
		WindowStart:    testNow.AddDate(0, -6, 0),
		WindowEnd:      testNow,
		IntegrityScore: 95,
		ReplayCapable:  true,
	}
}

func validCreateRequest(algo *models.Algorithm, ds *models.MarketDataSet) CreateRunRequest {
	return CreateRunRequest{
		AccountID:      uuid.New(),
		Type:           models.RunTypeHistorical,
		AlgorithmID:    algo.ID,
		DatasetID:      ds.ID,
		WindowStart:    testNow.AddDate(0, -3, 0),
		WindowEnd:      testNow.AddDate(0, 0, -1),
		InitialCapital: 10000,
		TradingFee:     0.0015,
	}
}

func TestCreateRun(t *testing.T) {
	f := newManagerFixture()
	algo := activeAlgorithm()
	ds := goodDataset()

	f.algorithms.On("GetByID", mock.Anything, algo.ID).Return(algo, nil)
	f.datasets.On("GetByID", mock.Anything, ds.ID).Return(ds, nil)
	f.runs.On("Create", mock.Anything, mock.AnythingOfType("*models.BacktestRun")).Return(nil)

	run, err := f.manager.Create(context.Background(), validCreateRequest(algo, ds))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusPending, run.Status)
	assert.Equal(t, algo.Name, run.Config.AlgorithmName)
	assert.Equal(t, slippage.ModelFixed, run.Config.Slippage.Model)
	assert.NotEmpty(t, run.DeterministicSeed)
	assert.Empty(t, run.WarningFlags)

	require.Len(t, f.dispatcher.dispatched, 1)
	assert.Equal(t, run.ID, f.dispatcher.dispatched[0].ID)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, models.RunStatusPending, f.publisher.events[0].Status)
}

func TestCreateRunValidation(t *testing.T) {
	algo := activeAlgorithm()
	ds := goodDataset()

	tests := []struct {
		name   string
		mutate func(*CreateRunRequest)
	}{
		{"unknown type", func(r *CreateRunRequest) { r.Type = "FORWARD_TEST" }},
		{"non-positive capital", func(r *CreateRunRequest) { r.InitialCapital = 0 }},
		{"inverted window", func(r *CreateRunRequest) { r.WindowStart, r.WindowEnd = r.WindowEnd, r.WindowStart }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newManagerFixture()
			req := validCreateRequest(algo, ds)
			tt.mutate(&req)

			_, err := f.manager.Create(context.Background(), req)
			require.Error(t, err)
			assert.True(t, models.IsValidation(err))
			assert.Empty(t, f.dispatcher.dispatched)
		})
	}
}

func TestCreateRunUnknownAlgorithm(t *testing.T) {
	f := newManagerFixture()
	algo := activeAlgorithm()
	ds := goodDataset()

	f.algorithms.On("GetByID", mock.Anything, algo.ID).Return(nil, models.ErrNotFound)

	_, err := f.manager.Create(context.Background(), validCreateRequest(algo, ds))
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestCreateRunReplayNeedsReplayCapableDataset(t *testing.T) {
	f := newManagerFixture()
	algo := activeAlgorithm()
	ds := goodDataset()
	ds.ReplayCapable = false

	f.algorithms.On("GetByID", mock.Anything, algo.ID).Return(algo, nil)
	f.datasets.On("GetByID", mock.Anything, ds.ID).Return(ds, nil)

	req := validCreateRequest(algo, ds)
	req.Type = models.RunTypeLiveReplay

	_, err := f.manager.Create(context.Background(), req)
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestCreateRunWarningFlags(t *testing.T) {
	f := newManagerFixture()
	algo := activeAlgorithm()
	ds := goodDataset()
	ds.IntegrityScore = 72
	ds.WindowStart = testNow.AddDate(0, -1, 0)

	f.algorithms.On("GetByID", mock.Anything, algo.ID).Return(algo, nil)
	f.datasets.On("GetByID", mock.Anything, ds.ID).Return(ds, nil)
	f.runs.On("Create", mock.Anything, mock.Anything).Return(nil)

	// Request window starts before the dataset does.
	req := validCreateRequest(algo, ds)

	run, err := f.manager.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, run.WarningFlags, WarningLowIntegrity)
	assert.Contains(t, run.WarningFlags, WarningWindowClipped)
	require.Len(t, f.dispatcher.dispatched, 1)
}

func TestCreateRunHonorsSuppliedSeed(t *testing.T) {
	f := newManagerFixture()
	algo := activeAlgorithm()
	ds := goodDataset()

	f.algorithms.On("GetByID", mock.Anything, algo.ID).Return(algo, nil)
	f.datasets.On("GetByID", mock.Anything, ds.ID).Return(ds, nil)
	f.runs.On("Create", mock.Anything, mock.Anything).Return(nil)

	req := validCreateRequest(algo, ds)
	req.DeterministicSeed = "fixed-seed-42"

	run, err := f.manager.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "fixed-seed-42", run.DeterministicSeed)
}

func TestCreateRunPaperTradingNotDispatched(t *testing.T) {
	f := newManagerFixture()
	algo := activeAlgorithm()
	ds := goodDataset()
	ds.ReplayCapable = false

	f.algorithms.On("GetByID", mock.Anything, algo.ID).Return(algo, nil)
	f.datasets.On("GetByID", mock.Anything, ds.ID).Return(ds, nil)
	f.runs.On("Create", mock.Anything, mock.Anything).Return(nil)

	req := validCreateRequest(algo, ds)
	req.Type = models.RunTypePaperTrading

	run, err := f.manager.Create(context.Background(), req)
	require.NoError(t, err)

	// Persisted for the paper-trading subsystem, never queued here.
	assert.Empty(t, f.dispatcher.dispatched)
	assert.Contains(t, run.WarningFlags, WarningNotReplayCapable)
}

func TestResumeKeepsFreshCheckpoint(t *testing.T) {
	f := newManagerFixture()
	accountID := uuid.New()
	checkpointAt := testNow.Add(-2 * time.Hour)
	run := &models.BacktestRun{
		ID:                uuid.New(),
		AccountID:         accountID,
		Type:              models.RunTypeHistorical,
		Status:            models.RunStatusFailed,
		DeterministicSeed: "seed-1",
		Checkpoint:        &models.CheckpointState{LastProcessedIndex: 420},
		LastCheckpointAt:  &checkpointAt,
	}

	f.runs.On("GetForAccount", mock.Anything, run.ID, accountID).Return(run, nil)
	f.runs.On("UpdateStatus", mock.Anything, run.ID, models.RunStatusFailed, models.RunStatusPending, "").Return(nil)

	resumed, err := f.manager.Resume(context.Background(), run.ID, accountID)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusPending, resumed.Status)
	assert.Equal(t, "seed-1", resumed.DeterministicSeed)
	require.NotNil(t, resumed.Checkpoint)
	assert.Equal(t, int64(420), resumed.Checkpoint.LastProcessedIndex)
	f.runs.AssertNotCalled(t, "ResetCheckpoint", mock.Anything, mock.Anything)
	require.Len(t, f.dispatcher.dispatched, 1)
}

func TestResumeDiscardsExpiredCheckpoint(t *testing.T) {
	f := newManagerFixture()
	accountID := uuid.New()
	checkpointAt := testNow.Add(-25 * time.Hour)
	run := &models.BacktestRun{
		ID:               uuid.New(),
		AccountID:        accountID,
		Type:             models.RunTypeHistorical,
		Status:           models.RunStatusFailed,
		Checkpoint:       &models.CheckpointState{LastProcessedIndex: 420},
		LastCheckpointAt: &checkpointAt,
	}

	f.runs.On("GetForAccount", mock.Anything, run.ID, accountID).Return(run, nil)
	f.runs.On("ResetCheckpoint", mock.Anything, run.ID).Return(nil)
	f.runs.On("UpdateStatus", mock.Anything, run.ID, models.RunStatusFailed, models.RunStatusPending, "").Return(nil)

	resumed, err := f.manager.Resume(context.Background(), run.ID, accountID)
	require.NoError(t, err)

	assert.Nil(t, resumed.Checkpoint)
	f.runs.AssertCalled(t, "ResetCheckpoint", mock.Anything, run.ID)
}

func TestResumeClearsStalePauseRequest(t *testing.T) {
	f := newManagerFixture()
	accountID := uuid.New()
	run := &models.BacktestRun{
		ID:             uuid.New(),
		AccountID:      accountID,
		Type:           models.RunTypeLiveReplay,
		Status:         models.RunStatusCancelled,
		PauseRequested: true,
	}

	f.runs.On("GetForAccount", mock.Anything, run.ID, accountID).Return(run, nil)
	f.runs.On("SetPauseRequested", mock.Anything, run.ID, false).Return(nil)
	f.runs.On("UpdateStatus", mock.Anything, run.ID, models.RunStatusCancelled, models.RunStatusPending, "").Return(nil)

	resumed, err := f.manager.Resume(context.Background(), run.ID, accountID)
	require.NoError(t, err)

	assert.False(t, resumed.PauseRequested)
	f.runs.AssertCalled(t, "SetPauseRequested", mock.Anything, run.ID, false)
}

func TestResumeRejectsActiveRun(t *testing.T) {
	for _, status := range []models.RunStatus{models.RunStatusRunning, models.RunStatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			f := newManagerFixture()
			accountID := uuid.New()
			run := &models.BacktestRun{ID: uuid.New(), AccountID: accountID, Status: status}

			f.runs.On("GetForAccount", mock.Anything, run.ID, accountID).Return(run, nil)

			_, err := f.manager.Resume(context.Background(), run.ID, accountID)
			require.Error(t, err)
			assert.True(t, models.IsInvalidTransition(err))
		})
	}
}

func TestPauseOnlyRunningReplay(t *testing.T) {
	tests := []struct {
		name    string
		runType models.RunType
		status  models.RunStatus
		wantErr bool
	}{
		{"running replay", models.RunTypeLiveReplay, models.RunStatusRunning, false},
		{"historical run", models.RunTypeHistorical, models.RunStatusRunning, true},
		{"pending replay", models.RunTypeLiveReplay, models.RunStatusPending, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newManagerFixture()
			accountID := uuid.New()
			run := &models.BacktestRun{ID: uuid.New(), AccountID: accountID, Type: tt.runType, Status: tt.status}

			f.runs.On("GetForAccount", mock.Anything, run.ID, accountID).Return(run, nil)
			f.runs.On("SetPauseRequested", mock.Anything, run.ID, true).Return(nil)

			err := f.manager.Pause(context.Background(), run.ID, accountID)
			if tt.wantErr {
				require.Error(t, err)
				f.runs.AssertNotCalled(t, "SetPauseRequested", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			f.runs.AssertCalled(t, "SetPauseRequested", mock.Anything, run.ID, true)
		})
	}
}

func TestCancelRemovesQueuedJob(t *testing.T) {
	f := newManagerFixture()
	accountID := uuid.New()
	run := &models.BacktestRun{ID: uuid.New(), AccountID: accountID, Type: models.RunTypeHistorical, Status: models.RunStatusPending}

	f.runs.On("GetForAccount", mock.Anything, run.ID, accountID).Return(run, nil)
	f.runs.On("UpdateStatus", mock.Anything, run.ID, models.RunStatusPending, models.RunStatusCancelled, "").Return(nil)

	require.NoError(t, f.manager.Cancel(context.Background(), run.ID, accountID))
	assert.Equal(t, []uuid.UUID{run.ID}, f.dispatcher.removed)
}

func TestCancelCompletedRunRejected(t *testing.T) {
	f := newManagerFixture()
	accountID := uuid.New()
	run := &models.BacktestRun{ID: uuid.New(), AccountID: accountID, Status: models.RunStatusCompleted}

	f.runs.On("GetForAccount", mock.Anything, run.ID, accountID).Return(run, nil)

	err := f.manager.Cancel(context.Background(), run.ID, accountID)
	require.Error(t, err)
	assert.True(t, models.IsInvalidTransition(err))
}

func TestDeleteRunningRunRejected(t *testing.T) {
	f := newManagerFixture()
	accountID := uuid.New()
	run := &models.BacktestRun{ID: uuid.New(), AccountID: accountID, Status: models.RunStatusRunning}

	f.runs.On("GetForAccount", mock.Anything, run.ID, accountID).Return(run, nil)

	err := f.manager.Delete(context.Background(), run.ID, accountID)
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
	f.runs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestListClampsLimitAndPaginates(t *testing.T) {
	f := newManagerFixture()
	accountID := uuid.New()

	page := make([]*models.BacktestRun, 200)
	for i := range page {
		page[i] = &models.BacktestRun{ID: uuid.New(), CreatedAt: testNow.Add(-time.Duration(i) * time.Minute)}
	}

	f.runs.On("List", mock.Anything, mock.MatchedBy(func(filter repository.RunListFilter) bool {
		return filter.Limit == 200 && filter.Cursor == nil
	})).Return(page, nil)

	result, err := f.manager.List(context.Background(), ListRequest{AccountID: accountID, Limit: 9999})
	require.NoError(t, err)
	assert.Len(t, result.Runs, 200)
	assert.NotEmpty(t, result.NextCursor)
}

func TestListDefaultLimitNoNextPage(t *testing.T) {
	f := newManagerFixture()
	runs := []*models.BacktestRun{{ID: uuid.New(), CreatedAt: testNow}}

	f.runs.On("List", mock.Anything, mock.MatchedBy(func(filter repository.RunListFilter) bool {
		return filter.Limit == 50
	})).Return(runs, nil)

	result, err := f.manager.List(context.Background(), ListRequest{AccountID: uuid.New()})
	require.NoError(t, err)
	assert.Len(t, result.Runs, 1)
	assert.Empty(t, result.NextCursor)
}

func TestListMalformedCursorIgnored(t *testing.T) {
	f := newManagerFixture()
	f.runs.On("List", mock.Anything, mock.MatchedBy(func(filter repository.RunListFilter) bool {
		return filter.Cursor == nil
	})).Return([]*models.BacktestRun{}, nil)

	_, err := f.manager.List(context.Background(), ListRequest{AccountID: uuid.New(), Cursor: "not-base64!!"})
	require.NoError(t, err)
}
