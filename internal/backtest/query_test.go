package backtest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/backtest-pilot/internal/models"
)

func TestGetProgress(t *testing.T) {
	f := newManagerFixture()
	accountID := uuid.New()
	run := &models.BacktestRun{
		ID:                      uuid.New(),
		AccountID:               accountID,
		Status:                  models.RunStatusRunning,
		ProcessedTimestampCount: 250,
		TotalTimestampCount:     1000,
		WarningFlags:            []string{WarningLowIntegrity},
	}

	f.runs.On("GetForAccount", mock.Anything, run.ID, accountID).Return(run, nil)

	progress, err := f.manager.GetProgress(context.Background(), run.ID, accountID)
	require.NoError(t, err)
	assert.Equal(t, 25.0, progress.Percent)
	assert.Equal(t, int64(250), progress.ProcessedCount)
	assert.Contains(t, progress.WarningFlags, WarningLowIntegrity)
}

func TestGetPerformanceRequiresCompletion(t *testing.T) {
	f := newManagerFixture()
	accountID := uuid.New()
	run := &models.BacktestRun{ID: uuid.New(), AccountID: accountID, Status: models.RunStatusRunning}

	f.runs.On("GetForAccount", mock.Anything, run.ID, accountID).Return(run, nil)

	_, err := f.manager.GetPerformance(context.Background(), run.ID, accountID)
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestGetPerformance(t *testing.T) {
	f := newManagerFixture()
	accountID := uuid.New()
	run := &models.BacktestRun{ID: uuid.New(), AccountID: accountID, Status: models.RunStatusCompleted}
	perf := &models.RunPerformance{RunID: run.ID, SharpeRatio: 1.4}

	f.runs.On("GetForAccount", mock.Anything, run.ID, accountID).Return(run, nil)
	f.performance.On("GetByRun", mock.Anything, run.ID).Return(perf, nil)

	got, err := f.manager.GetPerformance(context.Background(), run.ID, accountID)
	require.NoError(t, err)
	assert.Equal(t, 1.4, got.SharpeRatio)
}

func TestCompareRequiresTwoDistinctRuns(t *testing.T) {
	f := newManagerFixture()
	id := uuid.New()

	_, err := f.manager.Compare(context.Background(), uuid.New(), "", []uuid.UUID{id, id})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestCompare(t *testing.T) {
	f := newManagerFixture()
	accountID := uuid.New()
	runA := &models.BacktestRun{ID: uuid.New(), AccountID: accountID, Status: models.RunStatusCompleted}
	runB := &models.BacktestRun{ID: uuid.New(), AccountID: accountID, Status: models.RunStatusFailed}

	f.runs.On("GetForAccount", mock.Anything, runA.ID, accountID).Return(runA, nil)
	f.runs.On("GetForAccount", mock.Anything, runB.ID, accountID).Return(runB, nil)
	f.performance.On("GetByRun", mock.Anything, runA.ID).Return(&models.RunPerformance{RunID: runA.ID}, nil)

	cmp, err := f.manager.Compare(context.Background(), accountID, "", []uuid.UUID{runA.ID, runB.ID})
	require.NoError(t, err)
	require.Len(t, cmp.Entries, 2)
	assert.NotNil(t, cmp.Entries[0].Performance)
	assert.Nil(t, cmp.Entries[1].Performance)
	assert.Nil(t, cmp.ReportID)
}

func TestComparePersistsNamedReport(t *testing.T) {
	f := newManagerFixture()
	accountID := uuid.New()
	runA := &models.BacktestRun{ID: uuid.New(), AccountID: accountID, Status: models.RunStatusFailed}
	runB := &models.BacktestRun{ID: uuid.New(), AccountID: accountID, Status: models.RunStatusFailed}

	f.runs.On("GetForAccount", mock.Anything, runA.ID, accountID).Return(runA, nil)
	f.runs.On("GetForAccount", mock.Anything, runB.ID, accountID).Return(runB, nil)
	f.reports.On("Create", mock.Anything, mock.AnythingOfType("*models.ComparisonReport")).Return(nil)

	cmp, err := f.manager.Compare(context.Background(), accountID, "q2-showdown", []uuid.UUID{runA.ID, runB.ID})
	require.NoError(t, err)
	require.NotNil(t, cmp.ReportID)
	f.reports.AssertCalled(t, "Create", mock.Anything, mock.AnythingOfType("*models.ComparisonReport"))
}

func TestCompareForeignRunRejected(t *testing.T) {
	f := newManagerFixture()
	accountID := uuid.New()
	runA := &models.BacktestRun{ID: uuid.New(), AccountID: accountID, Status: models.RunStatusCompleted}
	foreign := uuid.New()

	f.runs.On("GetForAccount", mock.Anything, runA.ID, accountID).Return(runA, nil)
	f.runs.On("GetForAccount", mock.Anything, foreign, accountID).Return(nil, models.ErrNotFound)

	_, err := f.manager.Compare(context.Background(), accountID, "", []uuid.UUID{runA.ID, foreign})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}
