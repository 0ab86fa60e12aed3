package watchdog

import (
	"context"
	"errors"
	"strings"
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
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// MockRunRepository mocks only what the watchdog touches
type MockRunRepository struct {
	repository.RunRepository
	mock.Mock
}

func (m *MockRunRepository) FindStale(ctx context.Context, runType models.RunType, olderThan time.Time) ([]*models.BacktestRun, error) {
	args := m.Called(ctx, runType, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BacktestRun), args.Error(1)
}

func (m *MockRunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RunStatus, errorMessage string) error {
	args := m.Called(ctx, id, from, to, errorMessage)
	return args.Error(0)
}

func newWatchdogFixture() (*Watchdog, *MockRunRepository) {
	runs := new(MockRunRepository)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	w := NewWatchdog(runs, config.WatchdogConfig{
		IntervalMinutes:        15,
		HistoricalStaleMinutes: 90,
		ReplayStaleMinutes:     120,
	}, logger)
	w.now = func() time.Time { return testNow }
	return w, runs
}

func TestSweepThresholdsPerType(t *testing.T) {
	w, runs := newWatchdogFixture()

	runs.On("FindStale", mock.Anything, models.RunTypeHistorical, testNow.Add(-90*time.Minute)).
		Return([]*models.BacktestRun{}, nil)
	runs.On("FindStale", mock.Anything, models.RunTypeLiveReplay, testNow.Add(-120*time.Minute)).
		Return([]*models.BacktestRun{}, nil)

	result, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Killed)
	runs.AssertExpectations(t)
}

func TestSweepKillsStaleRun(t *testing.T) {
	w, runs := newWatchdogFixture()
	stale := &models.BacktestRun{
		ID:         uuid.New(),
		Type:       models.RunTypeHistorical,
		Status:     models.RunStatusRunning,
		Checkpoint: &models.CheckpointState{LastProcessedIndex: 8421},
	}

	runs.On("FindStale", mock.Anything, models.RunTypeHistorical, mock.Anything).
		Return([]*models.BacktestRun{stale}, nil)
	runs.On("FindStale", mock.Anything, models.RunTypeLiveReplay, mock.Anything).
		Return([]*models.BacktestRun{}, nil)
	runs.On("UpdateStatus", mock.Anything, stale.ID, models.RunStatusRunning, models.RunStatusFailed,
		mock.MatchedBy(func(reason string) bool {
			return strings.Contains(reason, "watchdog") && strings.Contains(reason, "8421")
		})).Return(nil)

	result, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Killed)
	assert.Empty(t, result.Errors)
}

func TestSweepRunFinishedConcurrently(t *testing.T) {
	w, runs := newWatchdogFixture()
	stale := &models.BacktestRun{ID: uuid.New(), Type: models.RunTypeHistorical, Status: models.RunStatusRunning}

	runs.On("FindStale", mock.Anything, models.RunTypeHistorical, mock.Anything).
		Return([]*models.BacktestRun{stale}, nil)
	runs.On("FindStale", mock.Anything, models.RunTypeLiveReplay, mock.Anything).
		Return([]*models.BacktestRun{}, nil)
	// The conditional update misses because the run left RUNNING already.
	runs.On("UpdateStatus", mock.Anything, stale.ID, models.RunStatusRunning, models.RunStatusFailed, mock.Anything).
		Return(models.ErrNotFound)

	result, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Killed)
	assert.Empty(t, result.Errors)
}

func TestSweepErrorIsolation(t *testing.T) {
	w, runs := newWatchdogFixture()
	first := &models.BacktestRun{ID: uuid.New(), Type: models.RunTypeHistorical, Status: models.RunStatusRunning}
	second := &models.BacktestRun{ID: uuid.New(), Type: models.RunTypeHistorical, Status: models.RunStatusRunning}

	runs.On("FindStale", mock.Anything, models.RunTypeHistorical, mock.Anything).
		Return([]*models.BacktestRun{first, second}, nil)
	runs.On("FindStale", mock.Anything, models.RunTypeLiveReplay, mock.Anything).
		Return([]*models.BacktestRun{}, nil)
	runs.On("UpdateStatus", mock.Anything, first.ID, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("deadlock detected"))
	runs.On("UpdateStatus", mock.Anything, second.ID, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	result, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Killed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), first.ID.String())
}

func TestStaleSinceBoundaries(t *testing.T) {
	checkpointAt := testNow.Add(-89 * time.Minute)
	fresh := &models.BacktestRun{LastCheckpointAt: &checkpointAt, UpdatedAt: testNow.Add(-200 * time.Minute)}
	assert.Equal(t, checkpointAt, fresh.StaleSince())

	noCheckpoint := &models.BacktestRun{UpdatedAt: testNow.Add(-91 * time.Minute)}
	assert.Equal(t, testNow.Add(-91*time.Minute), noCheckpoint.StaleSince())
}
