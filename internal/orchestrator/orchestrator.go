// Package orchestrator runs the daily backtest fan-out: every auto-trading
// account gets a staggered job that backtests its validated strategies
// against the freshest qualifying dataset.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-pilot/internal/backtest"
	"github.com/yourusername/backtest-pilot/internal/config"
	"github.com/yourusername/backtest-pilot/internal/metrics"
	"github.com/yourusername/backtest-pilot/internal/models"
	"github.com/yourusername/backtest-pilot/internal/queue"
	"github.com/yourusername/backtest-pilot/internal/repository"
)

// RunCreator creates backtest runs; satisfied by the lifecycle manager
type RunCreator interface {
	Create(ctx context.Context, req backtest.CreateRunRequest) (*models.BacktestRun, error)
}

// OrchestrationDispatcher fans account jobs onto the orchestration queue
type OrchestrationDispatcher interface {
	DispatchOrchestration(ctx context.Context, payload queue.OrchestrationJobPayload, delay time.Duration) error
}

// DatasetEnsurer refreshes the default dataset before a cycle; satisfied by
// datacache.DefaultDatasetManager
type DatasetEnsurer interface {
	Ensure(ctx context.Context) (*models.MarketDataSet, error)
}

// Skip reasons reported in a Result
const (
	SkipReasonDuplicate = "duplicate"
	SkipReasonNoDataset = "no dataset"
)

// SkippedStrategy records one strategy left without a run and why
type SkippedStrategy struct {
	StrategyID uuid.UUID `json:"strategy_id"`
	Reason     string    `json:"reason"`
}

// Result summarizes one orchestration pass
type Result struct {
	AccountsScheduled int
	RunsCreated       int
	Skipped           []SkippedStrategy
	Errors            []error
}

// Orchestrator drives the daily cycle
type Orchestrator struct {
	accounts   repository.AccountRepository
	strategies repository.StrategyConfigRepository
	runs       repository.RunRepository
	datasets   repository.DatasetRepository
	creator    RunCreator
	dispatcher OrchestrationDispatcher
	defaults   DatasetEnsurer
	cfg        config.SchedulerConfig
	logger     *logrus.Logger
	now        func() time.Time
}

// NewOrchestrator creates the daily orchestration service
func NewOrchestrator(
	repos *repository.Repositories,
	creator RunCreator,
	dispatcher OrchestrationDispatcher,
	cfg config.SchedulerConfig,
	logger *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		accounts:   repos.Account,
		strategies: repos.Strategy,
		runs:       repos.Run,
		datasets:   repos.Dataset,
		creator:    creator,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// SetDatasetEnsurer makes each cycle refresh the default dataset first
func (o *Orchestrator) SetDatasetEnsurer(e DatasetEnsurer) {
	o.defaults = e
}

// ScheduleDaily enqueues one orchestration job per auto-trading account,
// staggering them so account N starts N stagger intervals after the first.
// One account failing to enqueue does not stop the rest.
func (o *Orchestrator) ScheduleDaily(ctx context.Context) (*Result, error) {
	start := o.now()
	defer func() {
		metrics.OrchestrationCycleDuration.Observe(o.now().Sub(start).Seconds())
	}()

	if o.defaults != nil {
		if _, err := o.defaults.Ensure(ctx); err != nil {
			o.logger.WithError(err).Warn("Failed to refresh default dataset, continuing with existing catalog")
		}
	}

	accounts, err := o.accounts.ListAutoTrading(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-trading accounts: %w", err)
	}

	stagger := time.Duration(o.cfg.StaggerSeconds) * time.Second
	result := &Result{}
	scheduledAt := o.now().UTC()

	for i, acct := range accounts {
		level := acct.RiskLevel
		if level == 0 {
			level = o.cfg.DefaultRiskLevel
		}
		payload := queue.OrchestrationJobPayload{
			AccountID:   acct.ID.String(),
			ScheduledAt: scheduledAt,
			RiskLevel:   level,
		}
		if err := o.dispatcher.DispatchOrchestration(ctx, payload, time.Duration(i)*stagger); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("account %s: %w", acct.ID, err))
			continue
		}
		result.AccountsScheduled++
	}

	o.logger.WithFields(logrus.Fields{
		"accounts": result.AccountsScheduled,
		"errors":   len(result.Errors),
	}).Info("Daily orchestration scheduled")
	return result, nil
}

// ProcessAccount backtests every validated strategy of one account. Each
// strategy is handled independently; an error on one is recorded and the scan
// continues.
func (o *Orchestrator) ProcessAccount(ctx context.Context, accountID uuid.UUID, riskLevel int) (*Result, error) {
	policy, err := config.RiskLevelFor(riskLevel)
	if err != nil {
		return nil, err
	}

	strategies, err := o.strategies.ListValidatedByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list validated strategies: %w", err)
	}

	result := &Result{}
	for _, strat := range strategies {
		skip, err := o.processStrategy(ctx, accountID, strat, policy)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("strategy %s: %w", strat.ID, err))
			continue
		}
		if skip != nil {
			result.Skipped = append(result.Skipped, *skip)
			continue
		}
		result.RunsCreated++
	}

	o.logger.WithFields(logrus.Fields{
		"account_id": accountID,
		"risk_level": riskLevel,
		"created":    result.RunsCreated,
		"skipped":    len(result.Skipped),
		"errors":     len(result.Errors),
	}).Info("Account orchestration finished")
	return result, nil
}

// processStrategy creates one run for the strategy, or reports why it was
// skipped. A nil skip with a nil error means a run was created.
func (o *Orchestrator) processStrategy(ctx context.Context, accountID uuid.UUID, strat *models.StrategyConfig, policy config.RiskLevelPolicy) (*SkippedStrategy, error) {
	now := o.now().UTC()

	since := now.Add(-time.Duration(o.cfg.DedupWindowHours) * time.Hour)
	recent, err := o.runs.HasRecentRun(ctx, accountID, strat.AlgorithmID, since)
	if err != nil {
		return nil, fmt.Errorf("dedup probe failed: %w", err)
	}
	if recent {
		o.logger.WithFields(logrus.Fields{
			"strategy_id":  strat.ID,
			"algorithm_id": strat.AlgorithmID,
		}).Debug("Recent run exists, skipping")
		return &SkippedStrategy{StrategyID: strat.ID, Reason: SkipReasonDuplicate}, nil
	}

	windowStart := now.AddDate(0, 0, -policy.LookbackDays)
	dataset, err := o.findDataset(ctx, windowStart, policy)
	if err != nil {
		if err == models.ErrNotFound {
			o.logger.WithFields(logrus.Fields{
				"strategy_id": strat.ID,
				"risk_level":  policy.Level,
			}).Warn("No qualifying dataset, skipping")
			return &SkippedStrategy{StrategyID: strat.ID, Reason: SkipReasonNoDataset}, nil
		}
		return nil, err
	}

	_, err = o.creator.Create(ctx, backtest.CreateRunRequest{
		AccountID:      accountID,
		Type:           models.RunTypeHistorical,
		AlgorithmID:    strat.AlgorithmID,
		DatasetID:      dataset.ID,
		WindowStart:    windowStart,
		WindowEnd:      now,
		InitialCapital: o.cfg.StandardCapital,
		TradingFee:     policy.TradingFee,
		Slippage: &models.SlippageConfig{
			Model: policy.SlippageModel,
			Bps:   policy.SlippageBps,
		},
		Orchestrated: true,
		RiskLevel:    policy.Level,
	})
	if err != nil {
		return nil, err
	}
	return nil, nil
}

// findDataset prefers the policy's timeframes and falls back to any
// timeframe before giving up.
func (o *Orchestrator) findDataset(ctx context.Context, windowStart time.Time, policy config.RiskLevelPolicy) (*models.MarketDataSet, error) {
	ds, err := o.datasets.FindBest(ctx, repository.DatasetQuery{
		MinIntegrity: o.cfg.MinDatasetIntegrity,
		EndAfter:     windowStart,
		Timeframes:   policy.PreferredTimeframes,
	})
	if err == nil {
		return ds, nil
	}
	if err != models.ErrNotFound {
		return nil, fmt.Errorf("dataset lookup failed: %w", err)
	}

	ds, err = o.datasets.FindBest(ctx, repository.DatasetQuery{
		MinIntegrity: o.cfg.MinDatasetIntegrity,
		EndAfter:     windowStart,
	})
	if err != nil && err != models.ErrNotFound {
		return nil, fmt.Errorf("dataset lookup failed: %w", err)
	}
	return ds, err
}
