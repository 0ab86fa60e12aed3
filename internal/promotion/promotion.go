// Package promotion moves scored strategies into capacity-limited risk
// pools. Pool membership changes run under a serializable transaction with
// the live members row-locked, so two evaluations can never overfill a pool.
package promotion

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	auditlog "github.com/yourusername/backtest-pilot/internal/logger"
	"github.com/yourusername/backtest-pilot/internal/metrics"
	"github.com/yourusername/backtest-pilot/internal/models"
	"github.com/yourusername/backtest-pilot/internal/repository"
)

// Score bands mapping a composite score to a pool level. A score below the
// lowest band qualifies for nothing.
const (
	minScoreLevel1 = 90
	minScoreLevel2 = 80
	minScoreLevel3 = 65
	minScoreLevel4 = 50
	minScoreLevel5 = 40
)

// LevelForScore maps a composite score to a risk pool level. The second
// return is false when the score qualifies for no pool.
func LevelForScore(score float64) (int, bool) {
	switch {
	case score >= minScoreLevel1:
		return 1, true
	case score >= minScoreLevel2:
		return 2, true
	case score >= minScoreLevel3:
		return 3, true
	case score >= minScoreLevel4:
		return 4, true
	case score >= minScoreLevel5:
		return 5, true
	default:
		return 0, false
	}
}

// Action is what an evaluation did to pool membership
type Action string

const (
	ActionPromoted  Action = "promoted"
	ActionRotated   Action = "rotated"
	ActionRetired   Action = "retired"
	ActionUnchanged Action = "unchanged"
	ActionRejected  Action = "rejected"
)

// Outcome describes one evaluation
type Outcome struct {
	Action    Action
	Level     int
	Score     float64
	DemotedID *uuid.UUID
	Reason    string
}

// TxRunner runs a function inside a serializable transaction; satisfied by
// the database wrapper.
type TxRunner interface {
	WithSerializableTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// Engine evaluates strategies against the pool for their score band
type Engine struct {
	db               TxRunner
	strategies       repository.StrategyConfigRepository
	scores           repository.ScoreRepository
	pools            repository.RiskPoolRepository
	fallbackCapacity int
	logger           *logrus.Logger
	audit            *auditlog.RunLogger
}

// NewEngine creates a promotion engine. poolCapacity covers pools whose row
// carries no capacity of its own; zero falls back to models.DefaultPoolCapacity.
func NewEngine(
	db TxRunner,
	strategies repository.StrategyConfigRepository,
	scores repository.ScoreRepository,
	pools repository.RiskPoolRepository,
	poolCapacity int,
	logger *logrus.Logger,
) *Engine {
	if poolCapacity <= 0 {
		poolCapacity = models.DefaultPoolCapacity
	}
	return &Engine{
		db:               db,
		strategies:       strategies,
		scores:           scores,
		pools:            pools,
		fallbackCapacity: poolCapacity,
		logger:           logger,
		audit:            auditlog.NewRunLogger(logger),
	}
}

// capacityFor resolves the effective member limit for a pool
func (e *Engine) capacityFor(pool *models.RiskPool) int {
	if pool.Capacity > 0 {
		return pool.Capacity
	}
	return e.fallbackCapacity
}

// Evaluate places a strategy according to its latest score. Qualifying for a
// pool with free capacity promotes it; a full pool rotates out its weakest
// live member only when the candidate's score is strictly higher. A score
// below every band retires a currently live strategy and rejects the rest.
func (e *Engine) Evaluate(ctx context.Context, strategyID uuid.UUID) (*Outcome, error) {
	strat, err := e.strategies.GetByID(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if strat.LifecycleStatus != models.LifecycleValidated {
		return nil, models.NewValidationError("strategy %s is not validated", strategyID)
	}

	score, err := e.scores.GetLatest(ctx, strategyID)
	if err != nil {
		if err == models.ErrNotFound {
			return nil, models.NewValidationError("strategy %s has never been scored", strategyID)
		}
		return nil, fmt.Errorf("failed to load latest score: %w", err)
	}

	level, ok := LevelForScore(score.Score)
	if !ok {
		return e.demoteUnqualified(ctx, strat, score)
	}

	pool, err := e.pools.GetByLevel(ctx, level)
	if err != nil {
		return nil, fmt.Errorf("failed to load pool for level %d: %w", level, err)
	}

	var outcome *Outcome
	err = e.db.WithSerializableTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		outcome, err = e.placeInPool(ctx, tx, strat, score, pool)
		return err
	})
	if err != nil {
		return nil, err
	}

	if outcome.Action == ActionPromoted || outcome.Action == ActionRotated {
		metrics.RecordPromotion(level)
		e.audit.LogPromotion(strategyID, outcome.Level, score.Score, outcome.Action == ActionRotated, outcome.DemotedID)
	}
	if outcome.Action == ActionRotated {
		metrics.RotationsTotal.Inc()
	}

	e.logger.WithFields(logrus.Fields{
		"strategy_id": strategyID,
		"score":       score.Score,
		"level":       outcome.Level,
		"action":      outcome.Action,
	}).Info("Promotion evaluated")
	return outcome, nil
}

func (e *Engine) demoteUnqualified(ctx context.Context, strat *models.StrategyConfig, score *models.StrategyScore) (*Outcome, error) {
	if strat.ShadowStatus != models.ShadowLive {
		return &Outcome{
			Action: ActionRejected,
			Score:  score.Score,
			Reason: fmt.Sprintf("score %.1f below minimum band %d", score.Score, minScoreLevel5),
		}, nil
	}

	err := e.db.WithSerializableTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return e.strategies.RetireFromPool(ctx, tx, strat.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retire strategy %s: %w", strat.ID, err)
	}
	return &Outcome{
		Action: ActionRetired,
		Score:  score.Score,
		Reason: fmt.Sprintf("live strategy dropped below minimum band %d", minScoreLevel5),
	}, nil
}

func (e *Engine) placeInPool(ctx context.Context, tx pgx.Tx, strat *models.StrategyConfig, score *models.StrategyScore, pool *models.RiskPool) (*Outcome, error) {
	members, err := e.strategies.LockLiveMembers(ctx, tx, pool.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock pool members: %w", err)
	}

	for _, member := range members {
		if member.ID == strat.ID {
			return &Outcome{Action: ActionUnchanged, Level: pool.Level, Score: score.Score, Reason: "already a live member"}, nil
		}
	}

	if len(members) < e.capacityFor(pool) {
		if err := e.strategies.AssignPool(ctx, tx, strat.ID, pool.ID, score.ID); err != nil {
			return nil, fmt.Errorf("failed to assign pool: %w", err)
		}
		metrics.UpdatePoolMembers(pool.Level, len(members)+1)
		return &Outcome{Action: ActionPromoted, Level: pool.Level, Score: score.Score}, nil
	}
	metrics.UpdatePoolMembers(pool.Level, len(members))

	worst, worstScore, err := e.weakestMember(ctx, tx, members)
	if err != nil {
		return nil, err
	}

	// Ties keep the incumbent.
	if score.Score <= worstScore {
		return &Outcome{
			Action: ActionUnchanged,
			Level:  pool.Level,
			Score:  score.Score,
			Reason: fmt.Sprintf("pool full, weakest member scores %.1f", worstScore),
		}, nil
	}

	if err := e.strategies.RetireFromPool(ctx, tx, worst.ID); err != nil {
		return nil, fmt.Errorf("failed to retire weakest member: %w", err)
	}
	if err := e.strategies.AssignPool(ctx, tx, strat.ID, pool.ID, score.ID); err != nil {
		return nil, fmt.Errorf("failed to assign pool: %w", err)
	}
	return &Outcome{Action: ActionRotated, Level: pool.Level, Score: score.Score, DemotedID: &worst.ID}, nil
}

// weakestMember finds the live member with the lowest latest score. A member
// without any score counts as zero so it is first out.
func (e *Engine) weakestMember(ctx context.Context, tx pgx.Tx, members []*models.StrategyConfig) (*models.StrategyConfig, float64, error) {
	var worst *models.StrategyConfig
	var worstScore float64

	for _, member := range members {
		memberScore := 0.0
		latest, err := e.scores.GetLatestInTx(ctx, tx, member.ID)
		if err != nil && err != models.ErrNotFound {
			return nil, 0, fmt.Errorf("failed to score member %s: %w", member.ID, err)
		}
		if latest != nil {
			memberScore = latest.Score
		}
		if worst == nil || memberScore < worstScore {
			worst = member
			worstScore = memberScore
		}
	}
	return worst, worstScore, nil
}
