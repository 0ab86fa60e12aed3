package models

import (
	"time"

	"github.com/google/uuid"
)

// LifecycleStatus tracks a strategy through its evaluation pipeline
type LifecycleStatus string

const (
	LifecycleTesting   LifecycleStatus = "testing"
	LifecycleValidated LifecycleStatus = "validated"
	LifecycleFailed    LifecycleStatus = "failed"
)

// ShadowStatus tracks where a strategy sits relative to live capital
type ShadowStatus string

const (
	ShadowTesting ShadowStatus = "testing"
	ShadowLive    ShadowStatus = "live"
	ShadowRetired ShadowStatus = "retired"
)

// StrategyConfig represents a trading strategy configuration. The promotion
// engine owns ShadowStatus and RiskPoolID; the evaluation pipeline owns
// LifecycleStatus.
type StrategyConfig struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	AccountID       uuid.UUID       `db:"account_id" json:"account_id"`
	AlgorithmID     uuid.UUID       `db:"algorithm_id" json:"algorithm_id"`
	LifecycleStatus LifecycleStatus `db:"lifecycle_status" json:"lifecycle_status"`
	ShadowStatus    ShadowStatus    `db:"shadow_status" json:"shadow_status"`
	RiskPoolID      *uuid.UUID      `db:"risk_pool_id" json:"risk_pool_id,omitempty"`
	LatestScoreID   *uuid.UUID      `db:"latest_score_id" json:"latest_score_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// StrategyScore is one scored evaluation of a strategy, 0-100
type StrategyScore struct {
	ID         uuid.UUID `db:"id" json:"id"`
	StrategyID uuid.UUID `db:"strategy_id" json:"strategy_id"`
	RunID      uuid.UUID `db:"run_id" json:"run_id"`
	Score      float64   `db:"score" json:"score"`
	ScoredAt   time.Time `db:"scored_at" json:"scored_at"`
}
