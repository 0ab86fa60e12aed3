package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunType identifies what kind of data a backtest run executes against
type RunType string

const (
	RunTypeHistorical           RunType = "HISTORICAL"
	RunTypeLiveReplay           RunType = "LIVE_REPLAY"
	RunTypePaperTrading         RunType = "PAPER_TRADING"
	RunTypeStrategyOptimization RunType = "STRATEGY_OPTIMIZATION"
)

// Valid reports whether t is a known run type
func (t RunType) Valid() bool {
	switch t {
	case RunTypeHistorical, RunTypeLiveReplay, RunTypePaperTrading, RunTypeStrategyOptimization:
		return true
	}
	return false
}

// RunStatus is the lifecycle state of a backtest run
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusPaused    RunStatus = "PAUSED"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether the status permits no further transitions.
// FAILED is deliberately not terminal: the resume path may restart it.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusCancelled
}

// validTransitions maps each status to the set of statuses reachable from it
var validTransitions = map[RunStatus][]RunStatus{
	RunStatusPending:   {RunStatusRunning, RunStatusCancelled},
	RunStatusRunning:   {RunStatusPaused, RunStatusCompleted, RunStatusFailed, RunStatusCancelled},
	RunStatusPaused:    {RunStatusPending},
	RunStatusFailed:    {RunStatusPending},
	RunStatusCancelled: {RunStatusPending},
}

// CanTransition reports whether moving from -> to is a legal state change
func CanTransition(from, to RunStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckpointState is the persisted progress snapshot reported by the
// simulation worker. A run without a checkpoint has a nil state.
type CheckpointState struct {
	LastProcessedIndex     int64            `json:"last_processed_index"`
	LastProcessedTimestamp time.Time        `json:"last_processed_timestamp"`
	PersistedCounts        map[string]int64 `json:"persisted_counts"`
}

// SlippageConfig is captured into the run's config snapshot
type SlippageConfig struct {
	Model string  `json:"model"`
	Bps   float64 `json:"bps,omitempty"`
}

// ConfigSnapshot freezes everything a run needs at creation time. Catalog
// edits after creation never change an existing run.
type ConfigSnapshot struct {
	AlgorithmID        uuid.UUID       `json:"algorithm_id"`
	AlgorithmName      string          `json:"algorithm_name"`
	DatasetID          uuid.UUID       `json:"dataset_id"`
	WindowStart        time.Time       `json:"window_start"`
	WindowEnd          time.Time       `json:"window_end"`
	InitialCapital     float64         `json:"initial_capital"`
	TradingFee         float64         `json:"trading_fee"`
	Slippage           SlippageConfig  `json:"slippage"`
	StrategyParameters json.RawMessage `json:"strategy_parameters,omitempty"`
	Orchestrated       bool            `json:"orchestrated,omitempty"`
	RiskLevel          int             `json:"risk_level,omitempty"`
}

// BacktestRun represents one execution of a strategy backtest
type BacktestRun struct {
	ID                      uuid.UUID        `db:"id" json:"id"`
	AccountID               uuid.UUID        `db:"account_id" json:"account_id"`
	Type                    RunType          `db:"type" json:"type"`
	Status                  RunStatus        `db:"status" json:"status"`
	Config                  ConfigSnapshot   `db:"config" json:"config"`
	DeterministicSeed       string           `db:"deterministic_seed" json:"deterministic_seed"`
	Checkpoint              *CheckpointState `db:"checkpoint" json:"checkpoint,omitempty"`
	ProcessedTimestampCount int64            `db:"processed_timestamp_count" json:"processed_timestamp_count"`
	TotalTimestampCount     int64            `db:"total_timestamp_count" json:"total_timestamp_count"`
	WarningFlags            []string         `db:"warning_flags" json:"warning_flags"`
	PauseRequested          bool             `db:"pause_requested" json:"pause_requested"`
	ErrorMessage            string           `db:"error_message" json:"error_message,omitempty"`
	LastCheckpointAt        *time.Time       `db:"last_checkpoint_at" json:"last_checkpoint_at,omitempty"`
	CreatedAt               time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time        `db:"updated_at" json:"updated_at"`
}

// StaleSince returns the time from which staleness is measured: the last
// checkpoint when one exists, otherwise the last row update.
func (r *BacktestRun) StaleSince() time.Time {
	if r.LastCheckpointAt != nil {
		return *r.LastCheckpointAt
	}
	return r.UpdatedAt
}

// ProgressPercent derives completion from processed/total counters when the
// worker has reported totals, with coarse per-status estimates otherwise.
func (r *BacktestRun) ProgressPercent() float64 {
	if r.TotalTimestampCount > 0 {
		pct := float64(r.ProcessedTimestampCount) / float64(r.TotalTimestampCount) * 100
		if pct > 100 {
			pct = 100
		}
		return pct
	}
	switch r.Status {
	case RunStatusCompleted:
		return 100
	case RunStatusRunning:
		return 50
	default:
		return 0
	}
}
