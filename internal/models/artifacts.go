package models

import (
	"time"

	"github.com/google/uuid"
)

// Signal is one signal emitted by the simulation worker during a run
type Signal struct {
	ID         uuid.UUID `db:"id" json:"id"`
	RunID      uuid.UUID `db:"run_id" json:"run_id"`
	Instrument string    `db:"instrument" json:"instrument"`
	SignalType string    `db:"signal_type" json:"signal_type"`
	Direction  string    `db:"direction" json:"direction"`
	Strength   float64   `db:"strength" json:"strength"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// TradeFill is one simulated execution persisted by the worker
type TradeFill struct {
	ID            uuid.UUID `db:"id" json:"id"`
	RunID         uuid.UUID `db:"run_id" json:"run_id"`
	Instrument    string    `db:"instrument" json:"instrument"`
	OrderType     string    `db:"order_type" json:"order_type"`
	Status        string    `db:"status" json:"status"`
	Side          string    `db:"side" json:"side"`
	Quantity      float64   `db:"quantity" json:"quantity"`
	Price         float64   `db:"price" json:"price"`
	AdjustedPrice float64   `db:"adjusted_price" json:"adjusted_price"`
	SlippageBps   float64   `db:"slippage_bps" json:"slippage_bps"`
	Fee           float64   `db:"fee" json:"fee"`
	ExecutedAt    time.Time `db:"executed_at" json:"executed_at"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// RunPerformance is the summary the worker persists when a run completes
type RunPerformance struct {
	RunID            uuid.UUID `db:"run_id" json:"run_id"`
	FinalCapital     float64   `db:"final_capital" json:"final_capital"`
	TotalReturn      float64   `db:"total_return" json:"total_return"`
	SharpeRatio      float64   `db:"sharpe_ratio" json:"sharpe_ratio"`
	MaxDrawdown      float64   `db:"max_drawdown" json:"max_drawdown"`
	TotalTrades      int       `db:"total_trades" json:"total_trades"`
	WinRate          float64   `db:"win_rate" json:"win_rate"`
	ProfitFactor     float64   `db:"profit_factor" json:"profit_factor"`
	TotalFees        float64   `db:"total_fees" json:"total_fees"`
	TotalSlippage    float64   `db:"total_slippage" json:"total_slippage"`
	AnnualizedReturn float64   `db:"annualized_return" json:"annualized_return"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
