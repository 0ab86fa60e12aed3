package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/backtest-pilot/internal/database"
	"github.com/yourusername/backtest-pilot/internal/models"
)

// PostgresSignalRepository implements SignalRepository for PostgreSQL
type PostgresSignalRepository struct {
	db *database.DB
}

// NewPostgresSignalRepository creates a new signal repository
func NewPostgresSignalRepository(db *database.DB) SignalRepository {
	return &PostgresSignalRepository{db: db}
}

// ListByRun retrieves a run's signals with keyset pagination
func (r *PostgresSignalRepository) ListByRun(ctx context.Context, runID uuid.UUID, filter ArtifactFilter) ([]*models.Signal, error) {
	query := `
		SELECT id, run_id, instrument, signal_type, direction, strength, occurred_at, created_at
		FROM run_signals
		WHERE run_id = $1
	`
	args := []interface{}{runID}

	if filter.Instrument != "" {
		args = append(args, filter.Instrument)
		query += fmt.Sprintf(" AND instrument = $%d", len(args))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += fmt.Sprintf(" AND signal_type = $%d", len(args))
	}
	if filter.Direction != "" {
		args = append(args, filter.Direction)
		query += fmt.Sprintf(" AND direction = $%d", len(args))
	}
	if filter.Cursor != nil {
		args = append(args, filter.Cursor.SortValue, filter.Cursor.ID)
		query += fmt.Sprintf(" AND (occurred_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.db.GetPool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	var signals []*models.Signal
	for rows.Next() {
		s := &models.Signal{}
		if err := rows.Scan(&s.ID, &s.RunID, &s.Instrument, &s.SignalType,
			&s.Direction, &s.Strength, &s.OccurredAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, s)
	}

	return signals, rows.Err()
}

// PostgresFillRepository implements FillRepository for PostgreSQL
type PostgresFillRepository struct {
	db *database.DB
}

// NewPostgresFillRepository creates a new fill repository
func NewPostgresFillRepository(db *database.DB) FillRepository {
	return &PostgresFillRepository{db: db}
}

// ListByRun retrieves a run's trade fills with keyset pagination
func (r *PostgresFillRepository) ListByRun(ctx context.Context, runID uuid.UUID, filter ArtifactFilter) ([]*models.TradeFill, error) {
	query := `
		SELECT id, run_id, instrument, order_type, status, side, quantity, price,
		       adjusted_price, slippage_bps, fee, executed_at, created_at
		FROM trade_fills
		WHERE run_id = $1
	`
	args := []interface{}{runID}

	if filter.Instrument != "" {
		args = append(args, filter.Instrument)
		query += fmt.Sprintf(" AND instrument = $%d", len(args))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += fmt.Sprintf(" AND order_type = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Cursor != nil {
		args = append(args, filter.Cursor.SortValue, filter.Cursor.ID)
		query += fmt.Sprintf(" AND (executed_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY executed_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.db.GetPool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fills: %w", err)
	}
	defer rows.Close()

	var fills []*models.TradeFill
	for rows.Next() {
		f := &models.TradeFill{}
		if err := rows.Scan(&f.ID, &f.RunID, &f.Instrument, &f.OrderType, &f.Status,
			&f.Side, &f.Quantity, &f.Price, &f.AdjustedPrice, &f.SlippageBps,
			&f.Fee, &f.ExecutedAt, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		fills = append(fills, f)
	}

	return fills, rows.Err()
}

// PostgresPerformanceRepository implements PerformanceRepository for PostgreSQL
type PostgresPerformanceRepository struct {
	db *database.DB
}

// NewPostgresPerformanceRepository creates a new performance repository
func NewPostgresPerformanceRepository(db *database.DB) PerformanceRepository {
	return &PostgresPerformanceRepository{db: db}
}

// GetByRun retrieves the performance summary for a completed run
func (r *PostgresPerformanceRepository) GetByRun(ctx context.Context, runID uuid.UUID) (*models.RunPerformance, error) {
	query := `
		SELECT run_id, final_capital, total_return, sharpe_ratio, max_drawdown,
		       total_trades, win_rate, profit_factor, total_fees, total_slippage,
		       annualized_return, created_at
		FROM run_performance
		WHERE run_id = $1
	`

	perf := &models.RunPerformance{}
	err := r.db.GetPool().QueryRow(ctx, query, runID).Scan(
		&perf.RunID, &perf.FinalCapital, &perf.TotalReturn, &perf.SharpeRatio,
		&perf.MaxDrawdown, &perf.TotalTrades, &perf.WinRate, &perf.ProfitFactor,
		&perf.TotalFees, &perf.TotalSlippage, &perf.AnnualizedReturn, &perf.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run performance: %w", err)
	}

	return perf, nil
}

// Save upserts a run's performance summary
func (r *PostgresPerformanceRepository) Save(ctx context.Context, perf *models.RunPerformance) error {
	query := `
		INSERT INTO run_performance (
			run_id, final_capital, total_return, sharpe_ratio, max_drawdown,
			total_trades, win_rate, profit_factor, total_fees, total_slippage,
			annualized_return
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO UPDATE SET
			final_capital = EXCLUDED.final_capital,
			total_return = EXCLUDED.total_return,
			sharpe_ratio = EXCLUDED.sharpe_ratio,
			max_drawdown = EXCLUDED.max_drawdown,
			total_trades = EXCLUDED.total_trades,
			win_rate = EXCLUDED.win_rate,
			profit_factor = EXCLUDED.profit_factor,
			total_fees = EXCLUDED.total_fees,
			total_slippage = EXCLUDED.total_slippage,
			annualized_return = EXCLUDED.annualized_return
	`

	_, err := r.db.GetPool().Exec(ctx, query,
		perf.RunID, perf.FinalCapital, perf.TotalReturn, perf.SharpeRatio,
		perf.MaxDrawdown, perf.TotalTrades, perf.WinRate, perf.ProfitFactor,
		perf.TotalFees, perf.TotalSlippage, perf.AnnualizedReturn,
	)
	if err != nil {
		return fmt.Errorf("failed to save run performance: %w", err)
	}

	return nil
}
