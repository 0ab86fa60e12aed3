package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/backtest-pilot/internal/database"
	"github.com/yourusername/backtest-pilot/internal/models"
)

// CandleSummary aggregates what candle data is available for building the
// default dataset.
type CandleSummary struct {
	Instruments []string
	Timeframe   models.Timeframe
	WindowStart time.Time
	WindowEnd   time.Time
	RowCount    int64
}

// CandleStatsRepository summarizes the candle store
type CandleStatsRepository interface {
	Summary(ctx context.Context) (*CandleSummary, error)
}

// PostgresCandleStatsRepository implements CandleStatsRepository for PostgreSQL
type PostgresCandleStatsRepository struct {
	db *database.DB
}

// NewPostgresCandleStatsRepository creates a new candle stats repository
func NewPostgresCandleStatsRepository(db *database.DB) CandleStatsRepository {
	return &PostgresCandleStatsRepository{db: db}
}

// Summary aggregates the candle table's coverage
func (r *PostgresCandleStatsRepository) Summary(ctx context.Context) (*CandleSummary, error) {
	summary := &CandleSummary{Timeframe: models.TimeframeHour}

	err := r.db.GetPool().QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(MIN(open_time), NOW()), COALESCE(MAX(open_time), NOW()) FROM candles`,
	).Scan(&summary.RowCount, &summary.WindowStart, &summary.WindowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize candles: %w", err)
	}

	rows, err := r.db.GetPool().Query(ctx, `SELECT DISTINCT instrument FROM candles ORDER BY instrument`)
	if err != nil {
		return nil, fmt.Errorf("failed to query candle instruments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var instrument string
		if err := rows.Scan(&instrument); err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		summary.Instruments = append(summary.Instruments, instrument)
	}

	return summary, rows.Err()
}
