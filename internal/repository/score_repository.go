package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/backtest-pilot/internal/database"
	"github.com/yourusername/backtest-pilot/internal/models"
)

// PostgresScoreRepository implements ScoreRepository for PostgreSQL
type PostgresScoreRepository struct {
	db *database.DB
}

// NewPostgresScoreRepository creates a new score repository
func NewPostgresScoreRepository(db *database.DB) ScoreRepository {
	return &PostgresScoreRepository{db: db}
}

const latestScoreQuery = `
	SELECT id, strategy_id, run_id, score, scored_at
	FROM strategy_scores
	WHERE strategy_id = $1
	ORDER BY scored_at DESC, id DESC
	LIMIT 1
`

// Insert stores a new score
func (r *PostgresScoreRepository) Insert(ctx context.Context, score *models.StrategyScore) error {
	query := `
		INSERT INTO strategy_scores (id, strategy_id, run_id, score, scored_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.GetPool().Exec(ctx, query,
		score.ID, score.StrategyID, score.RunID, score.Score, score.ScoredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert score: %w", err)
	}

	return nil
}

// GetLatest retrieves a strategy's most recent score
func (r *PostgresScoreRepository) GetLatest(ctx context.Context, strategyID uuid.UUID) (*models.StrategyScore, error) {
	return scanScore(r.db.GetPool().QueryRow(ctx, latestScoreQuery, strategyID))
}

// GetLatestInTx retrieves a strategy's most recent score inside an open transaction
func (r *PostgresScoreRepository) GetLatestInTx(ctx context.Context, tx pgx.Tx, strategyID uuid.UUID) (*models.StrategyScore, error) {
	return scanScore(tx.QueryRow(ctx, latestScoreQuery, strategyID))
}

func scanScore(row pgx.Row) (*models.StrategyScore, error) {
	score := &models.StrategyScore{}
	err := row.Scan(&score.ID, &score.StrategyID, &score.RunID, &score.Score, &score.ScoredAt)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan score: %w", err)
	}
	return score, nil
}
