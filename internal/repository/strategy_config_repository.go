package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/backtest-pilot/internal/database"
	"github.com/yourusername/backtest-pilot/internal/models"
)

// PostgresStrategyConfigRepository implements StrategyConfigRepository for PostgreSQL
type PostgresStrategyConfigRepository struct {
	db *database.DB
}

// NewPostgresStrategyConfigRepository creates a new strategy config repository
func NewPostgresStrategyConfigRepository(db *database.DB) StrategyConfigRepository {
	return &PostgresStrategyConfigRepository{db: db}
}

const strategyColumns = `
	id, name, account_id, algorithm_id, lifecycle_status, shadow_status,
	risk_pool_id, latest_score_id, created_at, updated_at
`

// GetByID retrieves a strategy config by ID
func (r *PostgresStrategyConfigRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.StrategyConfig, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategy_configs WHERE id = $1`
	return scanStrategy(r.db.GetPool().QueryRow(ctx, query, id))
}

// ListValidatedByAccount retrieves an account's validated strategies
func (r *PostgresStrategyConfigRepository) ListValidatedByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.StrategyConfig, error) {
	query := `SELECT ` + strategyColumns + `
		FROM strategy_configs
		WHERE account_id = $1 AND lifecycle_status = $2
		ORDER BY name ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, accountID, models.LifecycleValidated)
	if err != nil {
		return nil, fmt.Errorf("failed to query validated strategies: %w", err)
	}
	defer rows.Close()

	return collectStrategies(rows)
}

// Update updates an existing strategy config
func (r *PostgresStrategyConfigRepository) Update(ctx context.Context, sc *models.StrategyConfig) error {
	query := `
		UPDATE strategy_configs SET
			name = $2, lifecycle_status = $3, shadow_status = $4,
			risk_pool_id = $5, latest_score_id = $6, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.GetPool().Exec(ctx, query,
		sc.ID, sc.Name, sc.LifecycleStatus, sc.ShadowStatus, sc.RiskPoolID, sc.LatestScoreID,
	)
	if err != nil {
		return fmt.Errorf("failed to update strategy config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// LockLiveMembers selects a pool's live members FOR UPDATE, giving the caller
// exclusive rows until its transaction finishes.
func (r *PostgresStrategyConfigRepository) LockLiveMembers(ctx context.Context, tx pgx.Tx, poolID uuid.UUID) ([]*models.StrategyConfig, error) {
	query := `SELECT ` + strategyColumns + `
		FROM strategy_configs
		WHERE risk_pool_id = $1 AND shadow_status = $2
		ORDER BY id
		FOR UPDATE
	`

	rows, err := tx.Query(ctx, query, poolID, models.ShadowLive)
	if err != nil {
		return nil, fmt.Errorf("failed to lock pool members: %w", err)
	}
	defer rows.Close()

	return collectStrategies(rows)
}

// AssignPool promotes a strategy into a pool inside an open transaction
func (r *PostgresStrategyConfigRepository) AssignPool(ctx context.Context, tx pgx.Tx, strategyID, poolID, scoreID uuid.UUID) error {
	query := `
		UPDATE strategy_configs SET
			shadow_status = $2, risk_pool_id = $3, latest_score_id = $4, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, strategyID, models.ShadowLive, poolID, scoreID)
	if err != nil {
		return fmt.Errorf("failed to assign pool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// RetireFromPool demotes a strategy out of its pool inside an open transaction
func (r *PostgresStrategyConfigRepository) RetireFromPool(ctx context.Context, tx pgx.Tx, strategyID uuid.UUID) error {
	query := `
		UPDATE strategy_configs SET
			shadow_status = $2, risk_pool_id = NULL, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, strategyID, models.ShadowRetired)
	if err != nil {
		return fmt.Errorf("failed to retire strategy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func scanStrategy(row pgx.Row) (*models.StrategyConfig, error) {
	sc := &models.StrategyConfig{}
	err := row.Scan(
		&sc.ID, &sc.Name, &sc.AccountID, &sc.AlgorithmID, &sc.LifecycleStatus,
		&sc.ShadowStatus, &sc.RiskPoolID, &sc.LatestScoreID, &sc.CreatedAt, &sc.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan strategy config: %w", err)
	}
	return sc, nil
}

func collectStrategies(rows pgx.Rows) ([]*models.StrategyConfig, error) {
	var strategies []*models.StrategyConfig
	for rows.Next() {
		sc, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, sc)
	}
	return strategies, rows.Err()
}
