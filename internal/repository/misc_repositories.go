package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/backtest-pilot/internal/database"
	"github.com/yourusername/backtest-pilot/internal/models"
)

// PostgresRiskPoolRepository implements RiskPoolRepository for PostgreSQL
type PostgresRiskPoolRepository struct {
	db *database.DB
}

// NewPostgresRiskPoolRepository creates a new risk pool repository
func NewPostgresRiskPoolRepository(db *database.DB) RiskPoolRepository {
	return &PostgresRiskPoolRepository{db: db}
}

// GetByLevel retrieves the pool for a risk level
func (r *PostgresRiskPoolRepository) GetByLevel(ctx context.Context, level int) (*models.RiskPool, error) {
	query := `SELECT id, level, capacity, created_at FROM risk_pools WHERE level = $1`

	pool := &models.RiskPool{}
	err := r.db.GetPool().QueryRow(ctx, query, level).Scan(
		&pool.ID, &pool.Level, &pool.Capacity, &pool.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get risk pool: %w", err)
	}

	return pool, nil
}

// PostgresAccountRepository implements AccountRepository for PostgreSQL
type PostgresAccountRepository struct {
	db *database.DB
}

// NewPostgresAccountRepository creates a new account repository
func NewPostgresAccountRepository(db *database.DB) AccountRepository {
	return &PostgresAccountRepository{db: db}
}

const accountColumns = `id, name, auto_trading_enabled, risk_level, created_at, updated_at`

// GetByID retrieves an account by ID
func (r *PostgresAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.GetPool().QueryRow(ctx, query, id))
}

// ListAutoTrading retrieves accounts with auto-trading enabled
func (r *PostgresAccountRepository) ListAutoTrading(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE auto_trading_enabled = true ORDER BY created_at ASC`

	rows, err := r.db.GetPool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query auto-trading accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(
		&account.ID, &account.Name, &account.AutoTradingEnabled,
		&account.RiskLevel, &account.CreatedAt, &account.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return account, nil
}

// PostgresAlgorithmRepository implements AlgorithmRepository for PostgreSQL
type PostgresAlgorithmRepository struct {
	db *database.DB
}

// NewPostgresAlgorithmRepository creates a new algorithm repository
func NewPostgresAlgorithmRepository(db *database.DB) AlgorithmRepository {
	return &PostgresAlgorithmRepository{db: db}
}

// GetByID retrieves an algorithm by ID
func (r *PostgresAlgorithmRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Algorithm, error) {
	query := `SELECT id, name, active, parameters, created_at, updated_at FROM algorithms WHERE id = $1`

	algo := &models.Algorithm{}
	err := r.db.GetPool().QueryRow(ctx, query, id).Scan(
		&algo.ID, &algo.Name, &algo.Active, &algo.Parameters, &algo.CreatedAt, &algo.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get algorithm: %w", err)
	}

	return algo, nil
}
