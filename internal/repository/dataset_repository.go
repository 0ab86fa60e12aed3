package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/backtest-pilot/internal/database"
	"github.com/yourusername/backtest-pilot/internal/models"
)

// PostgresDatasetRepository implements DatasetRepository for PostgreSQL
type PostgresDatasetRepository struct {
	db *database.DB
}

// NewPostgresDatasetRepository creates a new dataset repository
func NewPostgresDatasetRepository(db *database.DB) DatasetRepository {
	return &PostgresDatasetRepository{db: db}
}

const datasetColumns = `
	id, label, source, instruments, timeframe, window_start, window_end,
	integrity_score, checksum, replay_capable, metadata, created_at, updated_at
`

// Create inserts a new dataset
func (r *PostgresDatasetRepository) Create(ctx context.Context, ds *models.MarketDataSet) error {
	query := `
		INSERT INTO market_datasets (
			id, label, source, instruments, timeframe, window_start, window_end,
			integrity_score, checksum, replay_capable, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.GetPool().Exec(ctx, query,
		ds.ID, ds.Label, ds.Source, ds.Instruments, ds.Timeframe,
		ds.WindowStart, ds.WindowEnd, ds.IntegrityScore, ds.Checksum,
		ds.ReplayCapable, ds.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}

	return nil
}

// GetByID retrieves a dataset by ID
func (r *PostgresDatasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MarketDataSet, error) {
	query := `SELECT ` + datasetColumns + ` FROM market_datasets WHERE id = $1`
	return r.scanDataset(r.db.GetPool().QueryRow(ctx, query, id))
}

// GetByLabel retrieves a dataset by its unique label
func (r *PostgresDatasetRepository) GetByLabel(ctx context.Context, label string) (*models.MarketDataSet, error) {
	query := `SELECT ` + datasetColumns + ` FROM market_datasets WHERE label = $1 LIMIT 1`
	return r.scanDataset(r.db.GetPool().QueryRow(ctx, query, label))
}

// FindBest returns the most recent, highest-integrity dataset matching q
func (r *PostgresDatasetRepository) FindBest(ctx context.Context, q DatasetQuery) (*models.MarketDataSet, error) {
	query := `SELECT ` + datasetColumns + `
		FROM market_datasets
		WHERE integrity_score >= $1 AND window_end >= $2
	`
	args := []interface{}{q.MinIntegrity, q.EndAfter}

	if len(q.Timeframes) > 0 {
		args = append(args, q.Timeframes)
		query += fmt.Sprintf(" AND timeframe = ANY($%d)", len(args))
	}
	if q.ReplayCapable != nil {
		args = append(args, *q.ReplayCapable)
		query += fmt.Sprintf(" AND replay_capable = $%d", len(args))
	}

	query += " ORDER BY window_end DESC, integrity_score DESC LIMIT 1"

	return r.scanDataset(r.db.GetPool().QueryRow(ctx, query, args...))
}

// Update updates an existing dataset
func (r *PostgresDatasetRepository) Update(ctx context.Context, ds *models.MarketDataSet) error {
	query := `
		UPDATE market_datasets SET
			label = $2, source = $3, instruments = $4, timeframe = $5,
			window_start = $6, window_end = $7, integrity_score = $8,
			checksum = $9, replay_capable = $10, metadata = $11, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.GetPool().Exec(ctx, query,
		ds.ID, ds.Label, ds.Source, ds.Instruments, ds.Timeframe,
		ds.WindowStart, ds.WindowEnd, ds.IntegrityScore, ds.Checksum,
		ds.ReplayCapable, ds.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to update dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *PostgresDatasetRepository) scanDataset(row pgx.Row) (*models.MarketDataSet, error) {
	ds := &models.MarketDataSet{}
	err := row.Scan(
		&ds.ID, &ds.Label, &ds.Source, &ds.Instruments, &ds.Timeframe,
		&ds.WindowStart, &ds.WindowEnd, &ds.IntegrityScore, &ds.Checksum,
		&ds.ReplayCapable, &ds.Metadata, &ds.CreatedAt, &ds.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan dataset: %w", err)
	}
	return ds, nil
}
