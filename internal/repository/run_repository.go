package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yourusername/backtest-pilot/internal/database"
	"github.com/yourusername/backtest-pilot/internal/models"
)

// Postgres unique_violation
const uniqueViolationCode = "23505"

// PostgresRunRepository implements RunRepository for PostgreSQL
type PostgresRunRepository struct {
	db *database.DB
}

// NewPostgresRunRepository creates a new run repository
func NewPostgresRunRepository(db *database.DB) RunRepository {
	return &PostgresRunRepository{db: db}
}

const runColumns = `
	id, account_id, type, status, config, deterministic_seed, checkpoint,
	processed_timestamp_count, total_timestamp_count, warning_flags,
	pause_requested, error_message, last_checkpoint_at, created_at, updated_at
`

// Create inserts a new run
func (r *PostgresRunRepository) Create(ctx context.Context, run *models.BacktestRun) error {
	query := `
		INSERT INTO backtest_runs (
			id, account_id, type, status, config, deterministic_seed, checkpoint,
			processed_timestamp_count, total_timestamp_count, warning_flags,
			pause_requested, error_message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal run config: %w", err)
	}

	checkpointJSON, err := marshalCheckpoint(run.Checkpoint)
	if err != nil {
		return err
	}

	_, err = r.db.GetPool().Exec(ctx, query,
		run.ID, run.AccountID, run.Type, run.Status, configJSON, run.DeterministicSeed,
		checkpointJSON, run.ProcessedTimestampCount, run.TotalTimestampCount,
		run.WarningFlags, run.PauseRequested, run.ErrorMessage,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return models.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetByID retrieves a run by ID
func (r *PostgresRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestRun, error) {
	query := `SELECT ` + runColumns + ` FROM backtest_runs WHERE id = $1`
	return r.scanRun(r.db.GetPool().QueryRow(ctx, query, id))
}

// GetForAccount retrieves a run by ID scoped to its owning account
func (r *PostgresRunRepository) GetForAccount(ctx context.Context, id, accountID uuid.UUID) (*models.BacktestRun, error) {
	query := `SELECT ` + runColumns + ` FROM backtest_runs WHERE id = $1 AND account_id = $2`
	return r.scanRun(r.db.GetPool().QueryRow(ctx, query, id, accountID))
}

// List retrieves runs matching the filter with keyset pagination ordered by
// (created_at DESC, id DESC).
func (r *PostgresRunRepository) List(ctx context.Context, filter RunListFilter) ([]*models.BacktestRun, error) {
	query := `SELECT ` + runColumns + ` FROM backtest_runs WHERE account_id = $1`
	args := []interface{}{filter.AccountID}

	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.AlgorithmID != uuid.Nil {
		args = append(args, filter.AlgorithmID)
		query += fmt.Sprintf(" AND (config->>'algorithm_id')::uuid = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.CreatedAfter != nil {
		args = append(args, *filter.CreatedAfter)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.CreatedBefore != nil {
		args = append(args, *filter.CreatedBefore)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	if filter.Cursor != nil {
		args = append(args, filter.Cursor.SortValue, filter.Cursor.ID)
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.db.GetPool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.BacktestRun
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// UpdateStatus transitions a run conditionally on its current status
func (r *PostgresRunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RunStatus, errorMessage string) error {
	query := `
		UPDATE backtest_runs
		SET status = $3, error_message = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	tag, err := r.db.GetPool().Exec(ctx, query, id, from, to, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// SetPauseRequested flips the out-of-band pause flag the worker consults at
// its next checkpoint boundary.
func (r *PostgresRunRepository) SetPauseRequested(ctx context.Context, id uuid.UUID, requested bool) error {
	query := `UPDATE backtest_runs SET pause_requested = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.GetPool().Exec(ctx, query, id, requested)
	if err != nil {
		return fmt.Errorf("failed to set pause flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ResetCheckpoint clears checkpoint state and processed counters so a resume
// restarts from scratch.
func (r *PostgresRunRepository) ResetCheckpoint(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE backtest_runs
		SET checkpoint = NULL, processed_timestamp_count = 0,
		    last_checkpoint_at = NULL, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.GetPool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// RecordCheckpoint persists a worker-reported progress snapshot
func (r *PostgresRunRepository) RecordCheckpoint(ctx context.Context, id uuid.UUID, cp *models.CheckpointState, processed, total int64) error {
	query := `
		UPDATE backtest_runs
		SET checkpoint = $2, processed_timestamp_count = $3,
		    total_timestamp_count = $4, last_checkpoint_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`

	checkpointJSON, err := marshalCheckpoint(cp)
	if err != nil {
		return err
	}

	tag, err := r.db.GetPool().Exec(ctx, query, id, checkpointJSON, processed, total)
	if err != nil {
		return fmt.Errorf("failed to record checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// FindStale returns RUNNING runs of a type whose last checkpoint (or last
// update when never checkpointed) is older than the cutoff.
func (r *PostgresRunRepository) FindStale(ctx context.Context, runType models.RunType, olderThan time.Time) ([]*models.BacktestRun, error) {
	query := `SELECT ` + runColumns + `
		FROM backtest_runs
		WHERE status = $1 AND type = $2
		  AND COALESCE(last_checkpoint_at, updated_at) < $3
		ORDER BY created_at ASC
	`

	rows, err := r.db.GetPool().Query(ctx, query, models.RunStatusRunning, runType, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.BacktestRun
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// HasRecentRun probes the dedup window for a non-failed, non-cancelled run
func (r *PostgresRunRepository) HasRecentRun(ctx context.Context, accountID, algorithmID uuid.UUID, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM backtest_runs
			WHERE account_id = $1
			  AND (config->>'algorithm_id')::uuid = $2
			  AND created_at >= $3
			  AND status NOT IN ($4, $5)
		)
	`

	var exists bool
	err := r.db.GetPool().QueryRow(ctx, query,
		accountID, algorithmID, since, models.RunStatusFailed, models.RunStatusCancelled,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to probe recent runs: %w", err)
	}

	return exists, nil
}

// Delete removes a run. Callers must ensure the run is not RUNNING.
func (r *PostgresRunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.GetPool().Exec(ctx, `DELETE FROM backtest_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// scanRun maps one row into a BacktestRun
func (r *PostgresRunRepository) scanRun(row pgx.Row) (*models.BacktestRun, error) {
	run := &models.BacktestRun{}
	var configJSON, checkpointJSON []byte

	err := row.Scan(
		&run.ID, &run.AccountID, &run.Type, &run.Status, &configJSON,
		&run.DeterministicSeed, &checkpointJSON, &run.ProcessedTimestampCount,
		&run.TotalTimestampCount, &run.WarningFlags, &run.PauseRequested,
		&run.ErrorMessage, &run.LastCheckpointAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if err := json.Unmarshal(configJSON, &run.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run config: %w", err)
	}
	if len(checkpointJSON) > 0 {
		cp := &models.CheckpointState{}
		if err := json.Unmarshal(checkpointJSON, cp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
		}
		run.Checkpoint = cp
	}

	return run, nil
}

func marshalCheckpoint(cp *models.CheckpointState) ([]byte, error) {
	if cp == nil {
		return nil, nil
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return data, nil
}
