package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/backtest-pilot/internal/database"
	"github.com/yourusername/backtest-pilot/internal/models"
)

// PostgresReportRepository implements ReportRepository for PostgreSQL
type PostgresReportRepository struct {
	db *database.DB
}

// NewPostgresReportRepository creates a new comparison report repository
func NewPostgresReportRepository(db *database.DB) ReportRepository {
	return &PostgresReportRepository{db: db}
}

// Create persists a report and its run references in one transaction
func (r *PostgresReportRepository) Create(ctx context.Context, report *models.ComparisonReport) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		query := `
			INSERT INTO comparison_reports (id, name, account_id, filters)
			VALUES ($1, $2, $3, $4)
		`
		if _, err := tx.Exec(ctx, query, report.ID, report.Name, report.AccountID, report.Filters); err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}

		junction := `
			INSERT INTO comparison_report_runs (report_id, run_id, position)
			VALUES ($1, $2, $3)
		`
		for i, runID := range report.RunIDs {
			if _, err := tx.Exec(ctx, junction, report.ID, runID, i); err != nil {
				return fmt.Errorf("failed to link report run: %w", err)
			}
		}

		return nil
	})
}

// GetForAccount retrieves a report by ID scoped to its owning account
func (r *PostgresReportRepository) GetForAccount(ctx context.Context, id, accountID uuid.UUID) (*models.ComparisonReport, error) {
	query := `
		SELECT id, name, account_id, filters, created_at
		FROM comparison_reports
		WHERE id = $1 AND account_id = $2
	`

	report := &models.ComparisonReport{}
	err := r.db.GetPool().QueryRow(ctx, query, id, accountID).Scan(
		&report.ID, &report.Name, &report.AccountID, &report.Filters, &report.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	rows, err := r.db.GetPool().Query(ctx,
		`SELECT run_id FROM comparison_report_runs WHERE report_id = $1 ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query report runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var runID uuid.UUID
		if err := rows.Scan(&runID); err != nil {
			return nil, fmt.Errorf("failed to scan report run: %w", err)
		}
		report.RunIDs = append(report.RunIDs, runID)
	}

	return report, rows.Err()
}
