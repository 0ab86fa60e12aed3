package repository

import (
	"fmt"

	"github.com/yourusername/backtest-pilot/internal/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	Run         RunRepository
	Dataset     DatasetRepository
	Strategy    StrategyConfigRepository
	Score       ScoreRepository
	RiskPool    RiskPoolRepository
	Account     AccountRepository
	Algorithm   AlgorithmRepository
	Signal      SignalRepository
	Fill        FillRepository
	Performance PerformanceRepository
	Report      ReportRepository
	Candles     CandleStatsRepository
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Run:         NewPostgresRunRepository(db),
		Dataset:     NewPostgresDatasetRepository(db),
		Strategy:    NewPostgresStrategyConfigRepository(db),
		Score:       NewPostgresScoreRepository(db),
		RiskPool:    NewPostgresRiskPoolRepository(db),
		Account:     NewPostgresAccountRepository(db),
		Algorithm:   NewPostgresAlgorithmRepository(db),
		Signal:      NewPostgresSignalRepository(db),
		Fill:        NewPostgresFillRepository(db),
		Performance: NewPostgresPerformanceRepository(db),
		Report:      NewPostgresReportRepository(db),
		Candles:     NewPostgresCandleStatsRepository(db),
	}, nil
}
