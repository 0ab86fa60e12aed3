package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Account is the owner of runs and strategies. RiskLevel 0 means unset; the
// orchestrator substitutes its default.
type Account struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	AutoTradingEnabled bool      `db:"auto_trading_enabled" json:"auto_trading_enabled"`
	RiskLevel          int       `db:"risk_level" json:"risk_level"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Algorithm is a catalog entry runs reference. Its name is copied into the
// run's config snapshot so later renames cannot change history.
type Algorithm struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	Name       string          `db:"name" json:"name"`
	Active     bool            `db:"active" json:"active"`
	Parameters json.RawMessage `db:"parameters" json:"parameters,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}
