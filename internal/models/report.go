package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ComparisonReport is a named, persisted comparison of two or more runs
type ComparisonReport struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	AccountID uuid.UUID       `db:"account_id" json:"account_id"`
	Filters   json.RawMessage `db:"filters" json:"filters,omitempty"`
	RunIDs    []uuid.UUID     `db:"run_ids" json:"run_ids"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
