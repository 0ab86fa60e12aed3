package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Timeframe is a candle interval label
type Timeframe string

const (
	TimeframeOneMin     Timeframe = "ONE_MIN"
	TimeframeFiveMin    Timeframe = "FIVE_MIN"
	TimeframeFifteenMin Timeframe = "FIFTEEN_MIN"
	TimeframeHour       Timeframe = "HOUR"
	TimeframeFourHour   Timeframe = "FOUR_HOUR"
	TimeframeDay        Timeframe = "DAY"
)

// MarketDataSet describes a window of candle data a run executes against.
// Once a run snapshots a dataset it is immutable from that run's point of
// view; edits only affect future runs.
type MarketDataSet struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	Label          string          `db:"label" json:"label"`
	Source         string          `db:"source" json:"source"`
	Instruments    []string        `db:"instruments" json:"instruments"`
	Timeframe      Timeframe       `db:"timeframe" json:"timeframe"`
	WindowStart    time.Time       `db:"window_start" json:"window_start"`
	WindowEnd      time.Time       `db:"window_end" json:"window_end"`
	IntegrityScore float64         `db:"integrity_score" json:"integrity_score"`
	Checksum       string          `db:"checksum" json:"checksum"`
	ReplayCapable  bool            `db:"replay_capable" json:"replay_capable"`
	Metadata       json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Covers reports whether the dataset window fully contains [start, end]
func (d *MarketDataSet) Covers(start, end time.Time) bool {
	return !d.WindowStart.After(start) && !d.WindowEnd.Before(end)
}
