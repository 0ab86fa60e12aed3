package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultPoolCapacity is the fixed number of live strategies a pool holds
const DefaultPoolCapacity = 30

// RiskPool is a capacity-limited bucket of live strategies at one risk level.
// Invariant: the count of strategies with shadow status live and this pool id
// never exceeds Capacity; enforced with an exclusive row lock on the live
// members at assignment time.
type RiskPool struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Level     int       `db:"level" json:"level"`
	Capacity  int       `db:"capacity" json:"capacity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
