// Package cursor encodes opaque keyset-pagination cursors and checkpoint
// snapshots. Both codecs are stateless.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Cursor is the decoded sort key of the last row a page returned. Listing
// orders by (createdAt DESC, id DESC), so the next page resumes strictly
// after this key.
type Cursor struct {
	ID        uuid.UUID `json:"id"`
	SortValue time.Time `json:"sort_value"`
}

// Encode serializes a cursor into an opaque URL-safe token
func Encode(c Cursor) string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// Decode parses a cursor token. Any malformed input returns nil, which
// callers treat as "start from the beginning"; decoding never fails loudly.
func Decode(token string) *Cursor {
	if token == "" {
		return nil
	}
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil
	}
	if c.ID == uuid.Nil {
		return nil
	}
	return &c
}

// Checkpoint mirrors the worker-reported progress snapshot as it travels
// through job payloads and the API.
type Checkpoint struct {
	LastProcessedIndex     int64            `json:"last_processed_index"`
	LastProcessedTimestamp time.Time        `json:"last_processed_timestamp"`
	PersistedCounts        map[string]int64 `json:"persisted_counts"`
}

// EncodeCheckpoint serializes a checkpoint for storage
func EncodeCheckpoint(cp Checkpoint) ([]byte, error) {
	return json.Marshal(cp)
}

// DecodeCheckpoint parses a stored checkpoint
func DecodeCheckpoint(data []byte) (*Checkpoint, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Age returns how stale a checkpoint is relative to now. Callers compare it
// against the configured maximum age to decide whether a resume may trust it.
func Age(now, lastCheckpointAt time.Time) time.Duration {
	return now.Sub(lastCheckpointAt)
}
