package cursor

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	original := Cursor{
		ID:        uuid.New(),
		SortValue: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}

	token := Encode(original)
	require.NotEmpty(t, token)

	decoded := Decode(token)
	require.NotNil(t, decoded)
	assert.Equal(t, original.ID, decoded.ID)
	assert.True(t, original.SortValue.Equal(decoded.SortValue))
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"base64 but not json", "aGVsbG8gd29ybGQ="},
		{"json but wrong shape", "eyJmb28iOiJiYXIifQ=="},
		{"truncated", Encode(Cursor{ID: uuid.New(), SortValue: time.Now()})[:10]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, Decode(tt.token))
		})
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	cp := Checkpoint{
		LastProcessedIndex:     4821,
		LastProcessedTimestamp: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
		PersistedCounts:        map[string]int64{"signals": 120, "fills": 87},
	}

	data, err := EncodeCheckpoint(cp)
	require.NoError(t, err)

	decoded, err := DecodeCheckpoint(data)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.Equal(t, cp.LastProcessedIndex, decoded.LastProcessedIndex)
	assert.Equal(t, cp.PersistedCounts, decoded.PersistedCounts)
}

func TestDecodeCheckpointEmpty(t *testing.T) {
	decoded, err := DecodeCheckpoint(nil)
	assert.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestAge(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 90*time.Minute, Age(now, now.Add(-90*time.Minute)))
}
