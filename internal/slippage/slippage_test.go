package slippage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateFixedModel(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected float64
	}{
		{
			name:     "fixed with explicit bps",
			cfg:      Config{Model: ModelFixed, Bps: 25},
			expected: 25,
		},
		{
			name:     "fixed without bps uses default",
			cfg:      Config{Model: ModelFixed},
			expected: 5,
		},
		{
			name:     "historical without bps uses default",
			cfg:      Config{Model: ModelHistorical},
			expected: 10,
		},
		{
			name:     "historical with explicit bps",
			cfg:      Config{Model: ModelHistorical, Bps: 15},
			expected: 15,
		},
		{
			name:     "unknown model falls back to fixed default",
			cfg:      Config{Model: "SOMETHING_ELSE"},
			expected: 5,
		},
		{
			name:     "empty model falls back to fixed default",
			cfg:      Config{},
			expected: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(Order{Value: 1000, ReferenceVolume: 100000}, tt.cfg)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCalculateVolumeBasedMonotonic(t *testing.T) {
	cfg := Config{Model: ModelVolumeBased, Bps: 10}

	prev := 0.0
	for _, value := range []float64{0, 100, 1000, 10000, 100000, 1000000, 10000000} {
		got := Calculate(Order{Value: value, ReferenceVolume: 100000}, cfg)
		assert.GreaterOrEqual(t, got, prev, "bps must not decrease as order value grows (value=%f)", value)
		assert.LessOrEqual(t, got, MaxVolumeBps)
		prev = got
	}
}

func TestCalculateVolumeBasedCap(t *testing.T) {
	cfg := Config{Model: ModelVolumeBased, Bps: 10}

	got := Calculate(Order{Value: 1e12, ReferenceVolume: 1}, cfg)
	assert.Equal(t, MaxVolumeBps, got)

	// Missing liquidity reference is priced as worst case
	got = Calculate(Order{Value: 1000, ReferenceVolume: 0}, cfg)
	assert.Equal(t, MaxVolumeBps, got)
}

func TestApplySymmetry(t *testing.T) {
	buy := Apply(50000, 10, true)
	sell := Apply(50000, 10, false)

	assert.InDelta(t, 50050.0, buy, 1e-9)
	assert.InDelta(t, 49950.0, sell, 1e-9)

	// Symmetric about the base price
	assert.InDelta(t, 50000.0, (buy+sell)/2, 1e-9)
}

func TestApplyZeroBps(t *testing.T) {
	assert.InDelta(t, 50000.0, Apply(50000, 0, true), 1e-9)
	assert.InDelta(t, 50000.0, Apply(50000, 0, false), 1e-9)
}
