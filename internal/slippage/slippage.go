// Package slippage computes execution-cost basis points and slippage-adjusted
// fill prices. Everything here is a pure function of its inputs.
package slippage

import (
	"github.com/shopspring/decimal"
)

// Model identifiers
const (
	ModelFixed       = "FIXED"
	ModelVolumeBased = "VOLUME_BASED"
	ModelHistorical  = "HISTORICAL"
)

const (
	// DefaultFixedBps applies when a FIXED (or unknown) model carries no bps
	DefaultFixedBps = 5.0
	// DefaultHistoricalBps applies when a HISTORICAL model carries no bps
	DefaultHistoricalBps = 10.0
	// DefaultVolumeBaseBps is the floor cost of a VOLUME_BASED fill
	DefaultVolumeBaseBps = 10.0
	// MaxVolumeBps caps market-impact cost regardless of order size
	MaxVolumeBps = 500.0

	// volumeImpactScale converts order-value-to-volume ratio into bps of
	// market impact on top of the base cost
	volumeImpactScale = 100.0
)

// Config selects a model and its parameters
type Config struct {
	Model string  `json:"model"`
	Bps   float64 `json:"bps,omitempty"`
}

// Order carries the fields the models need to price execution cost
type Order struct {
	Value           float64
	ReferenceVolume float64
	IsBuy           bool
}

// Calculate returns the execution-cost bps for an order under cfg.
// Unknown models fall back to the fixed default rather than failing: the
// caller has a fill to price either way.
func Calculate(order Order, cfg Config) float64 {
	switch cfg.Model {
	case ModelFixed:
		if cfg.Bps > 0 {
			return cfg.Bps
		}
		return DefaultFixedBps
	case ModelHistorical:
		if cfg.Bps > 0 {
			return cfg.Bps
		}
		return DefaultHistoricalBps
	case ModelVolumeBased:
		base := cfg.Bps
		if base <= 0 {
			base = DefaultVolumeBaseBps
		}
		if order.ReferenceVolume <= 0 {
			// No liquidity reference: assume worst case
			return MaxVolumeBps
		}
		ratio := order.Value / order.ReferenceVolume
		if ratio < 0 {
			ratio = 0
		}
		bps := base + ratio*volumeImpactScale
		if bps > MaxVolumeBps {
			return MaxVolumeBps
		}
		return bps
	default:
		return DefaultFixedBps
	}
}

// Apply returns the slippage-adjusted fill price. Buys pay above the base
// price, sells receive below it, symmetric about price.
func Apply(price, bps float64, isBuy bool) float64 {
	p := decimal.NewFromFloat(price)
	adj := decimal.NewFromFloat(bps).Div(decimal.NewFromInt(10000))
	if isBuy {
		p = p.Mul(decimal.NewFromInt(1).Add(adj))
	} else {
		p = p.Mul(decimal.NewFromInt(1).Sub(adj))
	}
	f, _ := p.Float64()
	return f
}
