package config

import (
	"fmt"

	"github.com/yourusername/backtest-pilot/internal/models"
)

// RiskLevelPolicy is one row of the fixed five-level risk table. The table is
// compiled in and not mutable at runtime.
type RiskLevelPolicy struct {
	Level               int
	LookbackDays        int
	PreferredTimeframes []models.Timeframe
	SlippageModel       string
	SlippageBps         float64
	TradingFee          float64
}

// riskLevelTable maps risk level (1 = most conservative) to its policy
var riskLevelTable = map[int]RiskLevelPolicy{
	1: {
		Level:               1,
		LookbackDays:        180,
		PreferredTimeframes: []models.Timeframe{models.TimeframeHour, models.TimeframeFourHour, models.TimeframeDay},
		SlippageModel:       "VOLUME_BASED",
		SlippageBps:         10,
		TradingFee:          0.0015,
	},
	2: {
		Level:               2,
		LookbackDays:        150,
		PreferredTimeframes: []models.Timeframe{models.TimeframeHour, models.TimeframeFourHour, models.TimeframeDay},
		SlippageModel:       "VOLUME_BASED",
		SlippageBps:         15,
		TradingFee:          0.0020,
	},
	3: {
		Level:               3,
		LookbackDays:        120,
		PreferredTimeframes: []models.Timeframe{models.TimeframeFifteenMin, models.TimeframeHour, models.TimeframeFourHour},
		SlippageModel:       "FIXED",
		SlippageBps:         20,
		TradingFee:          0.0025,
	},
	4: {
		Level:               4,
		LookbackDays:        90,
		PreferredTimeframes: []models.Timeframe{models.TimeframeFiveMin, models.TimeframeFifteenMin, models.TimeframeHour},
		SlippageModel:       "FIXED",
		SlippageBps:         30,
		TradingFee:          0.0030,
	},
	5: {
		Level:               5,
		LookbackDays:        60,
		PreferredTimeframes: []models.Timeframe{models.TimeframeOneMin, models.TimeframeFiveMin, models.TimeframeFifteenMin},
		SlippageModel:       "FIXED",
		SlippageBps:         50,
		TradingFee:          0.0030,
	},
}

// RiskLevelFor returns the policy row for a level
func RiskLevelFor(level int) (RiskLevelPolicy, error) {
	policy, ok := riskLevelTable[level]
	if !ok {
		return RiskLevelPolicy{}, fmt.Errorf("unknown risk level %d", level)
	}
	return policy, nil
}
