package model

import (
	"github.com/yanun0323/decimal"

	"renkotrader/internal/model/enum"
)

// SymbolConfig is the per-instrument trading setup.
type SymbolConfig struct {
	Symbol            string
	Venue             enum.Venue
	BrickSize         decimal.Decimal
	TickValue         decimal.Decimal
	MinLotSize        decimal.Decimal
	CapitalAllocation float64
	MaxBricks         int
	Enabled           bool
}

// TradingStats aggregates closed trades.
type TradingStats struct {
	TotalTrades          int
	WinningTrades        int
	LosingTrades         int
	TotalPnL             float64
	TotalCharges         float64
	GrossProfit          float64
	GrossLoss            float64
	LargestWin           float64
	LargestLoss          float64
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
}

func (s TradingStats) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(s.TotalTrades)
}

// ProfitFactor is gross profit over gross loss; zero without losses.
func (s TradingStats) ProfitFactor() float64 {
	if s.GrossLoss == 0 {
		return 0
	}
	return s.GrossProfit / s.GrossLoss
}

func (s TradingStats) AverageTrade() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return s.TotalPnL / float64(s.TotalTrades)
}

// RiskSnapshot is a read-only view of the risk manager.
type RiskSnapshot struct {
	Status               enum.RiskStatus
	PaperMode            bool
	EmergencyStop        bool
	CurrentDrawdown      float64
	MaxDrawdown          float64
	HighWaterMark        float64
	DailyRiskUsed        float64
	ConsecutiveLosses    int
	ConsecutiveWins      int
	MaxConsecutiveLosses int
	TotalTrades          int
	CounterNumber        int
	CounterOrders        int
}
