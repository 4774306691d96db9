package model

import (
	"time"

	"github.com/yanun0323/decimal"

	"renkotrader/internal/model/enum"
)

// RiskParameters is an immutable snapshot of risk limits.
type RiskParameters struct {
	DailyRiskPercent     float64
	MaxDrawdownPercent   float64
	ConsecutiveLossLimit int
	CapitalUtilization   float64
	OrdersPerCounter     int
	MinLotSize           decimal.Decimal
	PaperTradingMode     bool
}

// DefaultRiskParameters returns the stock limits.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		DailyRiskPercent:     0.01,
		MaxDrawdownPercent:   0.05,
		ConsecutiveLossLimit: 2,
		CapitalUtilization:   1.0,
		OrdersPerCounter:     10,
		MinLotSize:           decimal.Require("0.01"),
	}
}

// TradingCounter is a batch of orders sharing one capital allocation window.
type TradingCounter struct {
	Number         int
	Orders         []Order
	InitialCapital float64
	CurrentCapital float64
	TotalPnL       float64
	TotalCharges   float64
	StartTime      time.Time
	EndTime        time.Time
	Complete       bool
}

// NetPnL is P&L after charges.
func (c TradingCounter) NetPnL() float64 {
	return c.TotalPnL - c.TotalCharges
}

// AccountInfo is the venue's view of the trading account.
type AccountInfo struct {
	AccountID   string
	Balance     float64
	Equity      float64
	Margin      float64
	FreeMargin  float64
	MarginLevel float64
	Currency    string
}

// Position is the net exposure in one instrument.
type Position struct {
	Symbol        string
	Side          enum.OrderSide
	Quantity      decimal.Decimal
	AveragePrice  decimal.Decimal
	UnrealizedPnL float64
	OpenedAt      time.Time
}

// RiskEvent is a record of a risk decision or state change.
type RiskEvent struct {
	Kind      enum.RiskEventKind
	Symbol    string
	OrderID   string
	Message   string
	Equity    float64
	Drawdown  float64
	Timestamp time.Time
}
