package model

import (
	"time"

	"github.com/yanun0323/decimal"

	"renkotrader/internal/model/enum"
)

// PatternResult is the outcome of one detection rule.
type PatternResult struct {
	Kind       enum.PatternKind
	Symbol     string
	Bricks     []Brick
	Confidence float64
	Side       enum.OrderSide
	Entry      decimal.Decimal
	Stop       decimal.Decimal
	Sequence   uint64
	DetectedAt time.Time
}

func (p PatternResult) Found() bool {
	return p.Kind != enum.PatternNone
}

// TradingSignal is a priced trade proposal derived from a PatternResult.
type TradingSignal struct {
	Symbol     string
	Pattern    enum.PatternKind
	Side       enum.OrderSide
	Entry      decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Quantity   decimal.Decimal
	Confidence float64
	Timestamp  time.Time
}

func (s TradingSignal) IsEmpty() bool {
	return s.Pattern == enum.PatternNone
}

// StopDistance is |entry - stop|.
func (s TradingSignal) StopDistance() decimal.Decimal {
	return s.Entry.Sub(s.StopLoss).Abs()
}
