package model

import (
	"time"

	"github.com/yanun0323/decimal"

	"renkotrader/internal/model/enum"
)

// Tick is one market data observation for an instrument.
type Tick struct {
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Last      decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}

// Price returns the last trade price, falling back to the mid price.
func (t Tick) Price() decimal.Decimal {
	if t.Last.IsPositive() {
		return t.Last
	}
	if t.Bid.IsPositive() && t.Ask.IsPositive() {
		return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
	}
	return decimal.Zero
}

// Spread returns ask minus bid, or zero when either side is missing.
func (t Tick) Spread() decimal.Decimal {
	if !t.Bid.IsPositive() || !t.Ask.IsPositive() {
		return decimal.Zero
	}
	return t.Ask.Sub(t.Bid)
}

// Brick is a completed Renko brick. Completed bricks never change.
type Brick struct {
	Open       decimal.Decimal
	Close      decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Timestamp  time.Time
	Direction  enum.Direction
	Completion float64
}

func (b Brick) IsUp() bool   { return b.Direction == enum.DirectionUp }
func (b Brick) IsDown() bool { return b.Direction == enum.DirectionDown }

// FormingBrick is the partial brick accumulating movement from the reference price.
type FormingBrick struct {
	Open       decimal.Decimal
	Direction  enum.Direction
	Completion float64
	Timestamp  time.Time
}

// InstrumentSpec carries the trading rules a venue reports for a symbol.
type InstrumentSpec struct {
	Symbol       string
	TickSize     decimal.Decimal
	TickValue    decimal.Decimal
	MinLot       decimal.Decimal
	MaxLot       decimal.Decimal
	LotStep      decimal.Decimal
	ContractSize decimal.Decimal
	Tradable     bool
}
