package model

import (
	"time"

	"github.com/yanun0323/decimal"

	"renkotrader/internal/model/enum"
)

// Order is one order request and its lifecycle state.
type Order struct {
	ID              string
	ParentID        string
	ExchangeOrderID string
	Symbol          string
	Venue           enum.Venue
	Type            enum.OrderType
	Side            enum.OrderSide
	Price           decimal.Decimal
	Quantity        decimal.Decimal
	FilledQuantity  decimal.Decimal
	AvgFillPrice    decimal.Decimal
	Status          enum.OrderStatus
	StopLoss        decimal.Decimal
	TakeProfit      decimal.Decimal
	TriggerPrice    decimal.Decimal
	VisibleQuantity decimal.Decimal
	TickOffset      int
	Pattern         enum.PatternKind
	Paper           bool
	RejectReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpireAt        time.Time
}

// RemainingQuantity is quantity minus filled quantity, never negative.
func (o Order) RemainingQuantity() decimal.Decimal {
	left := o.Quantity.Sub(o.FilledQuantity)
	if left.Sign() < 0 {
		return decimal.Zero
	}
	return left
}

// ExecutionReport is a venue's answer to a placement request.
type ExecutionReport struct {
	ExchangeOrderID string
	Status          enum.OrderStatus
	FilledQuantity  decimal.Decimal
	AvgPrice        decimal.Decimal
	Commission      decimal.Decimal
	Timestamp       time.Time
}

// TradeResult is a closed round trip.
type TradeResult struct {
	OrderID    string
	Symbol     string
	Pattern    enum.PatternKind
	Side       enum.OrderSide
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	PnL        float64
	Charges    float64
	Paper      bool
	OpenedAt   time.Time
	ClosedAt   time.Time
}

func (t TradeResult) Profitable() bool {
	return t.PnL-t.Charges > 0
}
