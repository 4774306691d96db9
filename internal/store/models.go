package store

import (
	"strings"
	"time"

	"github.com/yanun0323/decimal"

	"renkotrader/internal/model"
)

// OrderRecord is the latest known state of an order, keyed by order id.
type OrderRecord struct {
	ID              string          `gorm:"primaryKey;size:64"`
	ParentID        string          `gorm:"size:64;index"`
	ExchangeOrderID string          `gorm:"size:128"`
	Symbol          string          `gorm:"size:32;index"`
	Venue           string          `gorm:"size:16"`
	Type            string          `gorm:"size:16"`
	Side            string          `gorm:"size:8"`
	Price           decimal.Decimal `gorm:"type:numeric"`
	Quantity        decimal.Decimal `gorm:"type:numeric"`
	FilledQuantity  decimal.Decimal `gorm:"type:numeric"`
	AvgFillPrice    decimal.Decimal `gorm:"type:numeric"`
	TriggerPrice    decimal.Decimal `gorm:"type:numeric"`
	StopLoss        decimal.Decimal `gorm:"type:numeric"`
	TakeProfit      decimal.Decimal `gorm:"type:numeric"`
	Status          string          `gorm:"size:24;index"`
	Pattern         string          `gorm:"size:16"`
	Paper           bool
	RejectReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (OrderRecord) TableName() string { return "orders" }

func newOrderRecord(o model.Order) *OrderRecord {
	return &OrderRecord{
		ID:              o.ID,
		ParentID:        o.ParentID,
		ExchangeOrderID: o.ExchangeOrderID,
		Symbol:          o.Symbol,
		Venue:           o.Venue.String(),
		Type:            o.Type.String(),
		Side:            o.Side.String(),
		Price:           o.Price,
		Quantity:        o.Quantity,
		FilledQuantity:  o.FilledQuantity,
		AvgFillPrice:    o.AvgFillPrice,
		TriggerPrice:    o.TriggerPrice,
		StopLoss:        o.StopLoss,
		TakeProfit:      o.TakeProfit,
		Status:          o.Status.String(),
		Pattern:         o.Pattern.String(),
		Paper:           o.Paper,
		RejectReason:    o.RejectReason,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

type TradeRecord struct {
	ID         uint            `gorm:"primaryKey"`
	OrderID    string          `gorm:"size:64;uniqueIndex"`
	Symbol     string          `gorm:"size:32;index"`
	Pattern    string          `gorm:"size:16"`
	Side       string          `gorm:"size:8"`
	Quantity   decimal.Decimal `gorm:"type:numeric"`
	EntryPrice decimal.Decimal `gorm:"type:numeric"`
	ExitPrice  decimal.Decimal `gorm:"type:numeric"`
	PnL        float64
	Charges    float64
	Paper      bool
	OpenedAt   time.Time
	ClosedAt   time.Time `gorm:"index"`
}

func (TradeRecord) TableName() string { return "trades" }

func newTradeRecord(t model.TradeResult) *TradeRecord {
	return &TradeRecord{
		OrderID:    t.OrderID,
		Symbol:     t.Symbol,
		Pattern:    t.Pattern.String(),
		Side:       t.Side.String(),
		Quantity:   t.Quantity,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		PnL:        t.PnL,
		Charges:    t.Charges,
		Paper:      t.Paper,
		OpenedAt:   t.OpenedAt,
		ClosedAt:   t.ClosedAt,
	}
}

type RiskEventRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Kind      string `gorm:"size:32;index"`
	Symbol    string `gorm:"size:32"`
	OrderID   string `gorm:"size:64"`
	Message   string
	Equity    float64
	Drawdown  float64
	Timestamp time.Time `gorm:"index"`
}

func (RiskEventRecord) TableName() string { return "risk_events" }

func newRiskEventRecord(e model.RiskEvent) *RiskEventRecord {
	return &RiskEventRecord{
		Kind:      e.Kind.String(),
		Symbol:    e.Symbol,
		OrderID:   e.OrderID,
		Message:   e.Message,
		Equity:    e.Equity,
		Drawdown:  e.Drawdown,
		Timestamp: e.Timestamp,
	}
}

// CounterRecord is the latest state of a trading counter, keyed by number.
type CounterRecord struct {
	Number         int `gorm:"primaryKey;autoIncrement:false"`
	OrderCount     int
	OrderIDs       string
	InitialCapital float64
	CurrentCapital float64
	TotalPnL       float64
	TotalCharges   float64
	Complete       bool
	StartTime      time.Time
	EndTime        time.Time
}

func (CounterRecord) TableName() string { return "counters" }

func newCounterRecord(c model.TradingCounter) *CounterRecord {
	ids := make([]string, len(c.Orders))
	for i, o := range c.Orders {
		ids[i] = o.ID
	}
	return &CounterRecord{
		Number:         c.Number,
		OrderCount:     len(c.Orders),
		OrderIDs:       strings.Join(ids, ","),
		InitialCapital: c.InitialCapital,
		CurrentCapital: c.CurrentCapital,
		TotalPnL:       c.TotalPnL,
		TotalCharges:   c.TotalCharges,
		Complete:       c.Complete,
		StartTime:      c.StartTime,
		EndTime:        c.EndTime,
	}
}
