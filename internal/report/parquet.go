package report

import (
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/yanun0323/decimal"

	"renkotrader/internal/errors"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
)

// BrickRow is the Parquet schema for completed bricks. Prices are decimal
// strings so they read back exactly.
type BrickRow struct {
	Symbol     string  `parquet:"symbol"`
	Sequence   int64   `parquet:"sequence"`
	Timestamp  int64   `parquet:"timestamp,timestamp(nanosecond)"`
	Direction  string  `parquet:"direction"`
	Open       string  `parquet:"open"`
	Close      string  `parquet:"close"`
	High       string  `parquet:"high"`
	Low        string  `parquet:"low"`
	Completion float64 `parquet:"completion"`
}

// OrderRow is the Parquet schema for orders. Enums are stored by code with a
// readable label beside the ones analysts filter on.
type OrderRow struct {
	ID              string `parquet:"id"`
	ParentID        string `parquet:"parent_id"`
	ExchangeOrderID string `parquet:"exchange_order_id"`
	Symbol          string `parquet:"symbol"`
	Venue           int32  `parquet:"venue"`
	Type            int32  `parquet:"type"`
	Side            int32  `parquet:"side"`
	SideName        string `parquet:"side_name"`
	Status          int32  `parquet:"status"`
	StatusName      string `parquet:"status_name"`
	Pattern         int32  `parquet:"pattern"`
	Price           string `parquet:"price"`
	Quantity        string `parquet:"quantity"`
	FilledQuantity  string `parquet:"filled_quantity"`
	AvgFillPrice    string `parquet:"avg_fill_price"`
	TriggerPrice    string `parquet:"trigger_price"`
	StopLoss        string `parquet:"stop_loss"`
	TakeProfit      string `parquet:"take_profit"`
	Paper           bool   `parquet:"paper"`
	RejectReason    string `parquet:"reject_reason"`
	CreatedAt       int64  `parquet:"created_at,timestamp(nanosecond)"`
	UpdatedAt       int64  `parquet:"updated_at,timestamp(nanosecond)"`
}

// TradeRow is the Parquet schema for closed trades.
type TradeRow struct {
	OrderID    string  `parquet:"order_id"`
	Symbol     string  `parquet:"symbol"`
	Pattern    int32   `parquet:"pattern"`
	PatternTag string  `parquet:"pattern_name"`
	Side       int32   `parquet:"side"`
	SideName   string  `parquet:"side_name"`
	Quantity   string  `parquet:"quantity"`
	EntryPrice string  `parquet:"entry_price"`
	ExitPrice  string  `parquet:"exit_price"`
	PnL        float64 `parquet:"pnl"`
	Charges    float64 `parquet:"charges"`
	Paper      bool    `parquet:"paper"`
	OpenedAt   int64   `parquet:"opened_at,timestamp(nanosecond)"`
	ClosedAt   int64   `parquet:"closed_at,timestamp(nanosecond)"`
}

// WriteBricks writes bricks oldest first. firstSequence is the sequence
// number of bricks[0].
func WriteBricks(path, symbol string, firstSequence uint64, bricks []model.Brick) error {
	rows := make([]BrickRow, len(bricks))
	for i, b := range bricks {
		rows[i] = BrickRow{
			Symbol:     symbol,
			Sequence:   int64(firstSequence) + int64(i),
			Timestamp:  unixNano(b.Timestamp),
			Direction:  b.Direction.String(),
			Open:       b.Open.String(),
			Close:      b.Close.String(),
			High:       b.High.String(),
			Low:        b.Low.String(),
			Completion: b.Completion,
		}
	}
	return errors.Wrapf(writeFile(path, rows), "write bricks %s", path)
}

func ReadBricks(path string) ([]model.Brick, error) {
	rows, err := parquet.ReadFile[BrickRow](path)
	if err != nil {
		return nil, errors.Wrapf(err, "read bricks %s", path)
	}
	out := make([]model.Brick, len(rows))
	for i, r := range rows {
		b := model.Brick{
			Timestamp:  fromUnixNano(r.Timestamp),
			Completion: r.Completion,
		}
		switch r.Direction {
		case enum.DirectionUp.String():
			b.Direction = enum.DirectionUp
		case enum.DirectionDown.String():
			b.Direction = enum.DirectionDown
		}
		var err error
		if b.Open, err = parseDecimal(r.Open); err != nil {
			return nil, errors.Wrapf(err, "brick %d", r.Sequence)
		}
		if b.Close, err = parseDecimal(r.Close); err != nil {
			return nil, errors.Wrapf(err, "brick %d", r.Sequence)
		}
		if b.High, err = parseDecimal(r.High); err != nil {
			return nil, errors.Wrapf(err, "brick %d", r.Sequence)
		}
		if b.Low, err = parseDecimal(r.Low); err != nil {
			return nil, errors.Wrapf(err, "brick %d", r.Sequence)
		}
		out[i] = b
	}
	return out, nil
}

func WriteOrders(path string, orders []model.Order) error {
	rows := make([]OrderRow, len(orders))
	for i, o := range orders {
		rows[i] = OrderRow{
			ID:              o.ID,
			ParentID:        o.ParentID,
			ExchangeOrderID: o.ExchangeOrderID,
			Symbol:          o.Symbol,
			Venue:           int32(o.Venue),
			Type:            int32(o.Type),
			Side:            int32(o.Side),
			SideName:        o.Side.String(),
			Status:          int32(o.Status),
			StatusName:      o.Status.String(),
			Pattern:         int32(o.Pattern),
			Price:           o.Price.String(),
			Quantity:        o.Quantity.String(),
			FilledQuantity:  o.FilledQuantity.String(),
			AvgFillPrice:    o.AvgFillPrice.String(),
			TriggerPrice:    o.TriggerPrice.String(),
			StopLoss:        o.StopLoss.String(),
			TakeProfit:      o.TakeProfit.String(),
			Paper:           o.Paper,
			RejectReason:    o.RejectReason,
			CreatedAt:       unixNano(o.CreatedAt),
			UpdatedAt:       unixNano(o.UpdatedAt),
		}
	}
	return errors.Wrapf(writeFile(path, rows), "write orders %s", path)
}

func ReadOrders(path string) ([]model.Order, error) {
	rows, err := parquet.ReadFile[OrderRow](path)
	if err != nil {
		return nil, errors.Wrapf(err, "read orders %s", path)
	}
	out := make([]model.Order, len(rows))
	for i, r := range rows {
		o := model.Order{
			ID:              r.ID,
			ParentID:        r.ParentID,
			ExchangeOrderID: r.ExchangeOrderID,
			Symbol:          r.Symbol,
			Venue:           enum.Venue(r.Venue),
			Type:            enum.OrderType(r.Type),
			Side:            enum.OrderSide(r.Side),
			Status:          enum.OrderStatus(r.Status),
			Pattern:         enum.PatternKind(r.Pattern),
			Paper:           r.Paper,
			RejectReason:    r.RejectReason,
			CreatedAt:       fromUnixNano(r.CreatedAt),
			UpdatedAt:       fromUnixNano(r.UpdatedAt),
		}
		fields := []struct {
			dst *decimal.Decimal
			raw string
		}{
			{&o.Price, r.Price},
			{&o.Quantity, r.Quantity},
			{&o.FilledQuantity, r.FilledQuantity},
			{&o.AvgFillPrice, r.AvgFillPrice},
			{&o.TriggerPrice, r.TriggerPrice},
			{&o.StopLoss, r.StopLoss},
			{&o.TakeProfit, r.TakeProfit},
		}
		for _, f := range fields {
			if *f.dst, err = parseDecimal(f.raw); err != nil {
				return nil, errors.Wrapf(err, "order %s", r.ID)
			}
		}
		out[i] = o
	}
	return out, nil
}

func WriteTrades(path string, trades []model.TradeResult) error {
	rows := make([]TradeRow, len(trades))
	for i, t := range trades {
		rows[i] = TradeRow{
			OrderID:    t.OrderID,
			Symbol:     t.Symbol,
			Pattern:    int32(t.Pattern),
			PatternTag: t.Pattern.String(),
			Side:       int32(t.Side),
			SideName:   t.Side.String(),
			Quantity:   t.Quantity.String(),
			EntryPrice: t.EntryPrice.String(),
			ExitPrice:  t.ExitPrice.String(),
			PnL:        t.PnL,
			Charges:    t.Charges,
			Paper:      t.Paper,
			OpenedAt:   unixNano(t.OpenedAt),
			ClosedAt:   unixNano(t.ClosedAt),
		}
	}
	return errors.Wrapf(writeFile(path, rows), "write trades %s", path)
}

func ReadTrades(path string) ([]model.TradeResult, error) {
	rows, err := parquet.ReadFile[TradeRow](path)
	if err != nil {
		return nil, errors.Wrapf(err, "read trades %s", path)
	}
	out := make([]model.TradeResult, len(rows))
	for i, r := range rows {
		t := model.TradeResult{
			OrderID:  r.OrderID,
			Symbol:   r.Symbol,
			Pattern:  enum.PatternKind(r.Pattern),
			Side:     enum.OrderSide(r.Side),
			PnL:      r.PnL,
			Charges:  r.Charges,
			Paper:    r.Paper,
			OpenedAt: fromUnixNano(r.OpenedAt),
			ClosedAt: fromUnixNano(r.ClosedAt),
		}
		if t.Quantity, err = parseDecimal(r.Quantity); err != nil {
			return nil, errors.Wrapf(err, "trade %s", r.OrderID)
		}
		if t.EntryPrice, err = parseDecimal(r.EntryPrice); err != nil {
			return nil, errors.Wrapf(err, "trade %s", r.OrderID)
		}
		if t.ExitPrice, err = parseDecimal(r.ExitPrice); err != nil {
			return nil, errors.Wrapf(err, "trade %s", r.OrderID)
		}
		out[i] = t
	}
	return out, nil
}

func writeFile[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, rows)
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.New(raw)
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
