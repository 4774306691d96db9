package engine

import (
	"context"
	"time"

	"github.com/yanun0323/decimal"

	"renkotrader/internal/errors"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/internal/order"
	"renkotrader/pkg/exception"
)

// handleSignal sizes a signal, arms a stop entry for it and books it on the
// trading counter.
func (o *Orchestrator) handleSignal(p *pipeline, signal model.TradingSignal, now time.Time) {
	account := o.Account()
	spec := model.InstrumentSpec{
		Symbol:    p.cfg.Symbol,
		TickSize:  p.bricks.TickValue(),
		TickValue: decimal.NewFromFloat(o.cfg.PointValue),
		MinLot:    p.cfg.MinLotSize,
		Tradable:  true,
	}
	qty := o.risk.CalculatePositionSize(signal, account, spec)
	if !qty.IsPositive() {
		p.log.Warnf("%s signal sized to zero", signal.Pattern)
		return
	}

	entry := model.Order{
		Symbol:     signal.Symbol,
		Venue:      p.cfg.Venue,
		Type:       enum.OrderTypeStop,
		Side:       signal.Side,
		Price:      signal.Entry,
		Quantity:   qty,
		StopLoss:   signal.StopLoss,
		TakeProfit: signal.TakeProfit,
		Pattern:    signal.Pattern,
		Paper:      o.risk.IsPaperMode(),
	}
	if timeout := o.detector.Config().PatternTimeout; timeout > 0 {
		entry.ExpireAt = now.Add(timeout)
	}

	id, err := o.orders.SubmitStopOrder(entry, signal.Entry, 0)
	if err != nil {
		if errors.Is(err, exception.ErrOrderRiskRejected) {
			p.log.Warnf("%s signal blocked by risk", signal.Pattern)
		} else {
			p.log.Errorf("submit %s entry, err: %+v", signal.Pattern, err)
		}
		return
	}

	riskAmount, _ := signal.StopDistance().Mul(qty).Mul(spec.TickValue).Float64()
	o.risk.ReserveDailyRisk(riskAmount)
	o.detector.MarkActive(signal.Symbol, signal.Pattern, now)

	o.mu.Lock()
	o.entries[id] = entryIntent{signal: signal, symbol: p.cfg, reserved: riskAmount}
	o.mu.Unlock()

	entry.ID = id
	o.bookCounter(entry)
}

// bookCounter adds an entry to the open counter, starting the next counter
// from the previous one's closing capital when needed.
func (o *Orchestrator) bookCounter(entry model.Order) {
	if !o.risk.HasOpenCounter() {
		prev := o.risk.CurrentCounter()
		capital := o.Equity()
		if prev.Number > 0 {
			capital = o.risk.CapitalAfterCounter(prev.InitialCapital)
		}
		o.risk.StartNewCounter(capital)
	}
	completed, err := o.risk.AddOrderToCounter(entry)
	if err != nil {
		o.log.Warnf("counter booking for %s, err: %+v", entry.ID, err)
		return
	}
	if completed {
		o.record(func(s Sink) error { return s.RecordCounter(o.risk.CurrentCounter()) })
	}
}

func (o *Orchestrator) consumeOrderEvents(ctx context.Context, events <-chan order.Event) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			o.onOrderEvent(e)
		}
	}
}

func (o *Orchestrator) consumeRiskEvents(ctx context.Context, events <-chan model.RiskEvent) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			o.record(func(s Sink) error { return s.RecordRiskEvent(e) })
		}
	}
}

func (o *Orchestrator) onOrderEvent(e order.Event) {
	ord := e.Order
	if e.Kind != order.EventFill {
		o.record(func(s Sink) error { return s.RecordOrder(ord) })
	}
	if e.Kind == order.EventFill || !ord.Status.IsTerminal() {
		return
	}

	o.mu.Lock()
	intent, ok := o.entries[ord.ID]
	if !ok {
		o.mu.Unlock()
		return
	}
	delete(o.entries, ord.ID)
	if ord.Status == enum.OrderStatusFilled {
		o.trades[ord.ID] = &openTrade{
			entry:    ord,
			signal:   intent.signal,
			price:    ord.AvgFillPrice,
			quantity: ord.FilledQuantity,
			openedAt: ord.UpdatedAt,
			reserved: intent.reserved,
		}
		o.mu.Unlock()
		o.log.Infof("trade opened %s %s %s at %s", ord.Symbol, ord.Side, ord.FilledQuantity, ord.AvgFillPrice)
		return
	}
	o.mu.Unlock()

	o.risk.ReleaseDailyRisk(intent.reserved)
	o.detector.Clear(ord.Symbol)
	o.log.Infof("entry %s for %s ended %s", ord.ID, ord.Symbol, ord.Status)
}

// resolveTrades closes the symbol's open trades whose stop or target the
// price has reached. A stop takes precedence over a target on the same tick.
func (o *Orchestrator) resolveTrades(p *pipeline, price decimal.Decimal, at time.Time) {
	type exit struct {
		trade *openTrade
		price decimal.Decimal
	}
	var exits []exit

	o.mu.Lock()
	for id, t := range o.trades {
		if t.entry.Symbol != p.cfg.Symbol {
			continue
		}
		level, hit := exitLevel(t, price)
		if !hit {
			continue
		}
		delete(o.trades, id)
		exits = append(exits, exit{trade: t, price: level})
	}
	o.mu.Unlock()

	for _, x := range exits {
		o.closeTrade(p, x.trade, x.price, at)
	}
}

func exitLevel(t *openTrade, price decimal.Decimal) (decimal.Decimal, bool) {
	stop, target := t.entry.StopLoss, t.entry.TakeProfit
	if t.entry.Side == enum.OrderSideBuy {
		switch {
		case stop.IsPositive() && price.LessThanOrEqual(stop):
			return stop, true
		case target.IsPositive() && price.GreaterThanOrEqual(target):
			return target, true
		}
		return decimal.Zero, false
	}
	switch {
	case stop.IsPositive() && price.GreaterThanOrEqual(stop):
		return stop, true
	case target.IsPositive() && price.LessThanOrEqual(target):
		return target, true
	}
	return decimal.Zero, false
}

func (o *Orchestrator) closeTrade(p *pipeline, t *openTrade, exitPrice decimal.Decimal, at time.Time) {
	move := exitPrice.Sub(t.price)
	if t.entry.Side == enum.OrderSideSell {
		move = move.Neg()
	}
	point := decimal.NewFromFloat(o.cfg.PointValue)
	pnl, _ := move.Mul(t.quantity).Mul(point).Float64()
	notional, _ := t.price.Add(exitPrice).Mul(t.quantity).Mul(point).Float64()
	charges := notional * o.cfg.ChargeRate

	result := model.TradeResult{
		OrderID:    t.entry.ID,
		Symbol:     t.entry.Symbol,
		Pattern:    t.entry.Pattern,
		Side:       t.entry.Side,
		Quantity:   t.quantity,
		EntryPrice: t.price,
		ExitPrice:  exitPrice,
		PnL:        pnl,
		Charges:    charges,
		Paper:      t.entry.Paper,
		OpenedAt:   t.openedAt,
		ClosedAt:   at,
	}
	win := result.Profitable()

	o.mu.Lock()
	o.equity += pnl - charges
	o.applyStatsLocked(result)
	o.results = append(o.results, result)
	if len(o.results) > tradeHistoryLimit {
		o.results = o.results[len(o.results)-tradeHistoryLimit:]
	}
	o.mu.Unlock()

	// Open risk turns into the realized loss, if any.
	o.risk.ReleaseDailyRisk(t.reserved)
	if net := pnl - charges; net < 0 {
		o.risk.ReserveDailyRisk(-net)
	}
	o.risk.RecordTrade(t.entry, win)
	o.risk.RecordPnL(pnl - charges)
	o.risk.RecordCounterResult(pnl, charges)
	o.risk.UpdateRiskStatus(o.Account())
	o.detector.RecordOutcome(t.entry.Pattern, win)
	o.detector.Clear(t.entry.Symbol)

	p.log.Infof("trade closed %s at %s pnl %.2f charges %.2f", t.entry.ID, exitPrice, pnl, charges)

	o.submitExit(t, exitPrice)
	o.record(func(s Sink) error { return s.RecordTrade(result) })
	o.record(func(s Sink) error { return s.RecordCounter(o.risk.CurrentCounter()) })
}

// submitExit flattens the venue position with a market order tied to the entry.
func (o *Orchestrator) submitExit(t *openTrade, price decimal.Decimal) {
	side := enum.OrderSideSell
	if t.entry.Side == enum.OrderSideSell {
		side = enum.OrderSideBuy
	}
	_, err := o.orders.SubmitOrder(model.Order{
		ParentID: t.entry.ID,
		Symbol:   t.entry.Symbol,
		Venue:    t.entry.Venue,
		Type:     enum.OrderTypeMarket,
		Side:     side,
		Price:    price,
		Quantity: t.quantity,
		Pattern:  t.entry.Pattern,
		Paper:    t.entry.Paper,
	})
	if err != nil {
		o.log.Errorf("submit exit for %s, err: %+v", t.entry.ID, err)
	}
}

func (o *Orchestrator) record(fn func(Sink) error) {
	if o.sink == nil {
		return
	}
	if err := fn(o.sink); err != nil {
		o.log.Warnf("record, err: %+v", err)
	}
}
