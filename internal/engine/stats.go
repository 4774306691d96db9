package engine

import (
	"renkotrader/internal/model"
	"renkotrader/internal/obs"
)

// Status is a point-in-time view across the engine's components.
type Status struct {
	Running      bool
	Equity       float64
	OpenTrades   int
	PendingEntry int
	ActiveOrders int
	QueuedOrders int
	Risk         model.RiskSnapshot
	Trading      model.TradingStats
	Metrics      obs.Snapshot
}

// Account is the engine's view of the trading account. Equity moves only with
// closed trades.
func (o *Orchestrator) Account() model.AccountInfo {
	eq := o.Equity()
	return model.AccountInfo{
		Balance:    eq,
		Equity:     eq,
		FreeMargin: eq,
		Currency:   o.cfg.Currency,
	}
}

func (o *Orchestrator) Equity() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.equity
}

func (o *Orchestrator) Stats() model.TradingStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

// Trades returns the most recent closed trades, oldest first.
func (o *Orchestrator) Trades() []model.TradeResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.TradeResult, len(o.results))
	copy(out, o.results)
	return out
}

func (o *Orchestrator) OpenTrades() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.trades)
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	s := Status{
		Running:      o.running.Load(),
		Equity:       o.equity,
		OpenTrades:   len(o.trades),
		PendingEntry: len(o.entries),
		Trading:      o.stats,
	}
	o.mu.Unlock()

	s.ActiveOrders = o.orders.ActiveOrderCount()
	s.QueuedOrders = o.orders.QueueLen()
	s.Risk = o.risk.Snapshot()
	s.Metrics = o.metrics.Snapshot()
	return s
}

func (o *Orchestrator) applyStatsLocked(r model.TradeResult) {
	net := r.PnL - r.Charges
	s := &o.stats
	s.TotalTrades++
	s.TotalPnL += r.PnL
	s.TotalCharges += r.Charges
	if r.Profitable() {
		s.WinningTrades++
		s.GrossProfit += net
		s.LargestWin = max(s.LargestWin, net)
		o.wins++
		o.losses = 0
		s.MaxConsecutiveWins = max(s.MaxConsecutiveWins, o.wins)
		return
	}
	s.LosingTrades++
	s.GrossLoss += -net
	s.LargestLoss = min(s.LargestLoss, net)
	o.losses++
	o.wins = 0
	s.MaxConsecutiveLosses = max(s.MaxConsecutiveLosses, o.losses)
}
