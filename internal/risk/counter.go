package risk

import (
	"fmt"

	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
)

// StartNewCounter opens counter n+1 seeded with initialCapital. It does nothing
// while the current counter is still open.
func (m *Manager) StartNewCounter(initialCapital float64) bool {
	m.counterMu.Lock()
	defer m.counterMu.Unlock()
	if m.counterOpen {
		return false
	}
	m.counter = model.TradingCounter{
		Number:         m.counter.Number + 1,
		InitialCapital: initialCapital,
		CurrentCapital: initialCapital,
		StartTime:      m.now(),
	}
	m.counterOpen = true
	m.log.Infof("counter %d started with capital %.2f", m.counter.Number, initialCapital)
	return true
}

// AddOrderToCounter appends to the open counter and completes it exactly when
// it reaches ordersPerCounter orders. It reports whether that call completed it.
func (m *Manager) AddOrderToCounter(order model.Order) (bool, error) {
	limit := m.Parameters().OrdersPerCounter

	m.counterMu.Lock()
	if !m.counterOpen {
		m.counterMu.Unlock()
		return false, fmt.Errorf("no open counter for order %s", order.ID)
	}
	m.counter.Orders = append(m.counter.Orders, order)
	if len(m.counter.Orders) < limit {
		m.counterMu.Unlock()
		return false, nil
	}
	done := m.completeLocked()
	m.counterMu.Unlock()

	m.log.Infof("counter %d complete: pnl %.2f charges %.2f", done.Number, done.TotalPnL, done.TotalCharges)
	m.emit(enum.RiskEventCounterCompleted, "", order.ID, fmt.Sprintf("counter %d complete", done.Number))
	return true, nil
}

// CompleteCounter closes the open counter early.
func (m *Manager) CompleteCounter() bool {
	m.counterMu.Lock()
	if !m.counterOpen {
		m.counterMu.Unlock()
		return false
	}
	done := m.completeLocked()
	m.counterMu.Unlock()
	m.emit(enum.RiskEventCounterCompleted, "", "", fmt.Sprintf("counter %d complete", done.Number))
	return true
}

func (m *Manager) completeLocked() model.TradingCounter {
	m.counter.Complete = true
	m.counter.EndTime = m.now()
	m.counter.CurrentCapital = m.counter.InitialCapital + m.counter.TotalPnL - m.counter.TotalCharges
	m.counterOpen = false
	done := copyCounter(m.counter)
	m.completed = append(m.completed, done)
	return done
}

// RecordCounterResult accrues a resolved trade to the current counter, even if
// it has already completed and no new counter has started yet.
func (m *Manager) RecordCounterResult(pnl, charges float64) {
	m.counterMu.Lock()
	defer m.counterMu.Unlock()
	if m.counter.Number == 0 {
		return
	}
	m.counter.TotalPnL += pnl
	m.counter.TotalCharges += charges
	m.counter.CurrentCapital = m.counter.InitialCapital + m.counter.TotalPnL - m.counter.TotalCharges
	if m.counter.Complete && len(m.completed) > 0 {
		last := &m.completed[len(m.completed)-1]
		if last.Number == m.counter.Number {
			last.TotalPnL = m.counter.TotalPnL
			last.TotalCharges = m.counter.TotalCharges
			last.CurrentCapital = m.counter.CurrentCapital
		}
	}
}

// IsCounterComplete reports whether the current counter is finished.
func (m *Manager) IsCounterComplete() bool {
	m.counterMu.Lock()
	defer m.counterMu.Unlock()
	return m.counter.Complete
}

// HasOpenCounter reports whether orders can be added.
func (m *Manager) HasOpenCounter() bool {
	m.counterMu.Lock()
	defer m.counterMu.Unlock()
	return m.counterOpen
}

// CapitalAfterCounter is initialCapital plus the current counter's P&L minus charges.
func (m *Manager) CapitalAfterCounter(initialCapital float64) float64 {
	m.counterMu.Lock()
	defer m.counterMu.Unlock()
	return initialCapital + m.counter.TotalPnL - m.counter.TotalCharges
}

func (m *Manager) CurrentCounter() model.TradingCounter {
	m.counterMu.Lock()
	defer m.counterMu.Unlock()
	return copyCounter(m.counter)
}

func (m *Manager) CompletedCounters() []model.TradingCounter {
	m.counterMu.Lock()
	defer m.counterMu.Unlock()
	out := make([]model.TradingCounter, len(m.completed))
	for i, c := range m.completed {
		out[i] = copyCounter(c)
	}
	return out
}

func copyCounter(c model.TradingCounter) model.TradingCounter {
	if c.Orders != nil {
		orders := make([]model.Order, len(c.Orders))
		copy(orders, c.Orders)
		c.Orders = orders
	}
	return c
}
