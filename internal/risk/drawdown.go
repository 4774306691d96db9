package risk

import (
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
)

// CalculateDrawdown folds an equity observation into the high-water mark and
// returns the current drawdown. Both the mark and the max drawdown only grow.
func (m *Manager) CalculateDrawdown(equity float64) float64 {
	m.mu.Lock()
	dd := m.observeEquity(equity)
	m.mu.Unlock()
	return dd
}

func (m *Manager) observeEquity(equity float64) float64 {
	if equity > m.highWaterMark {
		m.highWaterMark = equity
	}
	m.currentDrawdown = 0
	if m.highWaterMark > 0 {
		m.currentDrawdown = (m.highWaterMark - equity) / m.highWaterMark
	}
	if m.currentDrawdown > m.maxDrawdown {
		m.maxDrawdown = m.currentDrawdown
	}
	return m.currentDrawdown
}

// UpdateRiskStatus recomputes drawdown from the account and refreshes the status.
func (m *Manager) UpdateRiskStatus(account model.AccountInfo) enum.RiskStatus {
	before := m.Status()
	m.CalculateDrawdown(account.Equity)
	after := m.refreshStatus()
	if after != before {
		switch after {
		case enum.RiskStatusWarning:
			m.log.Warnf("drawdown warning at equity %.2f", account.Equity)
			m.emit(enum.RiskEventDrawdownWarning, "", "", "drawdown above warning level")
		case enum.RiskStatusLimitReached:
			if !m.IsEmergencyStop() {
				m.log.Errorf("drawdown limit reached at equity %.2f", account.Equity)
				m.emit(enum.RiskEventDrawdownLimit, "", "", "drawdown limit reached")
			}
		}
	}
	return after
}

func (m *Manager) CurrentDrawdown() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentDrawdown
}

func (m *Manager) MaxDrawdown() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxDrawdown
}

func (m *Manager) HighWaterMark() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highWaterMark
}

// refreshStatus derives the status from the flags and current drawdown.
func (m *Manager) refreshStatus() enum.RiskStatus {
	limit := m.Parameters().MaxDrawdownPercent
	m.mu.Lock()
	dd := m.currentDrawdown
	m.mu.Unlock()

	var s enum.RiskStatus
	switch {
	case m.emergencyStop.Load(), dd >= limit:
		s = enum.RiskStatusLimitReached
	case m.paperMode.Load():
		s = enum.RiskStatusPaperMode
	case dd > limit*warningFraction:
		s = enum.RiskStatusWarning
	default:
		s = enum.RiskStatusNormal
	}
	m.status.Store(int32(s))
	return s
}
