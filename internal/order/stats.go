package order

import (
	"fmt"
	"sort"
)

const slippageHistoryLimit = 100

// ExecutionStats is per-symbol execution reporting. It is never used to decide
// order state.
type ExecutionStats struct {
	Symbol          string
	TotalOrders     int
	FilledOrders    int
	RejectedOrders  int
	Fills           int
	TotalSlippage   float64
	SlippageHistory []float64
}

// AverageSlippage is the mean slippage over every recorded fill, including
// fills that have aged out of SlippageHistory.
func (s ExecutionStats) AverageSlippage() float64 {
	if s.Fills == 0 {
		return 0
	}
	return s.TotalSlippage / float64(s.Fills)
}

// FillRate is filled orders over orders sent to a venue.
func (s ExecutionStats) FillRate() float64 {
	if s.TotalOrders == 0 {
		return 0
	}
	return float64(s.FilledOrders) / float64(s.TotalOrders)
}

func (s *ExecutionStats) recordSlippage(slippage float64) {
	s.Fills++
	s.TotalSlippage += slippage
	s.SlippageHistory = append(s.SlippageHistory, slippage)
	if over := len(s.SlippageHistory) - slippageHistoryLimit; over > 0 {
		s.SlippageHistory = append(s.SlippageHistory[:0], s.SlippageHistory[over:]...)
	}
}

func (s ExecutionStats) clone() ExecutionStats {
	s.SlippageHistory = append([]float64(nil), s.SlippageHistory...)
	return s
}

func (m *Manager) statsLocked(symbol string) *ExecutionStats {
	s, ok := m.stats[symbol]
	if !ok {
		s = &ExecutionStats{Symbol: symbol}
		m.stats[symbol] = s
	}
	return s
}

// ExecutionStats returns a copy of the symbol's stats.
func (m *Manager) ExecutionStats(symbol string) (ExecutionStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[symbol]
	if !ok {
		return ExecutionStats{}, false
	}
	return s.clone(), true
}

func (m *Manager) AverageSlippage(symbol string) float64 {
	s, _ := m.ExecutionStats(symbol)
	return s.AverageSlippage()
}

// FillRate aggregates every symbol.
func (m *Manager) FillRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total, filled int
	for _, s := range m.stats {
		total += s.TotalOrders
		filled += s.FilledOrders
	}
	if total == 0 {
		return 0
	}
	return float64(filled) / float64(total)
}

// ExecutionReport renders a short human-readable summary.
func (m *Manager) ExecutionReport() []string {
	active := m.ActiveOrderCount()
	rate := m.FillRate()

	m.mu.Lock()
	symbols := make([]string, 0, len(m.stats))
	for s := range m.stats {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	lines := []string{
		"=== Order Execution Report ===",
		fmt.Sprintf("Active Orders: %d", active),
		fmt.Sprintf("Fill Rate: %.2f%%", rate*100),
	}
	for _, symbol := range symbols {
		s := m.stats[symbol]
		lines = append(lines, fmt.Sprintf("%s: %d/%d filled, %d rejected (avg slippage: %.6f)",
			symbol, s.FilledOrders, s.TotalOrders, s.RejectedOrders, s.AverageSlippage()))
	}
	m.mu.Unlock()
	return lines
}
