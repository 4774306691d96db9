package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"renkotrader/internal/engine"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(18)

	profitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
)

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func money(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	switch {
	case v > 0:
		return profitStyle.Render(s)
	case v < 0:
		return lossStyle.Render(s)
	}
	return s
}

func riskStatus(s enum.RiskStatus) string {
	switch s {
	case enum.RiskStatusNormal:
		return profitStyle.Render(s.String())
	case enum.RiskStatusLimitReached:
		return lossStyle.Render(s.String())
	}
	return warnStyle.Render(s.String())
}

// renderStatus draws the account, risk and pipeline panels side by side.
func renderStatus(s engine.Status, execution []string) string {
	t := s.Trading
	account := panelStyle.Render(strings.Join([]string{
		titleStyle.Render("Account"),
		row("Equity", fmt.Sprintf("%.2f", s.Equity)),
		row("Net P&L", money(t.TotalPnL-t.TotalCharges)),
		row("Charges", fmt.Sprintf("%.2f", t.TotalCharges)),
		row("Trades", fmt.Sprintf("%d (%d W / %d L)", t.TotalTrades, t.WinningTrades, t.LosingTrades)),
		row("Win rate", fmt.Sprintf("%.1f%%", t.WinRate()*100)),
		row("Open trades", fmt.Sprintf("%d", s.OpenTrades)),
	}, "\n"))

	r := s.Risk
	riskPanel := panelStyle.Render(strings.Join([]string{
		titleStyle.Render("Risk"),
		row("Status", riskStatus(r.Status)),
		row("Paper mode", fmt.Sprintf("%t", r.PaperMode)),
		row("Drawdown", fmt.Sprintf("%.2f%% (max %.2f%%)", r.CurrentDrawdown*100, r.MaxDrawdown*100)),
		row("High-water mark", fmt.Sprintf("%.2f", r.HighWaterMark)),
		row("Daily risk used", fmt.Sprintf("%.2f", r.DailyRiskUsed)),
		row("Loss streak", fmt.Sprintf("%d (max %d)", r.ConsecutiveLosses, r.MaxConsecutiveLosses)),
		row("Counter", fmt.Sprintf("#%d, %d orders", r.CounterNumber, r.CounterOrders)),
	}, "\n"))

	m := s.Metrics
	lines := []string{
		titleStyle.Render("Pipeline"),
		row("Ticks", fmt.Sprintf("%d (%d dropped)", m.Ticks, m.TickDrops)),
		row("Bricks", fmt.Sprintf("%d", m.Bricks)),
		row("Setup1 signals", fmt.Sprintf("%d", m.Signals[enum.PatternSetup1])),
		row("Setup2 signals", fmt.Sprintf("%d", m.Signals[enum.PatternSetup2])),
		row("Risk rejects", fmt.Sprintf("%d", sumRejects(m.RiskRejects))),
		row("Tick latency", fmt.Sprintf("avg %s max %s", m.TickLatency.Avg, m.TickLatency.Max)),
		row("Active orders", fmt.Sprintf("%d (%d queued)", s.ActiveOrders, s.QueuedOrders)),
	}
	pipeline := panelStyle.Render(strings.Join(lines, "\n"))

	out := lipgloss.JoinHorizontal(lipgloss.Top, account, riskPanel, pipeline)
	if len(execution) > 0 {
		out = lipgloss.JoinVertical(lipgloss.Left, out,
			panelStyle.Render(titleStyle.Render("Execution")+"\n"+strings.Join(execution, "\n")))
	}
	return out
}

// renderTrades lists the last n closed trades, newest first.
func renderTrades(trades []model.TradeResult, n int) string {
	if len(trades) == 0 {
		return panelStyle.Render(titleStyle.Render("Trades") + "\nno closed trades")
	}
	if n > 0 && len(trades) > n {
		trades = trades[len(trades)-n:]
	}
	lines := []string{titleStyle.Render("Trades")}
	for i := len(trades) - 1; i >= 0; i-- {
		tr := trades[i]
		lines = append(lines, fmt.Sprintf("%-8s %-6s %-4s %s -> %s x %s  %s",
			tr.Symbol, tr.Pattern, tr.Side, tr.EntryPrice, tr.ExitPrice, tr.Quantity, money(tr.PnL-tr.Charges)))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func renderConfig(path, body string) string {
	if path == "" {
		path = "defaults + environment"
	}
	return panelStyle.Render(titleStyle.Render("Config: "+path) + "\n" + strings.TrimRight(body, "\n"))
}

func sumRejects(m map[enum.RejectReason]uint64) uint64 {
	var n uint64
	for _, v := range m {
		n += v
	}
	return n
}
