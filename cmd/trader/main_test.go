package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/decimal"

	"renkotrader/internal/engine"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/internal/obs"
	"renkotrader/internal/ops"
	"renkotrader/internal/report"
)

const simConfig = `mode: paper
log_level: error
symbols:
  - symbol: EURUSD
    venue: paper
    brick_size: "0.5"
    tick_value: "0.0001"
    min_lot_size: "0.01"
simulation:
  seed: 3
  ticks: 2000
  volatility: 0.002
  start:
    EURUSD: "100"
`

func testCLI(t *testing.T) *cli {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(simConfig), 0o644))
	c := &cli{configPath: path}
	require.NoError(t, c.setup())
	t.Cleanup(c.teardown)
	return c
}

func TestSimulateAndExport(t *testing.T) {
	c := testCLI(t)

	a, err := simulate(t.Context(), c, simulateOptions{ticks: 1500})
	require.NoError(t, err)

	status := a.engine.Status()
	assert.Equal(t, uint64(1500), status.Metrics.Ticks)
	assert.Positive(t, status.Metrics.Bricks)
	assert.True(t, status.Risk.PaperMode)

	dir := t.TempDir()
	written, err := exportRun(dir, a)
	require.NoError(t, err)
	require.NotEmpty(t, written)

	e, ok := a.engine.Bricks("EURUSD")
	require.True(t, ok)
	bricks, err := report.ReadBricks(filepath.Join(dir, "bricks", "EURUSD.parquet"))
	require.NoError(t, err)
	assert.Len(t, bricks, e.BrickCount())

	snap, err := report.ReadSnapshot(filepath.Join(dir, "snapshot.json"))
	require.NoError(t, err)
	assert.Equal(t, ops.ModePaper, snap.Mode)
	require.Len(t, snap.Symbols, 1)
	assert.Equal(t, "EURUSD", snap.Symbols[0].Symbol)
	assert.InDelta(t, status.Equity, snap.Equity, 1e-9)
}

func TestSimulateIsDeterministicPerSeed(t *testing.T) {
	c := testCLI(t)

	a, err := simulate(t.Context(), c, simulateOptions{ticks: 500, seed: 11})
	require.NoError(t, err)
	b, err := simulate(t.Context(), c, simulateOptions{ticks: 500, seed: 11})
	require.NoError(t, err)

	ea, _ := a.engine.Bricks("EURUSD")
	eb, _ := b.engine.Bricks("EURUSD")
	assert.Equal(t, ea.Snapshot(0).Sequence, eb.Snapshot(0).Sequence)
	assert.True(t, ea.LastPrice().Equal(eb.LastPrice()))
}

func TestPaperOnly(t *testing.T) {
	cfg := ops.Loaded{Mode: ops.ModeLive}
	cfg.Database.Enabled = true
	cfg.Engine.Symbols = []model.SymbolConfig{{Symbol: "BTCUSDT", Venue: enum.VenueBinance, Enabled: true}}

	out := paperOnly(cfg)
	assert.Equal(t, ops.ModePaper, out.Mode)
	assert.False(t, out.Database.Enabled)
	assert.Equal(t, enum.VenuePaper, out.Engine.Symbols[0].Venue)
	assert.Equal(t, enum.VenueBinance, cfg.Engine.Symbols[0].Venue)
}

func TestRenderStatus(t *testing.T) {
	s := engine.Status{
		Equity:  10_150,
		Trading: model.TradingStats{TotalTrades: 2, WinningTrades: 1, LosingTrades: 1, TotalPnL: 160, TotalCharges: 10},
		Risk:    model.RiskSnapshot{Status: enum.RiskStatusWarning, CounterNumber: 1, CounterOrders: 2},
		Metrics: obs.Snapshot{
			Ticks:   42,
			Signals: map[enum.PatternKind]uint64{enum.PatternSetup1: 3},
			RiskRejects: map[enum.RejectReason]uint64{
				enum.RejectEmergencyStop: 1,
				enum.RejectDrawdown:      2,
			},
			TickLatency: obs.LatencySnapshot{Avg: time.Microsecond},
		},
	}

	out := renderStatus(s, []string{"EURUSD: fills 2"})
	assert.Contains(t, out, "10150.00")
	assert.Contains(t, out, "150.00")
	assert.Contains(t, out, "42 (0 dropped)")
	assert.Contains(t, out, "EURUSD: fills 2")
	assert.Contains(t, out, s.Risk.Status.String())
	assert.Equal(t, uint64(3), sumRejects(s.Metrics.RiskRejects))
}

func TestRenderTrades(t *testing.T) {
	assert.Contains(t, renderTrades(nil, 5), "no closed trades")

	trades := []model.TradeResult{
		{Symbol: "OLD", Pattern: enum.PatternSetup1, Side: enum.OrderSideBuy, Quantity: decimal.NewFromInt(1)},
		{Symbol: "NEW", Pattern: enum.PatternSetup2, Side: enum.OrderSideSell, Quantity: decimal.NewFromInt(1), PnL: -5},
	}
	out := renderTrades(trades, 1)
	assert.Contains(t, out, "NEW")
	assert.NotContains(t, out, "OLD")
}
