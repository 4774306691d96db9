package risk

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/decimal"

	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
)

func d(s string) decimal.Decimal {
	return decimal.Require(s)
}

func healthyAccount() model.AccountInfo {
	return model.AccountInfo{AccountID: "acc", Balance: 10000, Equity: 10000}
}

func testOrder(id string) model.Order {
	return model.Order{ID: id, Symbol: "EURUSD", Side: enum.OrderSideBuy, Price: d("1.1"), Quantity: d("1")}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(model.DefaultRiskParameters(), nil)
	t.Cleanup(m.Close)
	return m
}

func TestDefaults(t *testing.T) {
	m := NewManager(model.RiskParameters{}, nil)
	p := m.Parameters()
	assert.Equal(t, 0.01, p.DailyRiskPercent)
	assert.Equal(t, 0.05, p.MaxDrawdownPercent)
	assert.Equal(t, 2, p.ConsecutiveLossLimit)
	assert.Equal(t, 10, p.OrdersPerCounter)
	assert.True(t, p.MinLotSize.Equal(d("0.01")))
	assert.Equal(t, enum.RiskStatusNormal, m.Status())
	assert.False(t, m.IsPaperMode())

	paper := NewManager(model.RiskParameters{PaperTradingMode: true}, nil)
	assert.True(t, paper.IsPaperMode())
	assert.Equal(t, enum.RiskStatusPaperMode, paper.Status())
}

func TestCalculatePositionSize(t *testing.T) {
	m := newTestManager(t)
	unit := model.InstrumentSpec{Symbol: "EURUSD", TickValue: d("1")}

	testCases := []struct {
		desc   string
		entry  string
		stop   string
		equity float64
		spec   model.InstrumentSpec
		expect string
	}{
		{desc: "risk over distance", entry: "102", stop: "100", equity: 10000, spec: unit, expect: "50"},
		{desc: "clamped to min lot", entry: "200", stop: "100", equity: 10, spec: unit, expect: "0.01"},
		{desc: "clamped to ten percent of equity", entry: "1.1002", stop: "1.0978", equity: 10000, spec: model.InstrumentSpec{TickValue: d("0.0001")}, expect: "1000"},
		{desc: "zero distance", entry: "100", stop: "100", equity: 10000, spec: unit, expect: "0"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			signal := model.TradingSignal{Symbol: "EURUSD", Pattern: enum.PatternSetup1, Side: enum.OrderSideBuy, Entry: d(tc.entry), StopLoss: d(tc.stop)}
			size := m.CalculatePositionSize(signal, model.AccountInfo{Equity: tc.equity}, tc.spec)
			assert.True(t, size.Equal(d(tc.expect)), "got %s", size)
		})
	}
}

func TestValidatePositionSize(t *testing.T) {
	m := newTestManager(t)
	acc := healthyAccount()

	assert.False(t, m.ValidatePositionSize(d("0.001"), acc))
	assert.True(t, m.ValidatePositionSize(d("0.01"), acc))
	assert.True(t, m.ValidatePositionSize(d("1000"), acc))
	assert.False(t, m.ValidatePositionSize(d("1000.5"), acc))
}

func TestEmergencyStopOverridesEverything(t *testing.T) {
	m := newTestManager(t)
	acc := healthyAccount()
	m.CalculateDrawdown(acc.Equity)

	require.True(t, m.ValidateOrder(testOrder("a"), acc, nil))

	m.EnableEmergencyStop()
	m.EnableEmergencyStop()
	ok, reason := m.ValidateOrderReason(testOrder("a"), acc, nil)
	assert.False(t, ok)
	assert.Equal(t, enum.RejectEmergencyStop, reason)
	assert.Equal(t, enum.RiskStatusLimitReached, m.Status())
	assert.True(t, m.IsEmergencyStop())

	m.DisableEmergencyStop()
	assert.True(t, m.ValidateOrder(testOrder("a"), acc, nil))
	assert.Equal(t, enum.RiskStatusNormal, m.Status())
}

func TestValidateOrderDailyRisk(t *testing.T) {
	m := newTestManager(t)
	acc := healthyAccount()

	m.ReserveDailyRisk(60)
	assert.True(t, m.ValidateOrder(testOrder("a"), acc, nil))

	m.ReserveDailyRisk(40)
	ok, reason := m.ValidateOrderReason(testOrder("b"), acc, nil)
	assert.False(t, ok)
	assert.Equal(t, enum.RejectDailyRisk, reason)

	m.PerformDailyReset(time.Now())
	assert.Zero(t, m.DailyRiskUsed())
	assert.True(t, m.ValidateOrder(testOrder("c"), acc, nil))
}

func TestReleaseDailyRisk(t *testing.T) {
	m := newTestManager(t)
	acc := healthyAccount()

	m.ReserveDailyRisk(100)
	assert.False(t, m.ValidateOrder(testOrder("a"), acc, nil))

	m.ReleaseDailyRisk(100)
	assert.Zero(t, m.DailyRiskUsed())
	assert.True(t, m.ValidateOrder(testOrder("b"), acc, nil))

	m.ReserveDailyRisk(30)
	m.ReleaseDailyRisk(50)
	assert.Zero(t, m.DailyRiskUsed())
	m.ReleaseDailyRisk(-5)
	assert.Zero(t, m.DailyRiskUsed())
}

func TestValidateOrderDrawdown(t *testing.T) {
	m := newTestManager(t)

	m.CalculateDrawdown(10000)
	m.CalculateDrawdown(9400)
	ok, reason := m.ValidateOrderReason(testOrder("a"), model.AccountInfo{Equity: 9400}, nil)
	assert.False(t, ok)
	assert.Equal(t, enum.RejectDrawdown, reason)
}

func TestDrawdownSequence(t *testing.T) {
	m := newTestManager(t)

	for _, eq := range []float64{10000, 10500, 10100} {
		m.CalculateDrawdown(eq)
	}
	assert.InDelta(t, (10500.0-10100.0)/10500.0, m.MaxDrawdown(), 1e-12)
	assert.InDelta(t, 0.0381, m.MaxDrawdown(), 1e-4)
	assert.Equal(t, 10500.0, m.HighWaterMark())

	m.CalculateDrawdown(10400)
	assert.Equal(t, 10500.0, m.HighWaterMark())
	assert.InDelta(t, 100.0/10500.0, m.CurrentDrawdown(), 1e-12)
	assert.InDelta(t, 400.0/10500.0, m.MaxDrawdown(), 1e-12)

	m.CalculateDrawdown(11000)
	assert.Zero(t, m.CurrentDrawdown())
	assert.Equal(t, 11000.0, m.HighWaterMark())
	assert.InDelta(t, 400.0/10500.0, m.MaxDrawdown(), 1e-12)
}

func TestDrawdownWithoutHighWaterMark(t *testing.T) {
	m := newTestManager(t)
	assert.Zero(t, m.CalculateDrawdown(0))
	assert.Zero(t, m.MaxDrawdown())
}

func TestUpdateRiskStatus(t *testing.T) {
	m := newTestManager(t)
	events := m.Events(16)

	assert.Equal(t, enum.RiskStatusNormal, m.UpdateRiskStatus(model.AccountInfo{Equity: 10000}))
	assert.Equal(t, enum.RiskStatusWarning, m.UpdateRiskStatus(model.AccountInfo{Equity: 9590}))
	assert.Equal(t, enum.RiskStatusLimitReached, m.UpdateRiskStatus(model.AccountInfo{Equity: 9500}))
	assert.Equal(t, enum.RiskStatusNormal, m.UpdateRiskStatus(model.AccountInfo{Equity: 10100}))

	assert.Equal(t, enum.RiskEventDrawdownWarning, (<-events).Kind)
	assert.Equal(t, enum.RiskEventDrawdownLimit, (<-events).Kind)
}

func TestConsecutiveLossesSwitchToPaper(t *testing.T) {
	m := newTestManager(t)
	events := m.Events(16)

	m.RecordTrade(testOrder("1"), false)
	assert.False(t, m.IsPaperMode())
	m.RecordTrade(testOrder("2"), false)
	assert.True(t, m.IsPaperMode())
	assert.Equal(t, enum.RiskStatusPaperMode, m.Status())
	assert.Equal(t, 2, m.MaxConsecutiveLosses())

	m.RecordTrade(testOrder("3"), true)
	assert.Zero(t, m.ConsecutiveLosses())
	assert.Equal(t, 1, m.ConsecutiveWins())
	assert.True(t, m.IsPaperMode())
	assert.Equal(t, 3, m.TotalTrades())

	select {
	case e := <-events:
		assert.Equal(t, enum.RiskEventPaperMode, e.Kind)
	default:
		t.Fatal("expected paper mode event")
	}

	m.SwitchToLiveMode()
	assert.False(t, m.IsPaperMode())
	assert.Equal(t, enum.RiskStatusNormal, m.Status())
}

func TestShouldSwitchToLiveModeIsAdvisory(t *testing.T) {
	m := newTestManager(t)

	for i := 0; i < 3; i++ {
		m.RecordTrade(testOrder("w"), true)
	}
	assert.False(t, m.ShouldSwitchToLiveMode())

	m.SwitchToPaperMode()
	assert.True(t, m.ShouldSwitchToLiveMode())
	assert.True(t, m.IsPaperMode())
}

func TestLossLimitFromParameters(t *testing.T) {
	m := NewManager(model.RiskParameters{ConsecutiveLossLimit: 3}, nil)

	m.RecordTrade(testOrder("1"), false)
	m.RecordTrade(testOrder("2"), false)
	assert.False(t, m.IsPaperMode())
	m.RecordTrade(testOrder("3"), false)
	assert.True(t, m.IsPaperMode())
}

func TestCounterCompletesOnTenthOrder(t *testing.T) {
	m := newTestManager(t)

	_, err := m.AddOrderToCounter(testOrder("x"))
	require.Error(t, err)

	require.True(t, m.StartNewCounter(10000))
	assert.False(t, m.StartNewCounter(5000))

	for i := 1; i <= 9; i++ {
		done, err := m.AddOrderToCounter(testOrder(fmt.Sprint(i)))
		require.NoError(t, err)
		assert.False(t, done)
		assert.False(t, m.IsCounterComplete())
	}

	m.RecordCounterResult(250, 15)

	done, err := m.AddOrderToCounter(testOrder("10"))
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, m.IsCounterComplete())
	assert.False(t, m.HasOpenCounter())

	_, err = m.AddOrderToCounter(testOrder("11"))
	require.Error(t, err)

	history := m.CompletedCounters()
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].Number)
	assert.Len(t, history[0].Orders, 10)
	assert.Equal(t, 10235.0, history[0].CurrentCapital)
	assert.Equal(t, 10235.0, m.CapitalAfterCounter(10000))

	m.RecordCounterResult(-35, 0)
	assert.Equal(t, 215.0, m.CompletedCounters()[0].TotalPnL)

	require.True(t, m.StartNewCounter(m.CapitalAfterCounter(10000)))
	current := m.CurrentCounter()
	assert.Equal(t, 2, current.Number)
	assert.Equal(t, 10200.0, current.InitialCapital)
	assert.Empty(t, current.Orders)
}

func TestCompleteCounterEarly(t *testing.T) {
	m := newTestManager(t)
	assert.False(t, m.CompleteCounter())

	require.True(t, m.StartNewCounter(1000))
	_, err := m.AddOrderToCounter(testOrder("1"))
	require.NoError(t, err)
	assert.True(t, m.CompleteCounter())
	assert.Len(t, m.CompletedCounters(), 1)
}

func TestCounterCopiesAreDetached(t *testing.T) {
	m := newTestManager(t)
	require.True(t, m.StartNewCounter(1000))
	_, err := m.AddOrderToCounter(testOrder("1"))
	require.NoError(t, err)

	c := m.CurrentCounter()
	c.Orders[0].ID = "mutated"
	assert.Equal(t, "1", m.CurrentCounter().Orders[0].ID)
}

func TestDailyReset(t *testing.T) {
	m := newTestManager(t)
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	m.PerformDailyReset(start)

	m.ReserveDailyRisk(50)
	m.RecordPnL(-20)
	assert.False(t, m.DailyResetRequired(start.Add(23*time.Hour)))
	assert.True(t, m.DailyResetRequired(start.Add(24*time.Hour)))

	m.PerformDailyReset(start.Add(24 * time.Hour))
	assert.Zero(t, m.DailyRiskUsed())
	assert.Zero(t, m.DailyPnL())
}

func TestUpdateParametersConcurrently(t *testing.T) {
	m := newTestManager(t)
	acc := healthyAccount()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				m.ValidateOrder(testOrder("c"), acc, nil)
				p := m.Parameters()
				assert.Positive(t, p.OrdersPerCounter)
			}
		}()
	}
	for j := 0; j < 200; j++ {
		m.UpdateParameters(model.RiskParameters{DailyRiskPercent: 0.02, OrdersPerCounter: 5 + j%5})
	}
	wg.Wait()

	assert.Equal(t, 0.02, m.Parameters().DailyRiskPercent)
	assert.False(t, m.IsPaperMode())

	m.UpdateParameters(model.RiskParameters{PaperTradingMode: true})
	assert.True(t, m.IsPaperMode())
}

func TestSnapshot(t *testing.T) {
	m := newTestManager(t)
	m.CalculateDrawdown(1000)
	m.CalculateDrawdown(990)
	m.RecordTrade(testOrder("1"), false)
	require.True(t, m.StartNewCounter(1000))
	_, err := m.AddOrderToCounter(testOrder("1"))
	require.NoError(t, err)

	s := m.Snapshot()
	assert.Equal(t, enum.RiskStatusNormal, s.Status)
	assert.InDelta(t, 0.01, s.CurrentDrawdown, 1e-12)
	assert.Equal(t, 1000.0, s.HighWaterMark)
	assert.Equal(t, 1, s.ConsecutiveLosses)
	assert.Equal(t, 1, s.CounterNumber)
	assert.Equal(t, 1, s.CounterOrders)
}
