package risk

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"

	"renkotrader/internal/bus"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/internal/obs"
)

const (
	// maxEquityFraction caps a position at this share of equity.
	maxEquityFraction = 0.10
	// warningFraction of the drawdown limit raises WARNING.
	warningFraction = 0.8
	// liveModeWins is the advisory win streak for leaving paper mode.
	liveModeWins = 3

	dailyResetInterval = 24 * time.Hour
)

// Manager sizes and gates orders, tracks drawdown, loss streaks and counters.
// Hot-path flags are atomics so order checks never wait on slower updates.
type Manager struct {
	log    logs.Logger
	now    func() time.Time
	events *bus.Broadcaster[model.RiskEvent]

	params        atomic.Pointer[model.RiskParameters]
	paperMode     atomic.Bool
	emergencyStop atomic.Bool
	status        atomic.Int32

	mu                   sync.Mutex
	highWaterMark        float64
	currentDrawdown      float64
	maxDrawdown          float64
	dailyRiskUsed        float64
	dailyPnL             float64
	lastDailyReset       time.Time
	consecutiveLosses    int
	consecutiveWins      int
	maxConsecutiveLosses int
	totalTrades          int

	counterMu   sync.Mutex
	counter     model.TradingCounter
	counterOpen bool
	completed   []model.TradingCounter
}

// NewManager creates a risk manager. Zero fields in params take the defaults.
func NewManager(params model.RiskParameters, log logs.Logger) *Manager {
	m := &Manager{
		log:    obs.Component(log, "risk"),
		now:    time.Now,
		events: bus.NewBroadcaster[model.RiskEvent](),
	}
	p := withDefaults(params)
	m.params.Store(&p)
	m.paperMode.Store(p.PaperTradingMode)
	m.lastDailyReset = m.now()
	m.refreshStatus()
	return m
}

func withDefaults(p model.RiskParameters) model.RiskParameters {
	def := model.DefaultRiskParameters()
	if p.DailyRiskPercent <= 0 {
		p.DailyRiskPercent = def.DailyRiskPercent
	}
	if p.MaxDrawdownPercent <= 0 {
		p.MaxDrawdownPercent = def.MaxDrawdownPercent
	}
	if p.ConsecutiveLossLimit <= 0 {
		p.ConsecutiveLossLimit = def.ConsecutiveLossLimit
	}
	if p.CapitalUtilization <= 0 {
		p.CapitalUtilization = def.CapitalUtilization
	}
	if p.OrdersPerCounter <= 0 {
		p.OrdersPerCounter = def.OrdersPerCounter
	}
	if !p.MinLotSize.IsPositive() {
		p.MinLotSize = def.MinLotSize
	}
	return p
}

// Parameters returns the current immutable parameter snapshot.
func (m *Manager) Parameters() model.RiskParameters {
	return *m.params.Load()
}

// UpdateParameters swaps in a new snapshot. The paper flag in params only
// applies when it turns paper mode on.
func (m *Manager) UpdateParameters(params model.RiskParameters) {
	p := withDefaults(params)
	m.params.Store(&p)
	if p.PaperTradingMode && !m.paperMode.Load() {
		m.SwitchToPaperMode()
	}
	m.refreshStatus()
	m.log.Infof("risk parameters updated: daily %.4f, drawdown %.4f, loss limit %d, counter %d",
		p.DailyRiskPercent, p.MaxDrawdownPercent, p.ConsecutiveLossLimit, p.OrdersPerCounter)
}

// Events returns a channel of risk events: rejections, mode switches, limits, counters.
func (m *Manager) Events(buffer int) <-chan model.RiskEvent {
	return m.events.Subscribe(buffer)
}

// Close closes every events channel.
func (m *Manager) Close() {
	m.events.Close()
}

func (m *Manager) emit(kind enum.RiskEventKind, symbol, orderID, msg string) {
	m.mu.Lock()
	dd := m.currentDrawdown
	m.mu.Unlock()
	m.events.Publish(model.RiskEvent{
		Kind:      kind,
		Symbol:    symbol,
		OrderID:   orderID,
		Message:   msg,
		Drawdown:  dd,
		Timestamp: m.now(),
	})
}

// CalculatePositionSize risks equity*dailyRisk over the stop distance, clamped
// to [minLot, equity*0.10]. A zero stop distance yields zero.
func (m *Manager) CalculatePositionSize(signal model.TradingSignal, account model.AccountInfo, instrument model.InstrumentSpec) decimal.Decimal {
	p := m.Parameters()
	distance := signal.StopDistance()
	if !distance.IsPositive() {
		return decimal.Zero
	}
	tickValue := instrument.TickValue
	if !tickValue.IsPositive() {
		tickValue = decimal.NewFromInt(1)
	}

	riskAmount := decimal.NewFromFloat(account.Equity * p.DailyRiskPercent)
	size := riskAmount.Div(distance.Mul(tickValue))

	size = decimal.Max(size, p.MinLotSize)
	size = model.MinDecimal(size, decimal.NewFromFloat(account.Equity*maxEquityFraction))
	if !size.IsPositive() {
		return decimal.Zero
	}
	return size
}

// ValidatePositionSize checks size against [minLot, equity*0.10].
func (m *Manager) ValidatePositionSize(size decimal.Decimal, account model.AccountInfo) bool {
	p := m.Parameters()
	if size.LessThan(p.MinLotSize) {
		return false
	}
	return !size.GreaterThan(decimal.NewFromFloat(account.Equity * maxEquityFraction))
}

// ValidateOrder reports whether the order may be submitted.
func (m *Manager) ValidateOrder(order model.Order, account model.AccountInfo, positions []model.Position) bool {
	ok, _ := m.ValidateOrderReason(order, account, positions)
	return ok
}

// ValidateOrderReason is ValidateOrder with the rejection reason. The
// emergency stop is checked first and short-circuits the rest.
func (m *Manager) ValidateOrderReason(order model.Order, account model.AccountInfo, _ []model.Position) (bool, enum.RejectReason) {
	reason := m.rejectReason(account)
	if reason == enum.RejectNone {
		return true, reason
	}
	m.log.Warnf("order rejected for %s: %s", order.Symbol, reason)
	m.emit(enum.RiskEventOrderRejected, order.Symbol, order.ID, reason.String())
	return false, reason
}

func (m *Manager) rejectReason(account model.AccountInfo) enum.RejectReason {
	if m.emergencyStop.Load() {
		return enum.RejectEmergencyStop
	}
	p := m.Parameters()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dailyRiskUsed >= account.Equity*p.DailyRiskPercent {
		return enum.RejectDailyRisk
	}
	if m.currentDrawdown >= p.MaxDrawdownPercent {
		return enum.RejectDrawdown
	}
	return enum.RejectNone
}

// ReserveDailyRisk adds the amount at risk of a submitted order to today's usage.
func (m *Manager) ReserveDailyRisk(amount float64) {
	if amount <= 0 {
		return
	}
	m.mu.Lock()
	m.dailyRiskUsed += amount
	m.mu.Unlock()
}

// ReleaseDailyRisk returns a reservation whose risk was never taken or has
// been resolved. Usage never drops below zero.
func (m *Manager) ReleaseDailyRisk(amount float64) {
	if amount <= 0 {
		return
	}
	m.mu.Lock()
	m.dailyRiskUsed = max(m.dailyRiskUsed-amount, 0)
	m.mu.Unlock()
}

func (m *Manager) DailyRiskUsed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyRiskUsed
}

func (m *Manager) DailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyPnL
}

// DailyResetRequired reports whether a day has passed since the last reset.
func (m *Manager) DailyResetRequired(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Sub(m.lastDailyReset) >= dailyResetInterval
}

// PerformDailyReset clears daily risk usage and daily P&L.
func (m *Manager) PerformDailyReset(now time.Time) {
	m.mu.Lock()
	m.dailyRiskUsed = 0
	m.dailyPnL = 0
	m.lastDailyReset = now
	m.mu.Unlock()
	m.log.Info("daily reset performed")
	m.emit(enum.RiskEventDailyReset, "", "", "daily counters cleared")
}

// RecordTrade updates win/loss streaks. Reaching the loss limit switches to
// paper mode; wins never leave it.
func (m *Manager) RecordTrade(order model.Order, profitable bool) {
	limit := m.Parameters().ConsecutiveLossLimit

	m.mu.Lock()
	m.totalTrades++
	if profitable {
		m.consecutiveWins++
		m.consecutiveLosses = 0
	} else {
		m.consecutiveLosses++
		m.consecutiveWins = 0
		m.maxConsecutiveLosses = max(m.maxConsecutiveLosses, m.consecutiveLosses)
	}
	losses := m.consecutiveLosses
	m.mu.Unlock()

	if !profitable && losses >= limit && !m.paperMode.Load() {
		m.log.Warnf("%d consecutive losses after %s, switching to paper mode", losses, order.Symbol)
		m.SwitchToPaperMode()
	}
}

// RecordPnL adds realized P&L to today's total.
func (m *Manager) RecordPnL(pnl float64) {
	m.mu.Lock()
	m.dailyPnL += pnl
	m.mu.Unlock()
}

func (m *Manager) SwitchToPaperMode() {
	if m.paperMode.Swap(true) {
		return
	}
	m.refreshStatus()
	m.log.Info("switched to paper trading mode")
	m.emit(enum.RiskEventPaperMode, "", "", "paper trading mode enabled")
}

func (m *Manager) SwitchToLiveMode() {
	if !m.paperMode.Swap(false) {
		return
	}
	m.refreshStatus()
	m.log.Info("switched to live trading mode")
	m.emit(enum.RiskEventLiveMode, "", "", "live trading mode enabled")
}

func (m *Manager) IsPaperMode() bool {
	return m.paperMode.Load()
}

// ShouldSwitchToLiveMode is an advisory heuristic: three straight wins while in
// paper mode. Nothing acts on it automatically.
func (m *Manager) ShouldSwitchToLiveMode() bool {
	if !m.paperMode.Load() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveWins >= liveModeWins
}

func (m *Manager) EnableEmergencyStop() {
	if m.emergencyStop.Swap(true) {
		return
	}
	m.refreshStatus()
	m.log.Warn("emergency stop activated")
	m.emit(enum.RiskEventEmergencyStop, "", "", "emergency stop activated")
}

func (m *Manager) DisableEmergencyStop() {
	if !m.emergencyStop.Swap(false) {
		return
	}
	m.refreshStatus()
	m.log.Info("emergency stop deactivated")
	m.emit(enum.RiskEventEmergencyRelease, "", "", "emergency stop deactivated")
}

func (m *Manager) IsEmergencyStop() bool {
	return m.emergencyStop.Load()
}

func (m *Manager) Status() enum.RiskStatus {
	return enum.RiskStatus(m.status.Load())
}

func (m *Manager) ConsecutiveLosses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveLosses
}

func (m *Manager) ConsecutiveWins() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveWins
}

func (m *Manager) MaxConsecutiveLosses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxConsecutiveLosses
}

func (m *Manager) TotalTrades() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalTrades
}

// Snapshot is a read-only view for monitoring.
func (m *Manager) Snapshot() model.RiskSnapshot {
	m.mu.Lock()
	s := model.RiskSnapshot{
		CurrentDrawdown:      m.currentDrawdown,
		MaxDrawdown:          m.maxDrawdown,
		HighWaterMark:        m.highWaterMark,
		DailyRiskUsed:        m.dailyRiskUsed,
		ConsecutiveLosses:    m.consecutiveLosses,
		ConsecutiveWins:      m.consecutiveWins,
		MaxConsecutiveLosses: m.maxConsecutiveLosses,
		TotalTrades:          m.totalTrades,
	}
	m.mu.Unlock()

	m.counterMu.Lock()
	s.CounterNumber = m.counter.Number
	s.CounterOrders = len(m.counter.Orders)
	m.counterMu.Unlock()

	s.Status = m.Status()
	s.PaperMode = m.IsPaperMode()
	s.EmergencyStop = m.IsEmergencyStop()
	return s
}
