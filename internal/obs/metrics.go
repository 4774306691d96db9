package obs

import (
	"sync/atomic"
	"time"

	"renkotrader/internal/model/enum"
)

const (
	maxPattern      = int(enum.PatternSetup2)
	maxRejectReason = int(enum.RejectDrawdown)
	maxOrderStatus  = int(enum.OrderStatusExpired)
)

// Metrics collects lock-free counters and latency stats for the trading pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ticks         uint64
	tickDrops     uint64
	bricks        uint64
	eventDrops    uint64
	signals       [maxPattern + 1]uint64
	riskRejects   [maxRejectReason + 1]uint64
	orderStatuses [maxOrderStatus + 1]uint64

	tickLatency      LatencyStats
	executionLatency LatencyStats
	riskEvalLatency  LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Ticks            uint64
	TickDrops        uint64
	Bricks           uint64
	EventDrops       uint64
	Signals          map[enum.PatternKind]uint64
	RiskRejects      map[enum.RejectReason]uint64
	OrderStatuses    map[enum.OrderStatus]uint64
	TickLatency      LatencySnapshot
	ExecutionLatency LatencySnapshot
	RiskEvalLatency  LatencySnapshot
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveTick counts a processed tick and its feed-to-process latency.
func (m *Metrics) ObserveTick(tickTime, now time.Time) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ticks, 1)
	if !tickTime.IsZero() && now.After(tickTime) {
		m.tickLatency.Observe(now.Sub(tickTime))
	}
}

func (m *Metrics) IncTickDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.tickDrops, 1)
}

func (m *Metrics) AddBricks(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.bricks, uint64(n))
}

func (m *Metrics) IncEventDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.eventDrops, 1)
}

func (m *Metrics) IncSignal(kind enum.PatternKind) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.signals) {
		atomic.AddUint64(&m.signals[idx], 1)
	}
}

func (m *Metrics) IncRiskReject(reason enum.RejectReason) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.riskRejects) {
		atomic.AddUint64(&m.riskRejects[idx], 1)
	}
}

// IncOrderStatus counts an order reaching status.
func (m *Metrics) IncOrderStatus(status enum.OrderStatus) {
	if m == nil {
		return
	}
	idx := int(status)
	if idx >= 0 && idx < len(m.orderStatuses) {
		atomic.AddUint64(&m.orderStatuses[idx], 1)
	}
}

// ObserveExecution measures one venue placement call.
func (m *Metrics) ObserveExecution(d time.Duration) {
	if m == nil {
		return
	}
	m.executionLatency.Observe(d)
}

func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m == nil {
		return
	}
	m.riskEvalLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	signals := make(map[enum.PatternKind]uint64)
	for i := range m.signals {
		if v := atomic.LoadUint64(&m.signals[i]); v > 0 {
			signals[enum.PatternKind(i)] = v
		}
	}
	rejects := make(map[enum.RejectReason]uint64)
	for i := range m.riskRejects {
		if v := atomic.LoadUint64(&m.riskRejects[i]); v > 0 {
			rejects[enum.RejectReason(i)] = v
		}
	}
	statuses := make(map[enum.OrderStatus]uint64)
	for i := range m.orderStatuses {
		if v := atomic.LoadUint64(&m.orderStatuses[i]); v > 0 {
			statuses[enum.OrderStatus(i)] = v
		}
	}
	return Snapshot{
		Ticks:            atomic.LoadUint64(&m.ticks),
		TickDrops:        atomic.LoadUint64(&m.tickDrops),
		Bricks:           atomic.LoadUint64(&m.bricks),
		EventDrops:       atomic.LoadUint64(&m.eventDrops),
		Signals:          signals,
		RiskRejects:      rejects,
		OrderStatuses:    statuses,
		TickLatency:      m.tickLatency.Snapshot(),
		ExecutionLatency: m.executionLatency.Snapshot(),
		RiskEvalLatency:  m.riskEvalLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		cur := atomic.LoadUint64(&l.min)
		if cur != 0 && nanos >= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, cur, nanos) {
			break
		}
	}

	for {
		cur := atomic.LoadUint64(&l.max)
		if nanos <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, cur, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(atomic.LoadUint64(&l.sum) / count),
	}
}
