package obs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"renkotrader/internal/model/enum"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	now := time.Now()

	m.ObserveTick(now.Add(-2*time.Millisecond), now)
	m.ObserveTick(time.Time{}, now)
	m.IncTickDrop()
	m.AddBricks(3)
	m.AddBricks(-1)
	m.IncSignal(enum.PatternSetup1)
	m.IncSignal(enum.PatternSetup2)
	m.IncSignal(enum.PatternSetup2)
	m.IncRiskReject(enum.RejectDrawdown)
	m.IncOrderStatus(enum.OrderStatusFilled)
	m.IncEventDrop()

	s := m.Snapshot()
	assert.Equal(t, uint64(2), s.Ticks)
	assert.Equal(t, uint64(1), s.TickDrops)
	assert.Equal(t, uint64(3), s.Bricks)
	assert.Equal(t, uint64(1), s.EventDrops)
	assert.Equal(t, uint64(1), s.Signals[enum.PatternSetup1])
	assert.Equal(t, uint64(2), s.Signals[enum.PatternSetup2])
	assert.Equal(t, uint64(1), s.RiskRejects[enum.RejectDrawdown])
	assert.Equal(t, uint64(1), s.OrderStatuses[enum.OrderStatusFilled])
	assert.Equal(t, uint64(1), s.TickLatency.Count)
	assert.Equal(t, 2*time.Millisecond, s.TickLatency.Max)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTick(time.Now(), time.Now())
	m.IncSignal(enum.PatternSetup1)
	m.ObserveExecution(time.Second)
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestLatencyStatsConcurrent(t *testing.T) {
	var l LatencyStats
	var wg sync.WaitGroup
	for w := 1; w <= 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 1; i <= 100; i++ {
				l.Observe(time.Duration(w*i) * time.Microsecond)
			}
		}(w)
	}
	wg.Wait()

	s := l.Snapshot()
	assert.Equal(t, uint64(800), s.Count)
	assert.Equal(t, time.Microsecond, s.Min)
	assert.Equal(t, 800*time.Microsecond, s.Max)
	l.Observe(-time.Second)
	assert.Equal(t, uint64(800), l.Snapshot().Count)
}
