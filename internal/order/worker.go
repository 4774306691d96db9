package order

import (
	"context"
	"time"

	"github.com/yanun0323/decimal"

	"renkotrader/internal/errors"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/pkg/exception"
)

// Run starts the processing and expiry workers. It returns immediately and
// does nothing if the manager is already running.
func (m *Manager) Run(ctx context.Context) {
	if m.running.Swap(true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(2)
	go m.processWorker(ctx)
	go m.sweepWorker(ctx)
	m.log.Info("order workers started")
}

// Stop signals the workers and waits for them. Orders still queued stay
// PENDING; callers needing completion must poll order status first.
func (m *Manager) Stop() {
	if !m.running.Swap(false) {
		return
	}
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.log.Infof("order workers stopped, %d orders left queued", len(m.queue))
}

// Close stops the workers and closes every event subscription.
func (m *Manager) Close() {
	m.Stop()
	m.events.Close()
}

func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

func (m *Manager) processWorker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.queue:
			if !m.running.Load() {
				return
			}
			m.process(ctx, id)
		}
	}
}

func (m *Manager) sweepWorker(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.SweepExpired(m.now()); n > 0 {
				m.log.Infof("expired %d orders", n)
			}
		}
	}
}

// process routes one queued order and places it on its venue. The lock is
// released for the venue call.
func (m *Manager) process(ctx context.Context, id string) {
	m.mu.Lock()
	o, ok := m.active[id]
	if !ok || o.Status != enum.OrderStatusPending {
		m.mu.Unlock()
		return
	}
	if _, pending := m.armed[id]; pending {
		m.mu.Unlock()
		return
	}
	exec, err := m.routeLocked(o)
	if err != nil {
		m.statsLocked(o.Symbol).RejectedOrders++
		m.unlockAndPublish(m.finishLocked(o, enum.OrderStatusRejected, err.Error()))
		m.log.Errorf("route order %s, err: %+v", id, err)
		return
	}
	o.Status = enum.OrderStatusSubmitted
	o.UpdatedAt = m.now()
	m.statsLocked(o.Symbol).TotalOrders++
	m.metrics.IncOrderStatus(o.Status)
	snapshot := *o
	m.unlockAndPublish([]Event{updateEvent(o)})

	m.router.observeSent(snapshot.Symbol, snapshot.Venue)

	start := time.Now()
	report, err := exec.PlaceOrder(ctx, snapshot)
	m.metrics.ObserveExecution(time.Since(start))
	if err != nil {
		m.OnOrderRejected(id, err.Error())
		return
	}
	m.applyReport(ctx, exec, id, report)
}

// applyReport folds a venue answer into the order. An order cancelled while
// the venue call was in flight keeps the venue id and is cancelled there.
func (m *Manager) applyReport(ctx context.Context, exec Executor, id string, report model.ExecutionReport) {
	m.mu.Lock()
	o, ok := m.active[id]
	if !ok {
		m.cancelOrphanLocked(ctx, exec, id, report)
		return
	}
	if report.ExchangeOrderID != "" {
		o.ExchangeOrderID = report.ExchangeOrderID
	}
	m.mu.Unlock()

	if report.FilledQuantity.IsPositive() {
		price := report.AvgPrice
		if !price.IsPositive() {
			price = m.orderPrice(id)
		}
		m.OnFillUpdate(id, report.FilledQuantity, price)
	}

	switch report.Status {
	case enum.OrderStatusRejected:
		m.OnOrderRejected(id, exception.ErrVenueRejected.Error())
	case enum.OrderStatusCancelled, enum.OrderStatusExpired:
		m.finish(id, report.Status)
	}
}

// cancelOrphanLocked releases the lock.
func (m *Manager) cancelOrphanLocked(ctx context.Context, exec Executor, id string, report model.ExecutionReport) {
	o, ok := m.history[id]
	if !ok || o.Status != enum.OrderStatusCancelled || report.ExchangeOrderID == "" || report.Status.IsTerminal() {
		m.mu.Unlock()
		return
	}
	o.ExchangeOrderID = report.ExchangeOrderID
	symbol := o.Symbol
	m.mu.Unlock()

	m.log.Warnf("order %s was cancelled during placement, cancelling %s at %s", id, report.ExchangeOrderID, exec.Venue())
	if err := exec.CancelOrder(ctx, symbol, report.ExchangeOrderID); err != nil {
		m.log.Errorf("venue cancel %s (%s), err: %+v", id, report.ExchangeOrderID, err)
	}
}

func (m *Manager) orderPrice(id string) decimal.Decimal {
	o, _ := m.Order(id)
	return o.Price
}

func (m *Manager) finish(id string, status enum.OrderStatus) bool {
	m.mu.Lock()
	o, ok := m.active[id]
	if !ok || o.Status.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	m.unlockAndPublish(m.finishLocked(o, status, ""))
	return true
}

func (m *Manager) routeLocked(o *model.Order) (Executor, error) {
	venue := m.selectVenueLocked(o)
	exec, ok := m.venues[venue]
	if !ok {
		return nil, errors.Wrapf(exception.ErrOrderNoVenue, "%s on %s", o.Symbol, venue)
	}
	o.Venue = venue
	return exec, nil
}

// selectVenueLocked prefers paper for paper orders, then an explicit venue,
// then the router, then the symbol mapping and finally the default venue.
func (m *Manager) selectVenueLocked(o *model.Order) enum.Venue {
	if o.Paper {
		return enum.VenuePaper
	}
	if o.Venue.IsAvailable() {
		return o.Venue
	}
	if m.cfg.SmartRouting {
		candidates := make([]enum.Venue, 0, len(m.venues))
		for _, v := range enum.Venues() {
			if _, ok := m.venues[v]; ok && v != enum.VenuePaper {
				candidates = append(candidates, v)
			}
		}
		if v, ok := m.router.Best(o.Symbol, candidates); ok {
			return v
		}
	}
	if v, ok := m.symbolVenue[o.Symbol]; ok {
		return v
	}
	return m.cfg.DefaultVenue
}

// SweepExpired expires active orders past ExpireAt and PENDING orders older
// than the configured TTL.
func (m *Manager) SweepExpired(now time.Time) int {
	m.mu.Lock()
	var events []Event
	n := 0
	for _, o := range m.active {
		expired := !o.ExpireAt.IsZero() && now.After(o.ExpireAt)
		if !expired && m.cfg.OrderTTL > 0 && o.Status == enum.OrderStatusPending {
			expired = now.Sub(o.CreatedAt) > m.cfg.OrderTTL
		}
		if expired {
			events = append(events, m.finishLocked(o, enum.OrderStatusExpired, "")...)
			n++
		}
	}
	m.unlockAndPublish(events)
	return n
}
