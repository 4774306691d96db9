package order

import (
	"context"

	"github.com/google/uuid"
	"github.com/yanun0323/decimal"

	"renkotrader/internal/errors"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/pkg/exception"
)

var hundred = decimal.NewFromInt(100)

// trigger holds an armed stop until the market crosses it.
type trigger struct {
	side    enum.OrderSide
	price   decimal.Decimal
	trail   decimal.Decimal
	percent bool
	// extreme is the best price seen since arming, used by trailing stops.
	extreme decimal.Decimal
}

func (t *trigger) trailing() bool {
	return t.trail.IsPositive()
}

func (t *trigger) distance(ref decimal.Decimal) decimal.Decimal {
	if t.percent {
		return ref.Mul(t.trail).Div(hundred)
	}
	return t.trail
}

// follow tightens a trailing stop toward price. It never loosens it.
func (t *trigger) follow(price decimal.Decimal) bool {
	if !t.trailing() {
		return false
	}
	if t.side == enum.OrderSideSell {
		if !price.GreaterThan(t.extreme) {
			return false
		}
		t.extreme = price
		if next := price.Sub(t.distance(price)); next.GreaterThan(t.price) {
			t.price = next
			return true
		}
		return false
	}
	if !price.LessThan(t.extreme) {
		return false
	}
	t.extreme = price
	if next := price.Add(t.distance(price)); next.LessThan(t.price) {
		t.price = next
		return true
	}
	return false
}

// crossed reports whether price reaches the trigger: buy stops fire at or
// above it, sell stops at or below it.
func (t *trigger) crossed(price decimal.Decimal) bool {
	if t.side == enum.OrderSideSell {
		return price.LessThanOrEqual(t.price)
	}
	return price.GreaterThanOrEqual(t.price)
}

func (m *Manager) tickSizeLocked(symbol string) decimal.Decimal {
	if ts, ok := m.tickSizes[symbol]; ok {
		return ts
	}
	return defaultTickSize
}

// SubmitStopOrder arms a stop at triggerPrice moved tickBuffer ticks away from
// the market (up for buys, down for sells). It is queued for execution once
// OnMarketPrice crosses the buffered trigger.
func (m *Manager) SubmitStopOrder(order model.Order, triggerPrice decimal.Decimal, tickBuffer int) (string, error) {
	if !triggerPrice.IsPositive() {
		return "", errors.Wrap(exception.ErrOrderInvalid, "trigger price must be positive")
	}
	if tickBuffer < 0 {
		tickBuffer = 0
	}
	if err := m.admit(order); err != nil {
		return "", err
	}
	o := m.prepare(order)
	if !o.Type.IsStop() {
		o.Type = enum.OrderTypeStop
	}
	o.TickOffset = tickBuffer

	m.mu.Lock()
	buffer := m.tickSizeLocked(o.Symbol).Mul(decimal.NewFromInt(int64(tickBuffer)))
	o.TriggerPrice = triggerPrice.Add(buffer.Mul(decimal.NewFromInt(o.Side.Sign())))
	t := &trigger{side: o.Side, price: o.TriggerPrice}
	events, err := m.armLocked(o, t)
	m.unlockAndPublish(events)
	if err != nil {
		return "", err
	}

	m.log.Infof("stop %s %s %s armed at %s", o.ID, o.Symbol, o.Side, t.price)
	return o.ID, nil
}

// SubmitTrailingStop arms a stop trail away from the current market price.
// With percent set, trail is in percent points of the price. The stop only
// tightens as the market moves in favour of the protected position.
func (m *Manager) SubmitTrailingStop(order model.Order, trail decimal.Decimal, percent bool) (string, error) {
	if !trail.IsPositive() || (percent && trail.GreaterThanOrEqual(hundred)) {
		return "", exception.ErrOrderInvalidTrailing
	}
	if err := m.admit(order); err != nil {
		return "", err
	}
	o := m.prepare(order)
	o.Type = enum.OrderTypeTrailingStop

	m.mu.Lock()
	ref, ok := m.lastPrices[o.Symbol]
	if !ok {
		ref = o.Price
	}
	t := &trigger{side: o.Side, trail: trail, percent: percent, extreme: ref}
	if o.Side == enum.OrderSideSell {
		t.price = ref.Sub(t.distance(ref))
	} else {
		t.price = ref.Add(t.distance(ref))
	}
	o.TriggerPrice = t.price
	armedAt := t.price
	events, err := m.armLocked(o, t)
	m.unlockAndPublish(events)
	if err != nil {
		return "", err
	}

	m.log.Infof("trailing stop %s %s %s armed at %s", o.ID, o.Symbol, o.Side, armedAt)
	return o.ID, nil
}

func (m *Manager) armLocked(o *model.Order, t *trigger) ([]Event, error) {
	if !t.price.IsPositive() {
		return nil, errors.Wrap(exception.ErrOrderInvalid, "trigger below zero")
	}
	m.active[o.ID] = o
	m.armed[o.ID] = t
	m.metrics.IncOrderStatus(enum.OrderStatusPending)
	return []Event{updateEvent(o)}, nil
}

// OnMarketPrice tightens trailing stops of symbol and queues every armed
// order whose trigger price was crossed. It returns how many were queued.
func (m *Manager) OnMarketPrice(symbol string, price decimal.Decimal) int {
	if !price.IsPositive() {
		return 0
	}
	m.mu.Lock()
	m.lastPrices[symbol] = price
	fired := 0
	for id, t := range m.armed {
		o, ok := m.active[id]
		if !ok || o.Symbol != symbol {
			continue
		}
		if t.follow(price) {
			o.TriggerPrice = t.price
			o.UpdatedAt = m.now()
		}
		if !t.crossed(price) {
			continue
		}
		if t.trailing() {
			o.Price = t.price
		}
		select {
		case m.queue <- id:
			delete(m.armed, id)
			fired++
		default:
			m.log.Warnf("order queue full, stop %s stays armed", id)
		}
	}
	m.mu.Unlock()
	return fired
}

// LastPrice is the latest market price seen for symbol.
func (m *Manager) LastPrice(symbol string) (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.lastPrices[symbol]
	return p, ok
}

// IsArmed reports whether id is a stop still waiting for its trigger.
func (m *Manager) IsArmed(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.armed[id]
	return ok
}

type hybrid struct {
	id       string
	parent   model.Order
	visible  decimal.Decimal
	peg      decimal.Decimal
	filled   decimal.Decimal
	children []string
	status   enum.OrderStatus
}

// HybridOrder reports the progress of an iceberg order split into slices.
type HybridOrder struct {
	ID        string
	Symbol    string
	Side      enum.OrderSide
	Total     decimal.Decimal
	Visible   decimal.Decimal
	PegOffset decimal.Decimal
	Filled    decimal.Decimal
	Children  []string
	Status    enum.OrderStatus
}

// SubmitHybridOrder splits order into slices of at most visibleQty, each
// priced pegOffset behind the market and capped at the order price. The next
// slice is submitted only after the previous one fills; any other terminal
// slice ends the hybrid with that status.
func (m *Manager) SubmitHybridOrder(order model.Order, visibleQty, pegOffset decimal.Decimal) (string, error) {
	if err := m.admit(order); err != nil {
		return "", err
	}
	if !visibleQty.IsPositive() || visibleQty.GreaterThan(order.Quantity) || pegOffset.Sign() < 0 {
		return "", exception.ErrOrderInvalidSlice
	}
	h := &hybrid{
		id:      uuid.NewString(),
		parent:  order,
		visible: visibleQty,
		peg:     pegOffset,
		filled:  decimal.Zero,
		status:  enum.OrderStatusPending,
	}
	h.parent.Type = enum.OrderTypeHybrid

	m.mu.Lock()
	child, err := m.nextSliceLocked(h)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	m.hybrids[h.id] = h
	m.unlockAndPublish([]Event{updateEvent(child)})

	m.log.Infof("hybrid %s %s %s total %s visible %s", h.id, order.Symbol, order.Side, order.Quantity, visibleQty)
	return h.id, nil
}

func (m *Manager) slicePriceLocked(h *hybrid) decimal.Decimal {
	limit := h.parent.Price
	ref, ok := m.lastPrices[h.parent.Symbol]
	if !ok {
		return limit
	}
	var price decimal.Decimal
	if h.parent.Side == enum.OrderSideSell {
		price = decimal.Max(ref.Add(h.peg), limit)
	} else {
		price = model.MinDecimal(ref.Sub(h.peg), limit)
	}
	if !price.IsPositive() {
		return limit
	}
	return price
}

func (m *Manager) nextSliceLocked(h *hybrid) (*model.Order, error) {
	qty := model.MinDecimal(h.visible, h.parent.Quantity.Sub(h.filled))
	slice := h.parent
	slice.Type = enum.OrderTypeLimit
	slice.ParentID = h.id
	slice.Quantity = qty
	slice.VisibleQuantity = qty
	slice.Price = m.slicePriceLocked(h)
	o := m.prepare(slice)
	if err := m.enqueueLocked(o); err != nil {
		return nil, err
	}
	h.children = append(h.children, o.ID)
	h.status = enum.OrderStatusSubmitted
	return o, nil
}

// advanceHybridLocked reacts to a terminal child slice.
func (m *Manager) advanceHybridLocked(child *model.Order) []Event {
	h, ok := m.hybrids[child.ParentID]
	if !ok || h.status.IsTerminal() {
		return nil
	}
	h.filled = h.filled.Add(child.FilledQuantity)
	if child.Status != enum.OrderStatusFilled {
		h.status = child.Status
		m.log.Warnf("hybrid %s stopped: slice %s %s", h.id, child.ID, child.Status)
		return nil
	}
	if h.filled.GreaterThanOrEqual(h.parent.Quantity) {
		h.status = enum.OrderStatusFilled
		m.log.Infof("hybrid %s filled in %d slices", h.id, len(h.children))
		return nil
	}
	h.status = enum.OrderStatusPartiallyFilled
	next, err := m.nextSliceLocked(h)
	if err != nil {
		h.status = enum.OrderStatusRejected
		m.log.Errorf("hybrid %s next slice, err: %+v", h.id, err)
		return nil
	}
	return []Event{updateEvent(next)}
}

// Hybrid returns the progress of a hybrid order.
func (m *Manager) Hybrid(parentID string) (HybridOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hybrids[parentID]
	if !ok {
		return HybridOrder{}, false
	}
	return HybridOrder{
		ID:        h.id,
		Symbol:    h.parent.Symbol,
		Side:      h.parent.Side,
		Total:     h.parent.Quantity,
		Visible:   h.visible,
		PegOffset: h.peg,
		Filled:    h.filled,
		Children:  append([]string(nil), h.children...),
		Status:    h.status,
	}, true
}

// CancelHybrid stops further slices and cancels the working one.
func (m *Manager) CancelHybrid(ctx context.Context, parentID string) bool {
	m.mu.Lock()
	h, ok := m.hybrids[parentID]
	if !ok || h.status.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	h.status = enum.OrderStatusCancelled
	var working string
	for _, id := range h.children {
		if _, ok := m.active[id]; ok {
			working = id
		}
	}
	m.mu.Unlock()

	if working != "" {
		m.CancelOrder(ctx, working)
	}
	return true
}
