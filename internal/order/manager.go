package order

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"

	"renkotrader/internal/bus"
	"renkotrader/internal/errors"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/internal/obs"
	"renkotrader/pkg/exception"
)

const (
	DefaultQueueSize     = 1024
	DefaultSweepInterval = time.Second
	DefaultHistoryLimit  = 10_000
	DefaultMaxSlippage   = 0.01
)

var defaultTickSize = decimal.Require("0.0001")

// Executor places orders on one venue. Calls may block on I/O and are never
// made while the manager lock is held.
type Executor interface {
	Venue() enum.Venue
	PlaceOrder(ctx context.Context, order model.Order) (model.ExecutionReport, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
}

// Validator is an external pre-submission check. Returning false rejects the
// order without side effects.
type Validator func(order model.Order) bool

type Config struct {
	QueueSize     int
	SweepInterval time.Duration
	// OrderTTL expires PENDING orders older than it. Zero disables it.
	OrderTTL      time.Duration
	HistoryLimit  int
	MaxSlippage   float64
	SmartRouting  bool
	DefaultVenue  enum.Venue
	RejectPenalty float64
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.MaxSlippage <= 0 {
		c.MaxSlippage = DefaultMaxSlippage
	}
	if !c.DefaultVenue.IsAvailable() {
		c.DefaultVenue = enum.VenuePaper
	}
	return c
}

// Manager owns every order after submission. Intake goes through a bounded
// FIFO drained by one worker; a second worker sweeps expired orders.
type Manager struct {
	log     logs.Logger
	now     func() time.Time
	metrics *obs.Metrics
	events  *bus.Broadcaster[Event]
	router  *Router

	cfg     Config
	queue   chan string
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	pubMu       sync.Mutex
	mu          sync.Mutex
	validator   Validator
	active      map[string]*model.Order
	history     map[string]*model.Order
	historyIDs  []string
	armed       map[string]*trigger
	hybrids     map[string]*hybrid
	stats       map[string]*ExecutionStats
	venues      map[enum.Venue]Executor
	symbolVenue map[string]enum.Venue
	tickSizes   map[string]decimal.Decimal
	lastPrices  map[string]decimal.Decimal
}

func NewManager(cfg Config, log logs.Logger, metrics *obs.Metrics) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		log:         obs.Component(log, "order"),
		now:         time.Now,
		metrics:     metrics,
		events:      bus.NewBroadcaster[Event](),
		router:      NewRouter(cfg.RejectPenalty),
		cfg:         cfg,
		queue:       make(chan string, cfg.QueueSize),
		active:      make(map[string]*model.Order),
		history:     make(map[string]*model.Order),
		armed:       make(map[string]*trigger),
		hybrids:     make(map[string]*hybrid),
		stats:       make(map[string]*ExecutionStats),
		venues:      make(map[enum.Venue]Executor),
		symbolVenue: make(map[string]enum.Venue),
		tickSizes:   make(map[string]decimal.Decimal),
		lastPrices:  make(map[string]decimal.Decimal),
	}
}

// RegisterVenue makes an executor available for routing.
func (m *Manager) RegisterVenue(exec Executor) {
	if exec == nil {
		return
	}
	m.mu.Lock()
	m.venues[exec.Venue()] = exec
	m.mu.Unlock()
}

// MapSymbol sets the primary venue of a symbol.
func (m *Manager) MapSymbol(symbol string, venue enum.Venue) {
	m.mu.Lock()
	m.symbolVenue[symbol] = venue
	m.mu.Unlock()
}

// SetTickSize sets the price increment used for stop buffers.
func (m *Manager) SetTickSize(symbol string, size decimal.Decimal) {
	if !size.IsPositive() {
		return
	}
	m.mu.Lock()
	m.tickSizes[symbol] = size
	m.mu.Unlock()
}

// SetValidator installs the risk check run on every submission. Nil disables it.
func (m *Manager) SetValidator(v Validator) {
	m.mu.Lock()
	m.validator = v
	m.mu.Unlock()
}

func (m *Manager) SetSmartRouting(enable bool) {
	m.mu.Lock()
	m.cfg.SmartRouting = enable
	m.mu.Unlock()
}

// Router exposes venue scoring so feeds can report quotes.
func (m *Manager) Router() *Router {
	return m.router
}

// ObserveQuote feeds a venue quote into smart routing.
func (m *Manager) ObserveQuote(venue enum.Venue, tick model.Tick) {
	mid := tick.Bid.Add(tick.Ask).Div(decimal.NewFromInt(2))
	if !mid.IsPositive() {
		return
	}
	m.router.ObserveSpread(tick.Symbol, venue, model.Float(tick.Spread().Div(mid)))
}

func validate(o model.Order) error {
	switch {
	case o.Symbol == "":
		return errors.Wrap(exception.ErrOrderInvalid, "empty symbol")
	case !o.Side.IsAvailable():
		return errors.Wrap(exception.ErrOrderInvalid, "unknown side")
	case !o.Quantity.IsPositive():
		return errors.Wrap(exception.ErrOrderInvalid, "quantity must be positive")
	case !o.Price.IsPositive():
		return errors.Wrap(exception.ErrOrderInvalid, "price must be positive")
	}
	return nil
}

// admit runs the static and risk checks. It never touches manager state.
func (m *Manager) admit(o model.Order) error {
	if err := validate(o); err != nil {
		return err
	}
	m.mu.Lock()
	v := m.validator
	m.mu.Unlock()
	if v != nil && !v(o) {
		return exception.ErrOrderRiskRejected
	}
	return nil
}

func (m *Manager) prepare(o model.Order) *model.Order {
	now := m.now()
	o.ID = uuid.NewString()
	o.Status = enum.OrderStatusPending
	o.FilledQuantity = decimal.Zero
	o.AvgFillPrice = decimal.Zero
	o.ExchangeOrderID = ""
	o.RejectReason = ""
	o.CreatedAt = now
	o.UpdatedAt = now
	if !o.Type.IsAvailable() {
		o.Type = enum.OrderTypeLimit
	}
	return &o
}

// SubmitOrder validates the order, assigns it an id and queues it. On failure
// the id is empty and nothing is recorded.
func (m *Manager) SubmitOrder(order model.Order) (string, error) {
	if err := m.admit(order); err != nil {
		return "", err
	}
	o := m.prepare(order)

	m.mu.Lock()
	if err := m.enqueueLocked(o); err != nil {
		m.mu.Unlock()
		m.log.Warnf("order queue full, drop %s %s", o.Symbol, o.Side)
		return "", err
	}
	m.unlockAndPublish([]Event{updateEvent(o)})
	return o.ID, nil
}

// enqueueLocked inserts o into the active set and the work queue together.
func (m *Manager) enqueueLocked(o *model.Order) error {
	m.active[o.ID] = o
	select {
	case m.queue <- o.ID:
		m.metrics.IncOrderStatus(enum.OrderStatusPending)
		return nil
	default:
		delete(m.active, o.ID)
		return exception.ErrOrderQueueFull
	}
}

// CancelOrder cancels a non-terminal order. A venue-side cancel is attempted
// after the state change and its failure is only logged.
func (m *Manager) CancelOrder(ctx context.Context, id string) bool {
	m.mu.Lock()
	o, ok := m.active[id]
	if !ok || o.Status.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	exec := m.venues[o.Venue]
	exchangeID := o.ExchangeOrderID
	symbol := o.Symbol
	m.unlockAndPublish(m.finishLocked(o, enum.OrderStatusCancelled, ""))
	m.log.Infof("order %s cancelled", id)

	if exec != nil && exchangeID != "" {
		if err := exec.CancelOrder(ctx, symbol, exchangeID); err != nil {
			m.log.Errorf("venue cancel %s (%s), err: %+v", id, exchangeID, err)
		}
	}
	return true
}

// ModifyOrder replaces price and quantity of a PENDING order. Stop loss and
// take profit are replaced when set on update.
func (m *Manager) ModifyOrder(id string, update model.Order) bool {
	if !update.Price.IsPositive() || !update.Quantity.IsPositive() {
		return false
	}
	m.mu.Lock()
	o, ok := m.active[id]
	if !ok || o.Status != enum.OrderStatusPending {
		m.mu.Unlock()
		return false
	}
	o.Price = update.Price
	o.Quantity = update.Quantity
	if update.StopLoss.IsPositive() {
		o.StopLoss = update.StopLoss
	}
	if update.TakeProfit.IsPositive() {
		o.TakeProfit = update.TakeProfit
	}
	o.UpdatedAt = m.now()
	m.unlockAndPublish([]Event{updateEvent(o)})
	return true
}

// OnFillUpdate accumulates a fill. It returns false for unknown or terminal
// orders and non-positive fills.
func (m *Manager) OnFillUpdate(id string, qty, price decimal.Decimal) bool {
	if !qty.IsPositive() || !price.IsPositive() {
		return false
	}
	m.mu.Lock()
	o, ok := m.active[id]
	if !ok || o.Status.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	if _, pending := m.armed[id]; pending {
		m.mu.Unlock()
		return false
	}

	prev := o.FilledQuantity
	o.FilledQuantity = prev.Add(qty)
	o.AvgFillPrice = o.AvgFillPrice.Mul(prev).Add(price.Mul(qty)).Div(o.FilledQuantity)
	o.UpdatedAt = m.now()

	slippage := model.Float(price.Sub(o.Price).Abs().Div(o.Price))
	stats := m.statsLocked(o.Symbol)
	stats.recordSlippage(slippage)
	complete := o.FilledQuantity.GreaterThanOrEqual(o.Quantity)
	m.router.observeFill(o.Symbol, o.Venue, slippage, complete)

	events := []Event{{Kind: EventFill, Order: *o, FillQty: qty, FillPrice: price}}
	if complete {
		stats.FilledOrders++
		events = append(events, m.finishLocked(o, enum.OrderStatusFilled, "")...)
	} else {
		o.Status = enum.OrderStatusPartiallyFilled
		events[0].Order.Status = o.Status
		m.metrics.IncOrderStatus(o.Status)
	}
	maxSlippage := m.cfg.MaxSlippage
	m.unlockAndPublish(events)

	if slippage > maxSlippage {
		m.log.Warnf("order %s slippage %.6f above %.6f", id, slippage, maxSlippage)
	}
	return true
}

// OnOrderRejected moves an order to REJECTED and publishes a rejection event.
func (m *Manager) OnOrderRejected(id, reason string) bool {
	m.mu.Lock()
	o, ok := m.active[id]
	if !ok || o.Status.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	m.statsLocked(o.Symbol).RejectedOrders++
	m.unlockAndPublish(m.finishLocked(o, enum.OrderStatusRejected, reason))
	m.log.Warnf("order %s rejected: %s", id, reason)
	return true
}

// finishLocked applies a terminal status, archives the order and advances a
// hybrid parent. It returns the events to publish once unlocked.
func (m *Manager) finishLocked(o *model.Order, status enum.OrderStatus, reason string) []Event {
	o.Status = status
	o.UpdatedAt = m.now()
	if reason != "" {
		o.RejectReason = reason
	}
	delete(m.armed, o.ID)
	m.archiveLocked(o)

	var events []Event
	if status == enum.OrderStatusRejected {
		events = append(events, Event{Kind: EventRejected, Order: *o, Reason: reason})
	} else {
		events = append(events, updateEvent(o))
	}
	if o.ParentID != "" {
		events = append(events, m.advanceHybridLocked(o)...)
	}
	return events
}

func (m *Manager) archiveLocked(o *model.Order) {
	delete(m.active, o.ID)
	m.history[o.ID] = o
	m.historyIDs = append(m.historyIDs, o.ID)
	m.metrics.IncOrderStatus(o.Status)
	if over := len(m.historyIDs) - m.cfg.HistoryLimit; over > 0 {
		for _, id := range m.historyIDs[:over] {
			delete(m.history, id)
		}
		m.historyIDs = append(m.historyIDs[:0], m.historyIDs[over:]...)
	}
}

// Order looks an order up in the active set, then history.
func (m *Manager) Order(id string) (model.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.active[id]; ok {
		return *o, true
	}
	if o, ok := m.history[id]; ok {
		return *o, true
	}
	return model.Order{}, false
}

// ActiveOrders returns copies ordered by creation time.
func (m *Manager) ActiveOrders() []model.Order {
	m.mu.Lock()
	out := make([]model.Order, 0, len(m.active))
	for _, o := range m.active {
		out = append(out, *o)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// OrderHistory returns terminal orders in archive order. An empty symbol
// returns every symbol.
func (m *Manager) OrderHistory(symbol string) []model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Order, 0, len(m.historyIDs))
	for _, id := range m.historyIDs {
		o := m.history[id]
		if symbol == "" || o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	return out
}

func (m *Manager) ActiveOrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// QueueLen is the number of orders waiting for the processing worker.
func (m *Manager) QueueLen() int {
	return len(m.queue)
}
