package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"

	"renkotrader/internal/brick"
	"renkotrader/internal/bus"
	"renkotrader/internal/errors"
	"renkotrader/internal/model"
	"renkotrader/internal/obs"
	"renkotrader/internal/order"
	"renkotrader/internal/pattern"
	"renkotrader/internal/risk"
	"renkotrader/pkg/exception"
)

const (
	DefaultTickQueueSize = 4096
	DefaultEventBuffer   = 1024
	DefaultInitialEquity = 10_000
	tradeHistoryLimit    = 1000
)

// Sink persists records emitted by the orchestrator. Implementations must not
// block; a failed record is logged and dropped.
type Sink interface {
	RecordOrder(o model.Order) error
	RecordTrade(t model.TradeResult) error
	RecordRiskEvent(e model.RiskEvent) error
	RecordCounter(c model.TradingCounter) error
}

type Config struct {
	Symbols       []model.SymbolConfig
	TickQueueSize int
	EventBuffer   int
	InitialEquity float64
	Currency      string
	// PointValue is the account value of a one unit price move for one lot.
	PointValue float64
	// ChargeRate is charged on entry plus exit notional.
	ChargeRate float64
}

func (c Config) withDefaults() Config {
	if c.TickQueueSize <= 0 {
		c.TickQueueSize = DefaultTickQueueSize
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.InitialEquity <= 0 {
		c.InitialEquity = DefaultInitialEquity
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.PointValue <= 0 {
		c.PointValue = 1
	}
	if c.ChargeRate < 0 {
		c.ChargeRate = 0
	}
	return c
}

// Deps are the components the orchestrator wires together.
type Deps struct {
	Risk     *risk.Manager
	Detector *pattern.Detector
	Orders   *order.Manager
	Sink     Sink
	Metrics  *obs.Metrics
	Log      logs.Logger
}

// pipeline is the single consumer of one symbol's ticks.
type pipeline struct {
	cfg    model.SymbolConfig
	bricks *brick.Engine
	queue  *bus.Queue[model.Tick]
	log    logs.Logger

	// firedSeq is the brick sequence a setup last fired on. Only the
	// pipeline goroutine touches it.
	firedSeq uint64
	fired    bool
}

// reserved is the daily risk booked for the entry. It is released when the
// entry ends unfilled or the trade closes.
type entryIntent struct {
	signal   model.TradingSignal
	symbol   model.SymbolConfig
	reserved float64
}

type openTrade struct {
	entry    model.Order
	signal   model.TradingSignal
	price    decimal.Decimal
	quantity decimal.Decimal
	openedAt time.Time
	reserved float64
}

// Orchestrator owns one brick pipeline per symbol and moves signals through
// risk gating into the order manager.
type Orchestrator struct {
	log      logs.Logger
	cfg      Config
	now      func() time.Time
	metrics  *obs.Metrics
	risk     *risk.Manager
	detector *pattern.Detector
	orders   *order.Manager
	sink     Sink

	pipelines map[string]*pipeline
	running   atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.Mutex
	equity  float64
	entries map[string]entryIntent
	trades  map[string]*openTrade
	results []model.TradeResult
	stats   model.TradingStats
	wins    int
	losses  int
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Risk == nil || deps.Detector == nil || deps.Orders == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "orchestrator needs risk, detector and orders")
	}
	cfg = cfg.withDefaults()
	if len(cfg.Symbols) == 0 {
		return nil, exception.ErrConfigNoSymbols
	}

	o := &Orchestrator{
		log:       obs.Component(deps.Log, "engine"),
		cfg:       cfg,
		now:       time.Now,
		metrics:   deps.Metrics,
		risk:      deps.Risk,
		detector:  deps.Detector,
		orders:    deps.Orders,
		sink:      deps.Sink,
		pipelines: make(map[string]*pipeline, len(cfg.Symbols)),
		equity:    cfg.InitialEquity,
		entries:   make(map[string]entryIntent),
		trades:    make(map[string]*openTrade),
	}

	for _, sc := range cfg.Symbols {
		if !sc.Enabled {
			continue
		}
		bricks, err := brick.NewEngine(brick.Config{
			Symbol:    sc.Symbol,
			BrickSize: sc.BrickSize,
			TickValue: sc.TickValue,
			MaxBricks: sc.MaxBricks,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "symbol %s", sc.Symbol)
		}
		if _, dup := o.pipelines[sc.Symbol]; dup {
			return nil, errors.Wrapf(exception.ErrConfigInvalid, "duplicate symbol %s", sc.Symbol)
		}
		o.pipelines[sc.Symbol] = &pipeline{
			cfg:    sc,
			bricks: bricks,
			queue:  bus.NewQueue[model.Tick](cfg.TickQueueSize),
			log:    o.log.With("symbol", sc.Symbol),
		}
		if sc.Venue.IsAvailable() {
			deps.Orders.MapSymbol(sc.Symbol, sc.Venue)
		}
		deps.Orders.SetTickSize(sc.Symbol, bricks.TickValue())
	}
	if len(o.pipelines) == 0 {
		return nil, exception.ErrConfigNoSymbols
	}

	deps.Orders.SetValidator(o.validate)
	return o, nil
}

// validate is the order manager's risk gate. Orders closing a trade carry the
// entry as parent and always pass.
func (o *Orchestrator) validate(ord model.Order) bool {
	if ord.ParentID != "" {
		return true
	}
	start := time.Now()
	ok, reason := o.risk.ValidateOrderReason(ord, o.Account(), nil)
	o.metrics.ObserveRiskEval(time.Since(start))
	if !ok {
		o.metrics.IncRiskReject(reason)
	}
	return ok
}

// Run starts the order workers, one goroutine per symbol pipeline and the
// event consumers. It returns immediately.
func (o *Orchestrator) Run(ctx context.Context) {
	if o.running.Swap(true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	orderEvents := o.orders.Subscribe(o.cfg.EventBuffer)
	riskEvents := o.risk.Events(o.cfg.EventBuffer)
	o.orders.Run(ctx)

	for _, p := range o.pipelines {
		o.wg.Add(1)
		go func(p *pipeline) {
			defer o.wg.Done()
			p.queue.Run(ctx, func(t model.Tick) { o.processTick(p, t) })
		}(p)
	}

	o.wg.Add(2)
	go o.consumeOrderEvents(ctx, orderEvents)
	go o.consumeRiskEvents(ctx, riskEvents)
	o.log.Infof("engine started with %d symbols", len(o.pipelines))
}

// Stop halts pipelines and order workers. Queued ticks and orders are not
// drained.
func (o *Orchestrator) Stop() {
	if !o.running.Swap(false) {
		return
	}
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.orders.Stop()
	o.wg.Wait()
	o.log.Info("engine stopped")
}

// OnTick queues a tick for its symbol pipeline without blocking.
func (o *Orchestrator) OnTick(t model.Tick) error {
	p, ok := o.pipelines[t.Symbol]
	if !ok {
		return errors.Wrapf(exception.ErrUnknownInstrument, "symbol %s", t.Symbol)
	}
	if err := p.queue.TryPublish(t); err != nil {
		o.metrics.IncTickDrop()
		return err
	}
	return nil
}

// ProcessTick runs a tick through its pipeline on the caller's goroutine.
// Callers must not mix it with OnTick for the same symbol.
func (o *Orchestrator) ProcessTick(t model.Tick) error {
	p, ok := o.pipelines[t.Symbol]
	if !ok {
		return errors.Wrapf(exception.ErrUnknownInstrument, "symbol %s", t.Symbol)
	}
	o.processTick(p, t)
	return nil
}

func (o *Orchestrator) processTick(p *pipeline, t model.Tick) {
	now := o.now()
	o.metrics.ObserveTick(t.Timestamp, now)

	emitted := p.bricks.AddTick(t)
	o.metrics.AddBricks(emitted)
	price := t.Price()
	if !price.IsPositive() {
		return
	}

	o.orders.OnMarketPrice(t.Symbol, price)
	o.resolveTrades(p, price, t.Timestamp)

	if o.risk.DailyResetRequired(now) {
		o.risk.PerformDailyReset(now)
	}

	snap := p.bricks.Snapshot(pattern.ReportedBricks)
	if p.fired && snap.Sequence == p.firedSeq {
		return
	}
	if o.detector.IsActive(t.Symbol, now) {
		return
	}
	for _, result := range o.detector.Detect(snap) {
		signal := o.detector.GenerateSignal(result, p.cfg)
		if !pattern.ValidSignal(signal) {
			continue
		}
		o.metrics.IncSignal(signal.Pattern)
		p.fired, p.firedSeq = true, snap.Sequence
		p.log.Infof("%s %s entry %s stop %s tp %s", signal.Pattern, signal.Side, signal.Entry, signal.StopLoss, signal.TakeProfit)
		o.handleSignal(p, signal, now)
		return
	}
}

// Symbols lists the active pipelines.
func (o *Orchestrator) Symbols() []string {
	out := make([]string, 0, len(o.pipelines))
	for s := range o.pipelines {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Bricks exposes a symbol's brick engine for reporting.
func (o *Orchestrator) Bricks(symbol string) (*brick.Engine, bool) {
	p, ok := o.pipelines[symbol]
	if !ok {
		return nil, false
	}
	return p.bricks, true
}
