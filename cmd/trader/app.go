package main

import (
	"context"
	"fmt"

	"github.com/yanun0323/logs"

	"renkotrader/internal/engine"
	"renkotrader/internal/exchange"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/internal/obs"
	"renkotrader/internal/ops"
	"renkotrader/internal/order"
	"renkotrader/internal/pattern"
	"renkotrader/internal/risk"
	"renkotrader/internal/store"
	"renkotrader/pkg/conn"
)

// app is one fully wired trading stack.
type app struct {
	root     logs.Logger
	log      logs.Logger
	cfg      ops.Loaded
	metrics  *obs.Metrics
	risk     *risk.Manager
	detector *pattern.Detector
	orders   *order.Manager
	engine   *engine.Orchestrator
	paper    *exchange.Paper
	venues   map[enum.Venue]exchange.Exchange
	db       *conn.Client
	recorder *store.Recorder
}

// newApp builds every component from cfg. A paper venue is always registered;
// paper-mode orders route there whatever the symbol venue.
func newApp(ctx context.Context, cfg ops.Loaded, root logs.Logger) (*app, error) {
	a := &app{
		root:    root,
		log:     obs.Component(root, "app"),
		cfg:     cfg,
		metrics: obs.NewMetrics(),
		venues:  make(map[enum.Venue]exchange.Exchange),
	}

	params := cfg.Risk
	if cfg.Paper() {
		params.PaperTradingMode = true
	}
	a.risk = risk.NewManager(params, root)
	a.detector = pattern.NewDetector(cfg.Pattern, root)
	a.orders = order.NewManager(cfg.Orders, root, a.metrics)

	if err := a.connectVenues(ctx); err != nil {
		return nil, err
	}

	if cfg.Database.Enabled {
		if err := a.openStore(ctx); err != nil {
			a.close()
			return nil, err
		}
	}

	deps := engine.Deps{
		Risk:     a.risk,
		Detector: a.detector,
		Orders:   a.orders,
		Metrics:  a.metrics,
		Log:      root,
	}
	if a.recorder != nil {
		deps.Sink = a.recorder
	}
	eng, err := engine.New(cfg.Engine, deps)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.engine = eng
	return a, nil
}

func (a *app) connectVenues(ctx context.Context) error {
	registry := exchange.NewRegistry()

	configs := a.cfg.Exchanges
	if !hasVenue(configs, enum.VenuePaper) {
		configs = append(configs, exchange.Config{Venue: enum.VenuePaper})
	}

	for _, vc := range configs {
		if vc.Venue == enum.VenuePaper {
			vc.Paper = a.paperConfig(vc.Paper)
		}
		if !a.needsVenue(vc.Venue) {
			a.log.Debugf("venue %s configured but unused", vc.Venue)
			continue
		}
		ex, err := registry.New(vc, a.root)
		if err != nil {
			return fmt.Errorf("venue %s: %w", vc.Venue, err)
		}
		if err := ex.Connect(ctx); err != nil {
			return fmt.Errorf("connect %s: %w", vc.Venue, err)
		}
		if p, ok := ex.(*exchange.Paper); ok {
			a.paper = p
		}
		a.venues[vc.Venue] = ex
		a.orders.RegisterVenue(ex)
	}

	for _, s := range a.cfg.Engine.Symbols {
		if !s.Enabled {
			continue
		}
		if _, ok := a.venues[s.Venue]; !ok {
			return fmt.Errorf("symbol %s: venue %s is not configured", s.Symbol, s.Venue)
		}
	}
	return nil
}

func (a *app) needsVenue(v enum.Venue) bool {
	if v == enum.VenuePaper {
		return true
	}
	for _, s := range a.cfg.Engine.Symbols {
		if s.Enabled && s.Venue == v {
			return true
		}
	}
	return false
}

// paperConfig seeds the simulator with the engine's equity and one instrument
// per enabled symbol.
func (a *app) paperConfig(cfg exchange.PaperConfig) exchange.PaperConfig {
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = a.cfg.Engine.InitialEquity
	}
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = engine.DefaultInitialEquity
	}
	if len(cfg.Instruments) == 0 {
		for _, s := range a.cfg.Engine.Symbols {
			if !s.Enabled {
				continue
			}
			spec := exchange.DefaultInstrument(s.Symbol)
			if s.TickValue.IsPositive() {
				spec.TickSize = s.TickValue
			}
			if s.MinLotSize.IsPositive() {
				spec.MinLot = s.MinLotSize
			}
			cfg.Instruments = append(cfg.Instruments, spec)
		}
	}
	return cfg
}

func (a *app) openStore(ctx context.Context) error {
	client, err := conn.New(ctx, a.cfg.Database.Option)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	rec, err := store.NewRecorder(client.DB(), store.Config{QueueSize: a.cfg.Database.QueueSize}, a.root)
	if err != nil {
		_ = client.Close()
		return err
	}
	if err := rec.Migrate(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	a.db = client
	a.recorder = rec
	return nil
}

// start launches the recorder and the engine. The engine stops when ctx ends
// or on shutdown.
func (a *app) start(ctx context.Context) {
	if a.recorder != nil {
		a.recorder.Start(ctx)
	}
	a.engine.Run(ctx)
}

// observe feeds a venue quote to everything that prices off it before the
// engine sees the tick.
func (a *app) observe(venue enum.Venue, t model.Tick) {
	if a.paper != nil {
		a.paper.UpdateTick(t)
	}
	if b, ok := a.venues[venue].(*exchange.Binance); ok {
		b.Observe(t)
	}
	a.orders.ObserveQuote(venue, t)
}

// shutdown stops the engine and flushes persistence, best effort.
func (a *app) shutdown() {
	if a.engine != nil {
		a.engine.Stop()
	}
	a.close()
}

func (a *app) close() {
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.log.Errorf("close recorder, err: %+v", err)
		}
		a.log.Infof("recorder wrote %d rows, %d failed", a.recorder.Written(), a.recorder.Failed())
		a.recorder = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Errorf("close database, err: %+v", err)
		}
		a.db = nil
	}
	if a.paper != nil {
		a.paper.Disconnect()
	}
}

func hasVenue(configs []exchange.Config, v enum.Venue) bool {
	for _, c := range configs {
		if c.Venue == v {
			return true
		}
	}
	return false
}
