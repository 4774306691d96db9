package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/yanun0323/pkg/sys"

	"renkotrader/internal/exchange"
	"renkotrader/internal/feed"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/internal/ops"
)

const defaultSyntheticInterval = time.Second

func newRunCmd(c *cli) *cobra.Command {
	var (
		reload       time.Duration
		statusEvery  time.Duration
		snapshotPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trade on the configured venues until interrupted",
		Long: `Run connects every venue used by an enabled symbol, streams quotes into
the engine and trades until SIGINT/SIGTERM. Symbols on the paper venue are
fed by the synthetic generator.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrader(cmd.Context(), c, reload, statusEvery, snapshotPath)
		},
	}

	cmd.Flags().DurationVar(&reload, "config-reload-interval", 2*time.Second, "Config reload poll interval (0 disables)")
	cmd.Flags().DurationVar(&statusEvery, "status-interval", time.Minute, "Status log interval (0 disables)")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Write a JSON state snapshot here on shutdown")

	return cmd
}

func runTrader(ctx context.Context, c *cli, reload, statusEvery time.Duration, snapshotPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx, c.cfg, c.root)
	if err != nil {
		return err
	}
	a.start(ctx)
	c.log.Infof("trader started: mode %s, symbols %v", c.cfg.Mode, a.engine.Symbols())

	var wg sync.WaitGroup
	if err := a.startFeeds(ctx, &wg); err != nil {
		cancel()
		wg.Wait()
		a.shutdown()
		return err
	}

	if reload > 0 && c.configPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ops.Watch(ctx, c.configPath, reload, a.applyConfig, c.root)
		}()
	}

	if statusEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.logStatus(ctx, statusEvery)
		}()
	}

	select {
	case <-ctx.Done():
	case <-sys.Shutdown():
		c.log.Infof("shutdown signal received")
	}

	cancel()
	wg.Wait()
	a.shutdown()

	fmt.Fprintln(os.Stdout, renderStatus(a.engine.Status(), a.orders.ExecutionReport()))
	if snapshotPath != "" {
		if err := writeSnapshot(snapshotPath, a); err != nil {
			return err
		}
		c.log.Infof("snapshot written: %s", snapshotPath)
	}
	return nil
}

// startFeeds opens one book ticker stream per streaming venue and one
// synthetic generator for the paper symbols.
func (a *app) startFeeds(ctx context.Context, wg *sync.WaitGroup) error {
	byVenue := make(map[enum.Venue][]string)
	for _, s := range a.cfg.Engine.Symbols {
		if s.Enabled {
			byVenue[s.Venue] = append(byVenue[s.Venue], s.Symbol)
		}
	}

	for venue, symbols := range byVenue {
		switch venue {
		case enum.VenuePaper:
			if err := a.startSynthetic(ctx, wg, symbols); err != nil {
				return err
			}
		case enum.VenueBinance:
			b, ok := a.venues[venue].(*exchange.Binance)
			if !ok {
				return fmt.Errorf("venue %s has no stream", venue)
			}
			stream, err := exchange.NewBookTickerStream(exchange.StreamConfig{
				URL:     b.StreamURL(),
				Symbols: symbols,
			}, a.tickHandler(venue), a.root)
			if err != nil {
				return err
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
					a.log.Errorf("%s stream stopped, err: %+v", venue, err)
				}
			}()
		default:
			return fmt.Errorf("venue %s has no market data feed", venue)
		}
	}
	return nil
}

func (a *app) startSynthetic(ctx context.Context, wg *sync.WaitGroup, symbols []string) error {
	cfg := a.cfg.Simulation.Feed
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSyntheticInterval
	}
	cfg.Instruments = filterInstruments(cfg.Instruments, symbols)
	gen, err := feed.NewGenerator(cfg)
	if err != nil {
		return fmt.Errorf("synthetic feed: %w", err)
	}
	handle := a.tickHandler(enum.VenuePaper)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = gen.Run(ctx, 0, func(t model.Tick) error {
			handle(t)
			return nil
		})
	}()
	return nil
}

func (a *app) tickHandler(venue enum.Venue) func(model.Tick) {
	return func(t model.Tick) {
		a.observe(venue, t)
		if err := a.engine.OnTick(t); err != nil {
			a.log.Debugf("tick %s dropped, err: %+v", t.Symbol, err)
		}
	}
}

// applyConfig hot-swaps the parameters that are safe to change while trading.
func (a *app) applyConfig(loaded ops.Loaded) {
	a.risk.UpdateParameters(loaded.Risk)
	a.detector.UpdateConfig(loaded.Pattern)
}

func (a *app) logStatus(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := a.engine.Status()
			a.log.Infof("equity %.2f, trades %d, open %d, orders %d, risk %s, ticks %d, bricks %d",
				s.Equity, s.Trading.TotalTrades, s.OpenTrades, s.ActiveOrders, s.Risk.Status, s.Metrics.Ticks, s.Metrics.Bricks)
		}
	}
}

func filterInstruments(all []feed.Instrument, symbols []string) []feed.Instrument {
	keep := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		keep[s] = struct{}{}
	}
	out := make([]feed.Instrument, 0, len(symbols))
	for _, inst := range all {
		if _, ok := keep[inst.Symbol]; ok {
			out = append(out, inst)
		}
	}
	return out
}
