package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"renkotrader/internal/feed"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/internal/ops"
)

const (
	settleTimeout = 50 * time.Millisecond
	settlePoll    = 100 * time.Microsecond
)

type simulateOptions struct {
	ticks        int
	seed         int64
	snapshotPath string
}

func newSimulateCmd(c *cli) *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a seeded synthetic feed through the paper venue",
		Long: `Simulate routes every symbol to the paper venue, pushes a seeded random
walk through the engine and prints the resulting statistics.
Example: renkotrader simulate --ticks=50000 --seed=7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := simulate(cmd.Context(), c, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, renderStatus(a.engine.Status(), a.orders.ExecutionReport()))
			fmt.Fprintln(os.Stdout, renderTrades(a.engine.Trades(), 10))
			if opts.snapshotPath != "" {
				return writeSnapshot(opts.snapshotPath, a)
			}
			return nil
		},
	}

	bindSimulateFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.snapshotPath, "snapshot", "", "Write a JSON state snapshot here when done")

	return cmd
}

func bindSimulateFlags(cmd *cobra.Command, opts *simulateOptions) {
	cmd.Flags().IntVar(&opts.ticks, "ticks", 0, "Number of ticks to generate (default from config)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Random seed override (0 keeps the config seed)")
}

// simulate runs the whole pipeline against the paper venue and returns the
// stopped app for reporting.
func simulate(ctx context.Context, c *cli, opts simulateOptions) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := paperOnly(c.cfg)
	if opts.seed != 0 {
		cfg.Simulation.Feed.Seed = opts.seed
	}
	ticks := cfg.Simulation.Ticks
	if opts.ticks > 0 {
		ticks = opts.ticks
	}
	// Simulation runs unpaced.
	cfg.Simulation.Feed.Interval = 0

	gen, err := feed.NewGenerator(cfg.Simulation.Feed)
	if err != nil {
		return nil, fmt.Errorf("build feed: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx, cfg, c.root)
	if err != nil {
		return nil, err
	}
	a.start(ctx)

	started := time.Now()
	err = gen.Run(ctx, ticks, func(t model.Tick) error {
		a.observe(enum.VenuePaper, t)
		if err := a.engine.ProcessTick(t); err != nil {
			return err
		}
		a.settle()
		return nil
	})
	a.shutdown()
	if err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}

	c.log.Infof("simulated %d ticks in %s, %d trades", ticks, time.Since(started).Round(time.Millisecond), len(a.engine.Trades()))
	return a, nil
}

// settle waits briefly for the order worker to drain so fills land before the
// next simulated tick.
func (a *app) settle() {
	deadline := time.Now().Add(settleTimeout)
	for a.orders.QueueLen() > 0 && time.Now().Before(deadline) {
		time.Sleep(settlePoll)
	}
}

// paperOnly routes every symbol and the account to the paper venue.
func paperOnly(cfg ops.Loaded) ops.Loaded {
	cfg.Mode = ops.ModePaper
	symbols := make([]model.SymbolConfig, len(cfg.Engine.Symbols))
	copy(symbols, cfg.Engine.Symbols)
	for i := range symbols {
		symbols[i].Venue = enum.VenuePaper
	}
	cfg.Engine.Symbols = symbols
	cfg.Database.Enabled = false
	return cfg
}
