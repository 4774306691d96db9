package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"renkotrader/internal/model"
	"renkotrader/internal/report"
)

func newExportCmd(c *cli) *cobra.Command {
	var (
		opts simulateOptions
		out  string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Simulate, then write bricks, orders and trades as Parquet",
		Long: `Export runs the same simulation as "simulate" and writes one bricks file per
symbol, the order history, the closed trades and a JSON snapshot to --out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := simulate(cmd.Context(), c, opts)
			if err != nil {
				return err
			}
			written, err := exportRun(out, a)
			if err != nil {
				return err
			}
			for _, path := range written {
				fmt.Fprintln(os.Stdout, path)
			}
			return nil
		},
	}

	bindSimulateFlags(cmd, &opts)
	cmd.Flags().StringVar(&out, "out", "out", "Output directory")

	return cmd
}

// exportRun writes the run's artifacts under dir and returns their paths.
func exportRun(dir string, a *app) ([]string, error) {
	var written []string

	for _, symbol := range a.engine.Symbols() {
		e, ok := a.engine.Bricks(symbol)
		if !ok {
			continue
		}
		snap := e.Snapshot(0)
		if len(snap.Bricks) == 0 {
			continue
		}
		first := snap.Sequence - uint64(len(snap.Bricks)) + 1
		path := filepath.Join(dir, "bricks", symbol+".parquet")
		if err := report.WriteBricks(path, symbol, first, snap.Bricks); err != nil {
			return written, fmt.Errorf("bricks %s: %w", symbol, err)
		}
		written = append(written, path)
	}

	orders := append(a.orders.OrderHistory(""), a.orders.ActiveOrders()...)
	if len(orders) > 0 {
		path := filepath.Join(dir, "orders.parquet")
		if err := report.WriteOrders(path, orders); err != nil {
			return written, fmt.Errorf("orders: %w", err)
		}
		written = append(written, path)
	}

	if trades := a.engine.Trades(); len(trades) > 0 {
		path := filepath.Join(dir, "trades.parquet")
		if err := report.WriteTrades(path, trades); err != nil {
			return written, fmt.Errorf("trades: %w", err)
		}
		written = append(written, path)
	}

	path := filepath.Join(dir, "snapshot.json")
	if err := writeSnapshot(path, a); err != nil {
		return written, err
	}
	return append(written, path), nil
}

// buildSnapshot captures the app's state for report.WriteSnapshot.
func buildSnapshot(a *app) report.Snapshot {
	status := a.engine.Status()
	snap := report.Snapshot{
		Timestamp:    time.Now().UTC(),
		Mode:         a.cfg.Mode,
		Equity:       status.Equity,
		Trading:      status.Trading,
		Risk:         report.NewRiskEntry(status.Risk),
		ActiveOrders: a.orders.ActiveOrders(),
	}
	if snap.ActiveOrders == nil {
		snap.ActiveOrders = []model.Order{}
	}
	for _, symbol := range a.engine.Symbols() {
		e, ok := a.engine.Bricks(symbol)
		if !ok {
			continue
		}
		s := e.Snapshot(snapshotBricks)
		snap.Symbols = append(snap.Symbols, report.SymbolEntry{
			Symbol:     symbol,
			BrickSize:  s.BrickSize,
			Reference:  s.Reference,
			LastPrice:  s.LastPrice,
			Sequence:   s.Sequence,
			Bricks:     s.Total,
			LastBricks: report.BrickTrail(s.Bricks),
		})
	}
	return snap
}

const snapshotBricks = 20

func writeSnapshot(path string, a *app) error {
	if err := report.WriteSnapshot(path, buildSnapshot(a)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
