package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"renkotrader/internal/exchange"
)

func newConfigCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(configView(c))
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, renderConfig(c.configPath, string(out)))
			return nil
		},
	}
}

type symbolView struct {
	Symbol    string `yaml:"symbol"`
	Venue     string `yaml:"venue"`
	BrickSize string `yaml:"brick_size"`
	TickValue string `yaml:"tick_value"`
	MinLot    string `yaml:"min_lot"`
	Enabled   bool   `yaml:"enabled"`
}

type venueView struct {
	Venue    string `yaml:"venue"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Testnet  bool   `yaml:"testnet,omitempty"`
	Keys     bool   `yaml:"credentials"`
	Currency string `yaml:"currency,omitempty"`
}

// configView is the printable subset of the loaded config. Secrets are reduced
// to whether they are set.
func configView(c *cli) map[string]any {
	cfg := c.cfg
	symbols := make([]symbolView, 0, len(cfg.Engine.Symbols))
	for _, s := range cfg.Engine.Symbols {
		symbols = append(symbols, symbolView{
			Symbol:    s.Symbol,
			Venue:     s.Venue.String(),
			BrickSize: s.BrickSize.String(),
			TickValue: s.TickValue.String(),
			MinLot:    s.MinLotSize.String(),
			Enabled:   s.Enabled,
		})
	}
	return map[string]any{
		"mode":      cfg.Mode,
		"log_level": cfg.LogLevel,
		"risk": map[string]any{
			"daily_risk_percent":     cfg.Risk.DailyRiskPercent,
			"max_drawdown_percent":   cfg.Risk.MaxDrawdownPercent,
			"consecutive_loss_limit": cfg.Risk.ConsecutiveLossLimit,
			"orders_per_counter":     cfg.Risk.OrdersPerCounter,
			"paper_trading_mode":     cfg.Risk.PaperTradingMode,
		},
		"pattern": map[string]any{
			"partial_brick_threshold": cfg.Pattern.PartialBrickThreshold,
			"tick_buffer":             cfg.Pattern.TickBuffer,
			"risk_reward_ratio":       cfg.Pattern.RiskRewardRatio,
			"pattern_timeout":         cfg.Pattern.PatternTimeout.String(),
		},
		"symbols":   symbols,
		"exchanges": venueViews(cfg.Exchanges),
		"database":  map[string]any{"enabled": cfg.Database.Enabled},
		"simulation": map[string]any{
			"ticks": cfg.Simulation.Ticks,
			"seed":  cfg.Simulation.Feed.Seed,
		},
	}
}

func venueViews(cfgs []exchange.Config) []venueView {
	out := make([]venueView, 0, len(cfgs))
	for _, v := range cfgs {
		out = append(out, venueView{
			Venue:    v.Venue.String(),
			BaseURL:  v.BaseURL,
			Testnet:  v.Testnet,
			Keys:     v.APIKey != "" && v.APISecret != "",
			Currency: v.Currency,
		})
	}
	return out
}
