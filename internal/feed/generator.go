package feed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/yanun0323/decimal"

	"renkotrader/internal/model"
)

// Instrument describes the random walk of one symbol.
type Instrument struct {
	Symbol string
	Start  decimal.Decimal
	// Volatility is the standard deviation of one step as a fraction of price.
	Volatility float64
	// Drift is the mean of one step as a fraction of price.
	Drift     float64
	Spread    decimal.Decimal
	Precision int32
}

// Config controls the synthetic feed.
type Config struct {
	Seed        int64
	Instruments []Instrument
	// Step advances the tick clock per generated tick.
	Step time.Duration
	// Interval is the wall clock delay between ticks in Run.
	Interval time.Duration
	Start    time.Time
}

const (
	defaultPrecision  = 5
	defaultVolatility = 0.001
	defaultStep       = time.Second
)

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("at least one instrument is required")
	}
	for _, in := range c.Instruments {
		if in.Symbol == "" {
			return fmt.Errorf("instrument symbol is required")
		}
		if !in.Start.IsPositive() {
			return fmt.Errorf("%s: start price must be > 0", in.Symbol)
		}
		if in.Volatility < 0 || in.Volatility >= 1 {
			return fmt.Errorf("%s: volatility must be between 0 and 1", in.Symbol)
		}
		if math.Abs(in.Drift) >= 1 {
			return fmt.Errorf("%s: drift must be between -1 and 1", in.Symbol)
		}
		if in.Spread.Sign() < 0 {
			return fmt.Errorf("%s: spread must be >= 0", in.Symbol)
		}
	}
	if c.Step < 0 || c.Interval < 0 {
		return fmt.Errorf("step and interval must be >= 0")
	}
	return nil
}

type walk struct {
	Instrument
	price float64
	floor float64
}

// Generator creates synthetic ticks, cycling through instruments.
type Generator struct {
	cfg   Config
	rng   *rand.Rand
	walks []walk
	index int
	clock time.Time
}

// NewGenerator creates a generator with validation.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	if cfg.Step == 0 {
		cfg.Step = defaultStep
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now().UTC()
	}

	walks := make([]walk, len(cfg.Instruments))
	for i, in := range cfg.Instruments {
		if in.Precision <= 0 {
			in.Precision = defaultPrecision
		}
		if in.Volatility == 0 {
			in.Volatility = defaultVolatility
		}
		start := model.Float(in.Start)
		walks[i] = walk{
			Instrument: in,
			price:      start,
			floor:      math.Pow(10, -float64(in.Precision)),
		}
	}
	return &Generator{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		walks: walks,
		clock: cfg.Start,
	}, nil
}

// Next moves the next instrument one step and returns its tick.
func (g *Generator) Next() model.Tick {
	w := &g.walks[g.index]
	g.index = (g.index + 1) % len(g.walks)

	w.price *= 1 + w.Drift + w.Volatility*g.rng.NormFloat64()
	w.price = math.Max(w.price, w.floor)

	last := decimal.NewFromFloat(w.price).Round(int(w.Precision))
	half := w.Spread.Div(decimal.NewFromInt(2))
	bid := last.Sub(half)
	if !bid.IsPositive() {
		bid = last
	}
	ts := g.clock
	g.clock = g.clock.Add(g.cfg.Step)

	return model.Tick{
		Symbol:    w.Symbol,
		Bid:       bid,
		Ask:       last.Add(half),
		Last:      last,
		Volume:    decimal.NewFromInt(1),
		Timestamp: ts,
	}
}

// Run emits n ticks to handler, or ticks until ctx is done when n <= 0. A
// handler error stops the run.
func (g *Generator) Run(ctx context.Context, n int, handler func(model.Tick) error) error {
	var ticker *time.Ticker
	if g.cfg.Interval > 0 {
		ticker = time.NewTicker(g.cfg.Interval)
		defer ticker.Stop()
	}
	for i := 0; n <= 0 || i < n; i++ {
		if ticker != nil && i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := handler(g.Next()); err != nil {
			return err
		}
	}
	return nil
}
