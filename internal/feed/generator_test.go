package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/decimal"

	"renkotrader/internal/model"
)

var start = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Seed:  7,
		Start: start,
		Instruments: []Instrument{
			{Symbol: "EURUSD", Start: decimal.Require("1.1"), Volatility: 0.002, Spread: decimal.Require("0.0002")},
			{Symbol: "BTCUSDT", Start: decimal.NewFromInt(60_000), Precision: 2},
		},
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		desc   string
		mutate func(*Config)
	}{
		{desc: "no instruments", mutate: func(c *Config) { c.Instruments = nil }},
		{desc: "empty symbol", mutate: func(c *Config) { c.Instruments[0].Symbol = "" }},
		{desc: "zero start", mutate: func(c *Config) { c.Instruments[0].Start = decimal.Zero }},
		{desc: "volatility too high", mutate: func(c *Config) { c.Instruments[0].Volatility = 1 }},
		{desc: "drift too high", mutate: func(c *Config) { c.Instruments[0].Drift = -1 }},
		{desc: "negative spread", mutate: func(c *Config) { c.Instruments[0].Spread = decimal.NewFromInt(-1) }},
		{desc: "negative step", mutate: func(c *Config) { c.Step = -time.Second }},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			_, err := NewGenerator(cfg)
			assert.Error(t, err)
		})
	}
}

func TestNextCyclesInstruments(t *testing.T) {
	g, err := NewGenerator(testConfig())
	require.NoError(t, err)

	a, b, c := g.Next(), g.Next(), g.Next()
	assert.Equal(t, "EURUSD", a.Symbol)
	assert.Equal(t, "BTCUSDT", b.Symbol)
	assert.Equal(t, "EURUSD", c.Symbol)
	assert.Equal(t, start, a.Timestamp)
	assert.Equal(t, start.Add(time.Second), b.Timestamp)

	assert.True(t, a.Ask.Sub(a.Bid).Equal(decimal.Require("0.0002")))
	assert.True(t, b.Bid.Equal(b.Ask), "no spread configured")
	assert.True(t, b.Last.Equal(b.Last.Round(2)), b.Last.String())
}

func TestSeedIsDeterministic(t *testing.T) {
	g1, err := NewGenerator(testConfig())
	require.NoError(t, err)
	g2, err := NewGenerator(testConfig())
	require.NoError(t, err)

	for range 100 {
		a, b := g1.Next(), g2.Next()
		require.True(t, a.Last.Equal(b.Last))
		require.True(t, a.Last.IsPositive())
	}
}

func TestPriceStaysPositive(t *testing.T) {
	cfg := testConfig()
	cfg.Instruments = []Instrument{{Symbol: "X", Start: decimal.Require("0.001"), Volatility: 0.9, Drift: -0.5, Precision: 3}}
	g, err := NewGenerator(cfg)
	require.NoError(t, err)

	for range 500 {
		tick := g.Next()
		require.True(t, tick.Last.IsPositive(), tick.Last.String())
		require.True(t, tick.Bid.IsPositive())
	}
}

func TestRun(t *testing.T) {
	g, err := NewGenerator(testConfig())
	require.NoError(t, err)

	var got []model.Tick
	require.NoError(t, g.Run(t.Context(), 10, func(tick model.Tick) error {
		got = append(got, tick)
		return nil
	}))
	assert.Len(t, got, 10)

	stop := errors.New("stop")
	n := 0
	err = g.Run(t.Context(), 0, func(model.Tick) error {
		n++
		if n == 5 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 5, n)
}

func TestRunHonoursContext(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 5 * time.Millisecond
	g, err := NewGenerator(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()
	n := 0
	err = g.Run(ctx, 0, func(model.Tick) error { n++; return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, n)
}
