package pattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/decimal"

	"renkotrader/internal/brick"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
)

func d(s string) decimal.Decimal {
	return decimal.Require(s)
}

var base = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

// feed builds an engine with brick size 1 and returns its snapshot after the prices.
func feed(t *testing.T, prices ...string) brick.Snapshot {
	t.Helper()
	e, err := brick.NewEngine(brick.Config{Symbol: "EURUSD", BrickSize: d("1")})
	require.NoError(t, err)
	for i, p := range prices {
		e.AddPrice(d(p), base.Add(time.Duration(i)*time.Second))
	}
	return e.Snapshot(MinHistory)
}

func TestSetup1(t *testing.T) {
	det := NewDetector(DefaultConfig(), nil)

	snap := feed(t, "100", "101", "100", "99", "99.75")
	r := det.DetectSetup1(snap)
	require.Equal(t, enum.PatternSetup1, r.Kind)
	assert.Equal(t, "EURUSD", r.Symbol)
	assert.Equal(t, enum.OrderSideBuy, r.Side)
	assert.Equal(t, 0.8, r.Confidence)
	assert.True(t, r.Entry.Equal(d("100.0002")), r.Entry.String())
	assert.True(t, r.Stop.Equal(d("97.9998")), r.Stop.String())
	assert.Equal(t, uint64(3), r.Sequence)
	assert.Len(t, r.Bricks, 3)
	assert.Equal(t, base.Add(4*time.Second), r.DetectedAt)

	assert.Equal(t, enum.PatternNone, det.DetectSetup2(snap).Kind)
}

func TestSetup1Rejections(t *testing.T) {
	testCases := []struct {
		desc   string
		prices []string
	}{
		{desc: "only two bricks", prices: []string{"100", "99", "98", "98.8"}},
		{desc: "forming below threshold", prices: []string{"100", "101", "100", "99", "99.74"}},
		{desc: "forming down", prices: []string{"100", "101", "100", "99", "98.2"}},
		{desc: "last two not both down", prices: []string{"100", "99", "98", "99", "99.9"}},
		{desc: "no bricks", prices: []string{"100"}},
	}

	det := NewDetector(DefaultConfig(), nil)
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			r := det.DetectSetup1(feed(t, tc.prices...))
			assert.Equal(t, enum.PatternNone, r.Kind)
			assert.False(t, r.Found())
		})
	}
}

func TestSetup1ThresholdIsInclusive(t *testing.T) {
	det := NewDetector(DefaultConfig(), nil)
	det.SetPartialBrickThreshold(0.75)

	r := det.DetectSetup1(feed(t, "100", "101", "100", "99", "99.75"))
	assert.Equal(t, enum.PatternSetup1, r.Kind)

	det.SetPartialBrickThreshold(0.8)
	r = det.DetectSetup1(feed(t, "100", "101", "100", "99", "99.75"))
	assert.Equal(t, enum.PatternNone, r.Kind)
}

func TestSetup2GreenRedGreen(t *testing.T) {
	det := NewDetector(DefaultConfig(), nil)

	r := det.DetectSetup2(feed(t, "100", "101", "100", "101", "101.8"))
	require.Equal(t, enum.PatternSetup2, r.Kind)
	assert.Equal(t, enum.OrderSideBuy, r.Side)
	assert.Equal(t, 0.75, r.Confidence)
	// Setup2 reuses Setup1's entry and stop formulas.
	assert.True(t, r.Entry.Equal(d("102.0002")), r.Entry.String())
	assert.True(t, r.Stop.Equal(d("99.9998")), r.Stop.String())

	assert.Equal(t, enum.PatternNone, det.DetectSetup2(feed(t, "100", "101", "100", "101", "101.7")).Kind)
}

func TestSetup2RedGreenRed(t *testing.T) {
	det := NewDetector(DefaultConfig(), nil)

	r := det.DetectSetup2(feed(t, "100", "99", "100", "99", "98.2"))
	require.Equal(t, enum.PatternSetup2, r.Kind)
	assert.Equal(t, enum.OrderSideSell, r.Side)
	assert.True(t, r.Entry.Equal(d("97.9998")), r.Entry.String())
	assert.True(t, r.Stop.Equal(d("100.0002")), r.Stop.String())
}

func TestSetup2IgnoresFormingDirection(t *testing.T) {
	det := NewDetector(DefaultConfig(), nil)

	r := det.DetectSetup2(feed(t, "100", "101", "100", "101", "100.2"))
	require.Equal(t, enum.PatternSetup2, r.Kind)
	assert.Equal(t, enum.OrderSideBuy, r.Side)
}

func TestDetectHonoursEnableFlags(t *testing.T) {
	det := NewDetector(DefaultConfig(), nil)
	snap := feed(t, "100", "101", "100", "99", "99.9")

	results := det.Detect(snap)
	require.Len(t, results, 1)
	assert.Equal(t, enum.PatternSetup1, results[0].Kind)

	det.EnableSetup1(false)
	assert.Empty(t, det.Detect(snap))

	det.EnableSetup2(false)
	assert.Empty(t, det.Detect(feed(t, "100", "101", "100", "101", "101.8")))

	det.EnableSetup2(true)
	assert.Len(t, det.Detect(feed(t, "100", "101", "100", "101", "101.8")), 1)
}

func TestGenerateSignal(t *testing.T) {
	det := NewDetector(DefaultConfig(), nil)
	symbol := model.SymbolConfig{Symbol: "EURUSD", MinLotSize: d("0.05")}

	r := det.DetectSetup1(feed(t, "100", "101", "100", "99", "99.75"))
	s := det.GenerateSignal(r, symbol)
	assert.Equal(t, "EURUSD", s.Symbol)
	assert.Equal(t, enum.PatternSetup1, s.Pattern)
	assert.Equal(t, enum.OrderSideBuy, s.Side)
	assert.True(t, s.Entry.Equal(d("100.0002")))
	assert.True(t, s.StopLoss.Equal(d("97.9998")))
	assert.True(t, s.TakeProfit.Equal(d("104.0010")), s.TakeProfit.String())
	assert.True(t, s.Quantity.Equal(d("0.05")))
	assert.Equal(t, 0.8, s.Confidence)
	assert.True(t, ValidSignal(s))

	sell := det.GenerateSignal(det.DetectSetup2(feed(t, "100", "99", "100", "99", "98.2")), model.SymbolConfig{})
	assert.True(t, sell.TakeProfit.Equal(d("93.9990")), sell.TakeProfit.String())
	assert.True(t, sell.Quantity.Equal(d("0.01")))
	assert.True(t, ValidSignal(sell))

	empty := det.GenerateSignal(model.PatternResult{}, symbol)
	assert.True(t, empty.IsEmpty())
	assert.False(t, ValidSignal(empty))
}

func TestGenerateSignalRiskReward(t *testing.T) {
	det := NewDetector(DefaultConfig(), nil)
	det.SetRiskRewardRatio(3)
	det.SetRiskRewardRatio(-1)

	p := model.PatternResult{Kind: enum.PatternSetup1, Side: enum.OrderSideBuy, Entry: d("10"), Stop: d("9")}
	s := det.GenerateSignal(p, model.SymbolConfig{})
	assert.True(t, s.TakeProfit.Equal(d("13")))
}

func TestSettersClamp(t *testing.T) {
	det := NewDetector(DefaultConfig(), nil)

	det.SetPartialBrickThreshold(0.2)
	assert.Equal(t, 0.5, det.Config().PartialBrickThreshold)
	det.SetPartialBrickThreshold(1.4)
	assert.Equal(t, 1.0, det.Config().PartialBrickThreshold)

	det.SetTickBuffer(0)
	assert.Equal(t, 1, det.Config().TickBuffer)
	det.SetTickBuffer(4)
	assert.Equal(t, 4, det.Config().TickBuffer)

	det.SetMinConfidence(-0.1)
	assert.Equal(t, 0.0, det.Config().MinConfidence)
	det.SetMinConfidence(2)
	assert.Equal(t, 1.0, det.Config().MinConfidence)

	det.UpdateConfig(Config{PartialBrickThreshold: 3, TickBuffer: -2})
	cfg := det.Config()
	assert.Equal(t, 1.0, cfg.PartialBrickThreshold)
	assert.Equal(t, 1, cfg.TickBuffer)
	assert.Equal(t, 2.0, cfg.RiskRewardRatio)
	assert.Equal(t, 30*time.Minute, cfg.PatternTimeout)
}

func TestTickBufferMovesPrices(t *testing.T) {
	det := NewDetector(DefaultConfig(), nil)
	det.SetTickBuffer(5)

	r := det.DetectSetup1(feed(t, "100", "101", "100", "99", "99.75"))
	assert.True(t, r.Entry.Equal(d("100.0005")))
	assert.True(t, r.Stop.Equal(d("97.9995")))
}

func TestActivePattern(t *testing.T) {
	det := NewDetector(DefaultConfig(), nil)

	assert.False(t, det.IsActive("EURUSD", base))
	det.MarkActive("EURUSD", enum.PatternSetup2, base)
	assert.True(t, det.IsActive("EURUSD", base.Add(time.Minute)))
	assert.Equal(t, enum.PatternSetup2, det.ActiveKind("EURUSD"))
	assert.False(t, det.IsActive("GBPUSD", base))

	assert.False(t, det.IsActive("EURUSD", base.Add(31*time.Minute)))
	assert.Equal(t, enum.PatternNone, det.ActiveKind("EURUSD"))

	det.MarkActive("EURUSD", enum.PatternSetup1, base)
	det.Clear("EURUSD")
	assert.False(t, det.IsActive("EURUSD", base))
}

func TestStats(t *testing.T) {
	det := NewDetector(DefaultConfig(), nil)

	assert.Equal(t, 0.0, det.SuccessRate(enum.PatternSetup1))
	det.RecordOutcome(enum.PatternSetup1, true)
	det.RecordOutcome(enum.PatternSetup1, false)
	det.RecordOutcome(enum.PatternSetup1, true)
	det.RecordOutcome(enum.PatternSetup2, false)
	det.RecordOutcome(enum.PatternNone, true)

	assert.Equal(t, 3, det.Attempts(enum.PatternSetup1))
	assert.InDelta(t, 2.0/3.0, det.SuccessRate(enum.PatternSetup1), 1e-9)
	assert.Equal(t, 0.0, det.SuccessRate(enum.PatternSetup2))

	all := det.AllStats()
	assert.Len(t, all, 2)
	assert.Equal(t, Stats{Attempts: 1}, all[enum.PatternSetup2])
}
