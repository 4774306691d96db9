package pattern

import (
	"sync"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"

	"renkotrader/internal/brick"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/internal/obs"
)

const (
	Setup1Confidence = 0.8
	Setup2Confidence = 0.75

	// MinHistory is the completed brick count both setups need.
	MinHistory = 3
	// ReportedBricks is how many recent bricks a result carries.
	ReportedBricks = 5
)

// Config holds detector thresholds. MinConfidence is informational; detection
// does not enforce it.
type Config struct {
	MinConfidence         float64
	PartialBrickThreshold float64
	TickBuffer            int
	Setup1Enabled         bool
	Setup2Enabled         bool
	RiskRewardRatio       float64
	PatternTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinConfidence:         0.7,
		PartialBrickThreshold: 0.75,
		TickBuffer:            2,
		Setup1Enabled:         true,
		Setup2Enabled:         true,
		RiskRewardRatio:       2.0,
		PatternTimeout:        30 * time.Minute,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	c.PartialBrickThreshold = clamp(c.PartialBrickThreshold, 0.5, 1.0)
	c.MinConfidence = clamp(c.MinConfidence, 0, 1)
	if c.TickBuffer < 1 {
		c.TickBuffer = 1
	}
	if c.RiskRewardRatio <= 0 {
		c.RiskRewardRatio = def.RiskRewardRatio
	}
	if c.PatternTimeout <= 0 {
		c.PatternTimeout = def.PatternTimeout
	}
	return c
}

type activePattern struct {
	kind  enum.PatternKind
	since time.Time
}

// Detector evaluates the two reversal setups against brick snapshots.
type Detector struct {
	log logs.Logger

	mu  sync.RWMutex
	cfg Config

	statsMu sync.Mutex
	stats   map[enum.PatternKind]*Stats

	activeMu sync.Mutex
	active   map[string]activePattern
}

func NewDetector(cfg Config, log logs.Logger) *Detector {
	return &Detector{
		log:    obs.Component(log, "pattern"),
		cfg:    cfg.normalize(),
		stats:  make(map[enum.PatternKind]*Stats),
		active: make(map[string]activePattern),
	}
}

func (d *Detector) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// UpdateConfig replaces every threshold, clamping out-of-range values.
func (d *Detector) UpdateConfig(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg.normalize()
	d.mu.Unlock()
}

// SetPartialBrickThreshold clamps to [0.5, 1.0].
func (d *Detector) SetPartialBrickThreshold(v float64) {
	d.mu.Lock()
	d.cfg.PartialBrickThreshold = clamp(v, 0.5, 1.0)
	d.mu.Unlock()
}

// SetTickBuffer keeps at least one tick.
func (d *Detector) SetTickBuffer(ticks int) {
	d.mu.Lock()
	d.cfg.TickBuffer = max(ticks, 1)
	d.mu.Unlock()
}

// SetMinConfidence clamps to [0, 1].
func (d *Detector) SetMinConfidence(v float64) {
	d.mu.Lock()
	d.cfg.MinConfidence = clamp(v, 0, 1)
	d.mu.Unlock()
}

func (d *Detector) SetRiskRewardRatio(v float64) {
	if v <= 0 {
		return
	}
	d.mu.Lock()
	d.cfg.RiskRewardRatio = v
	d.mu.Unlock()
}

func (d *Detector) EnableSetup1(enable bool) {
	d.mu.Lock()
	d.cfg.Setup1Enabled = enable
	d.mu.Unlock()
}

func (d *Detector) EnableSetup2(enable bool) {
	d.mu.Lock()
	d.cfg.Setup2Enabled = enable
	d.mu.Unlock()
}

// Detect runs every enabled setup, Setup1 first, and returns the ones that fired.
func (d *Detector) Detect(snap brick.Snapshot) []model.PatternResult {
	cfg := d.Config()
	var out []model.PatternResult
	if cfg.Setup1Enabled {
		if r := detectSetup1(snap, cfg); r.Found() {
			out = append(out, r)
		}
	}
	if cfg.Setup2Enabled {
		if r := detectSetup2(snap, cfg); r.Found() {
			out = append(out, r)
		}
	}
	for _, r := range out {
		d.log.Infof("%s detected for %s, side %s entry %s stop %s", r.Kind, r.Symbol, r.Side, r.Entry, r.Stop)
	}
	return out
}

// DetectSetup1 fires when the last two completed bricks are down and the
// forming brick is up with completion at or above the threshold.
func (d *Detector) DetectSetup1(snap brick.Snapshot) model.PatternResult {
	return detectSetup1(snap, d.Config())
}

// DetectSetup2 fires on up,down,up (buy) or down,up,down (sell) with the forming
// brick's completion at or above the threshold.
func (d *Detector) DetectSetup2(snap brick.Snapshot) model.PatternResult {
	return detectSetup2(snap, d.Config())
}

func none(snap brick.Snapshot) model.PatternResult {
	return model.PatternResult{Kind: enum.PatternNone, Symbol: snap.Symbol, DetectedAt: snap.UpdatedAt}
}

func hasHistory(snap brick.Snapshot) bool {
	return snap.Total >= MinHistory && len(snap.Bricks) >= MinHistory
}

func detectSetup1(snap brick.Snapshot, cfg Config) model.PatternResult {
	if !hasHistory(snap) {
		return none(snap)
	}
	if !snap.HasConsecutive(enum.DirectionDown, 2) {
		return none(snap)
	}
	if snap.Forming.Direction != enum.DirectionUp || snap.Forming.Completion < cfg.PartialBrickThreshold {
		return none(snap)
	}
	return priced(snap, cfg, enum.PatternSetup1, enum.OrderSideBuy, Setup1Confidence)
}

func detectSetup2(snap brick.Snapshot, cfg Config) model.PatternResult {
	if !hasHistory(snap) {
		return none(snap)
	}
	if snap.Forming.Completion < cfg.PartialBrickThreshold {
		return none(snap)
	}
	switch {
	case snap.HasGreenRedGreen():
		return priced(snap, cfg, enum.PatternSetup2, enum.OrderSideBuy, Setup2Confidence)
	case snap.HasRedGreenRed():
		return priced(snap, cfg, enum.PatternSetup2, enum.OrderSideSell, Setup2Confidence)
	default:
		return none(snap)
	}
}

// priced fills entry and stop from the next brick level and the last close.
// Setup2 shares Setup1's price formulas.
func priced(snap brick.Snapshot, cfg Config, kind enum.PatternKind, side enum.OrderSide, confidence float64) model.PatternResult {
	return model.PatternResult{
		Kind:       kind,
		Symbol:     snap.Symbol,
		Bricks:     snap.Last(ReportedBricks),
		Confidence: confidence,
		Side:       side,
		Entry:      snap.EntryPrice(side, cfg.TickBuffer),
		Stop:       snap.CalculateStop(side, cfg.TickBuffer),
		Sequence:   snap.Sequence,
		DetectedAt: snap.UpdatedAt,
	}
}

// GenerateSignal prices a trade from a pattern. The quantity is the
// instrument's minimum lot; final sizing belongs to the risk manager.
func (d *Detector) GenerateSignal(p model.PatternResult, symbol model.SymbolConfig) model.TradingSignal {
	if !p.Found() {
		return model.TradingSignal{}
	}
	rr := decimal.NewFromFloat(d.Config().RiskRewardRatio)
	reward := p.Entry.Sub(p.Stop).Abs().Mul(rr)

	tp := p.Entry.Add(reward)
	if p.Side == enum.OrderSideSell {
		tp = p.Entry.Sub(reward)
	}

	qty := symbol.MinLotSize
	if !qty.IsPositive() {
		qty = model.DefaultRiskParameters().MinLotSize
	}

	return model.TradingSignal{
		Symbol:     p.Symbol,
		Pattern:    p.Kind,
		Side:       p.Side,
		Entry:      p.Entry,
		StopLoss:   p.Stop,
		TakeProfit: tp,
		Quantity:   qty,
		Confidence: p.Confidence,
		Timestamp:  p.DetectedAt,
	}
}

// ValidSignal checks that prices are positive and the stop sits on the losing side.
func ValidSignal(s model.TradingSignal) bool {
	if s.IsEmpty() || !s.Side.IsAvailable() {
		return false
	}
	if !s.Entry.IsPositive() || !s.StopLoss.IsPositive() || !s.TakeProfit.IsPositive() || !s.Quantity.IsPositive() {
		return false
	}
	if s.Side == enum.OrderSideBuy {
		return s.StopLoss.LessThan(s.Entry) && s.TakeProfit.GreaterThan(s.Entry)
	}
	return s.StopLoss.GreaterThan(s.Entry) && s.TakeProfit.LessThan(s.Entry)
}

// MarkActive records an open pattern trade for the symbol.
func (d *Detector) MarkActive(symbol string, kind enum.PatternKind, at time.Time) {
	d.activeMu.Lock()
	d.active[symbol] = activePattern{kind: kind, since: at}
	d.activeMu.Unlock()
}

// IsActive reports whether a pattern for symbol is still active at now.
// Entries older than the pattern timeout are dropped.
func (d *Detector) IsActive(symbol string, now time.Time) bool {
	timeout := d.Config().PatternTimeout
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	ap, ok := d.active[symbol]
	if !ok {
		return false
	}
	if now.Sub(ap.since) > timeout {
		delete(d.active, symbol)
		return false
	}
	return true
}

// ActiveKind returns the kind of the symbol's active pattern, if any.
func (d *Detector) ActiveKind(symbol string) enum.PatternKind {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	return d.active[symbol].kind
}

func (d *Detector) Clear(symbol string) {
	d.activeMu.Lock()
	delete(d.active, symbol)
	d.activeMu.Unlock()
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
