package brick

import (
	"sync"
	"time"

	"github.com/yanun0323/decimal"

	"renkotrader/internal/errors"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/pkg/exception"
)

const DefaultMaxBricks = 1000

var DefaultTickValue = decimal.Require("0.0001")

// Config describes one instrument's brick construction.
type Config struct {
	Symbol    string
	BrickSize decimal.Decimal
	TickValue decimal.Decimal
	MaxBricks int
}

// Validate ensures the config can build bricks.
func (c Config) Validate() error {
	if !c.BrickSize.IsPositive() {
		return errors.Wrap(exception.ErrInvalidArgument, "brick size must be > 0")
	}
	if c.MaxBricks < 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "max bricks must be >= 0")
	}
	if c.TickValue.Sign() < 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "tick value must be >= 0")
	}
	return nil
}

// Engine turns a price stream into completed bricks plus one forming brick.
// AddPrice must be called by a single producer per instrument; queries may
// run concurrently with it.
type Engine struct {
	mu        sync.RWMutex
	symbol    string
	size      decimal.Decimal
	tickValue decimal.Decimal
	maxBricks int

	bricks     []model.Brick
	forming    model.FormingBrick
	ref        decimal.Decimal
	lastPrice  decimal.Decimal
	lastUpdate time.Time
	seeded     bool
	seq        uint64
}

// NewEngine creates a brick engine. A zero MaxBricks selects DefaultMaxBricks
// and a zero TickValue selects DefaultTickValue.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxBricks == 0 {
		cfg.MaxBricks = DefaultMaxBricks
	}
	if cfg.TickValue.IsZero() {
		cfg.TickValue = DefaultTickValue
	}
	return &Engine{
		symbol:    cfg.Symbol,
		size:      cfg.BrickSize,
		tickValue: cfg.TickValue,
		maxBricks: cfg.MaxBricks,
		bricks:    make([]model.Brick, 0, min(cfg.MaxBricks, 64)),
	}, nil
}

// AddPrice feeds one price observation and returns the number of bricks it completed.
// Non-positive prices are dropped.
func (e *Engine) AddPrice(price decimal.Decimal, ts time.Time) int {
	if !price.IsPositive() {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastPrice = price
	e.lastUpdate = ts

	if !e.seeded {
		e.seeded = true
		e.ref = price
		e.forming = model.FormingBrick{Open: price, Timestamp: ts}
		return 0
	}

	emitted := 0
	for up := e.ref.Add(e.size); price.GreaterThanOrEqual(up); up = e.ref.Add(e.size) {
		e.emit(e.ref, up, enum.DirectionUp, ts)
		emitted++
	}
	for down := e.ref.Sub(e.size); price.LessThanOrEqual(down); down = e.ref.Sub(e.size) {
		e.emit(e.ref, down, enum.DirectionDown, ts)
		emitted++
	}

	e.updateForming(price, ts)
	return emitted
}

// AddTick feeds the tick's trade price (mid price when no trade price is set).
func (e *Engine) AddTick(t model.Tick) int {
	return e.AddPrice(t.Price(), t.Timestamp)
}

func (e *Engine) emit(open, close decimal.Decimal, dir enum.Direction, ts time.Time) {
	b := model.Brick{
		Open:       open,
		Close:      close,
		High:       decimal.Max(open, close),
		Low:        model.MinDecimal(open, close),
		Timestamp:  ts,
		Direction:  dir,
		Completion: 1,
	}
	e.bricks = append(e.bricks, b)
	if len(e.bricks) > e.maxBricks {
		e.bricks[0] = model.Brick{}
		e.bricks = e.bricks[1:]
	}
	e.ref = close
	e.seq++
	e.forming = model.FormingBrick{Open: close, Direction: dir, Timestamp: ts}
}

func (e *Engine) updateForming(price decimal.Decimal, ts time.Time) {
	diff := price.Sub(e.ref)
	switch diff.Sign() {
	case 1:
		e.forming.Direction = enum.DirectionUp
	case -1:
		e.forming.Direction = enum.DirectionDown
	}
	e.forming.Open = e.ref
	e.forming.Completion = completion(diff, e.size)
	e.forming.Timestamp = ts
}

func completion(diff, size decimal.Decimal) float64 {
	if !size.IsPositive() {
		return 0
	}
	c := model.Float(diff.Abs().Div(size))
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// SetBrickSize changes the size used for future bricks. Non-positive sizes are ignored.
func (e *Engine) SetBrickSize(size decimal.Decimal) bool {
	if !size.IsPositive() {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.size = size
	if e.seeded {
		e.forming.Completion = completion(e.lastPrice.Sub(e.ref), size)
	}
	return true
}

// SetTickValue changes the price value of one tick. Non-positive values are ignored.
func (e *Engine) SetTickValue(v decimal.Decimal) bool {
	if !v.IsPositive() {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickValue = v
	return true
}

// Reset drops all bricks and the seed price.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bricks = e.bricks[:0]
	e.forming = model.FormingBrick{}
	e.ref = decimal.Zero
	e.lastPrice = decimal.Zero
	e.lastUpdate = time.Time{}
	e.seeded = false
}

func (e *Engine) Symbol() string {
	return e.symbol
}

func (e *Engine) BrickSize() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.size
}

func (e *Engine) TickValue() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tickValue
}

func (e *Engine) BrickCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.bricks)
}

func (e *Engine) LastPrice() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastPrice
}

func (e *Engine) LastUpdate() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastUpdate
}

// Bricks returns the last count completed bricks oldest first; 0 returns all.
func (e *Engine) Bricks(count int) []model.Brick {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view().Last(count)
}

func (e *Engine) LastBrick() (model.Brick, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view().LastBrick()
}

func (e *Engine) FormingBrick() model.FormingBrick {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.forming
}

func (e *Engine) PartialCompletion() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.forming.Completion
}

func (e *Engine) HasConsecutiveUp(n int) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view().HasConsecutive(enum.DirectionUp, n)
}

func (e *Engine) HasConsecutiveDown(n int) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view().HasConsecutive(enum.DirectionDown, n)
}

func (e *Engine) ConsecutiveCount(dir enum.Direction) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view().ConsecutiveCount(dir)
}

func (e *Engine) HasGreenRedGreen() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view().HasGreenRedGreen()
}

func (e *Engine) HasRedGreenRed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view().HasRedGreenRed()
}

func (e *Engine) NextUpLevel() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view().NextUpLevel()
}

func (e *Engine) NextDownLevel() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view().NextDownLevel()
}

// CalculateStop places a stop one brick beyond the last completed close plus tickBuffer ticks.
func (e *Engine) CalculateStop(side enum.OrderSide, tickBuffer int) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view().CalculateStop(side, tickBuffer)
}

// EntryPrice is the next brick level in the trade direction plus tickBuffer ticks.
func (e *Engine) EntryPrice(side enum.OrderSide, tickBuffer int) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view().EntryPrice(side, tickBuffer)
}

// Snapshot copies the current state. depth limits the copied bricks to the
// most recent ones; depth <= 0 copies all of them.
func (e *Engine) Snapshot(depth int) Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.view()
	s.Bricks = s.Last(depth)
	return s
}

// view aliases internal state; callers must hold the lock and must not leak it.
func (e *Engine) view() Snapshot {
	return Snapshot{
		Symbol:    e.symbol,
		Bricks:    e.bricks,
		Forming:   e.forming,
		BrickSize: e.size,
		TickValue: e.tickValue,
		Reference: e.ref,
		LastPrice: e.lastPrice,
		Sequence:  e.seq,
		Total:     len(e.bricks),
		Seeded:    e.seeded,
		UpdatedAt: e.lastUpdate,
	}
}
