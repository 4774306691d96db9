package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"

	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/internal/obs"
	"renkotrader/pkg/exception"
)

// PaperConfig controls the simulated venue.
type PaperConfig struct {
	Seed           int64
	InitialBalance float64
	Currency       string
	// MaxSlippage is the largest adverse fill move as a fraction of price.
	MaxSlippage    float64
	RejectRate     float64
	CommissionRate float64
	Instruments    []model.InstrumentSpec
}

const defaultPaperBalance = 10_000

// Validate ensures the config is within supported ranges.
func (c PaperConfig) Validate() error {
	if c.MaxSlippage < 0 || c.MaxSlippage > 1 {
		return fmt.Errorf("maxSlippage must be between 0 and 1")
	}
	if c.RejectRate < 0 || c.RejectRate > 1 {
		return fmt.Errorf("rejectRate must be between 0 and 1")
	}
	if c.CommissionRate < 0 || c.CommissionRate > 1 {
		return fmt.Errorf("commissionRate must be between 0 and 1")
	}
	if c.InitialBalance < 0 {
		return fmt.Errorf("initialBalance must be >= 0")
	}
	return nil
}

// DefaultInstrument is the spec reported for symbols the simulator was not
// configured with.
func DefaultInstrument(symbol string) model.InstrumentSpec {
	return model.InstrumentSpec{
		Symbol:       symbol,
		TickSize:     decimal.Require("0.0001"),
		TickValue:    decimal.NewFromInt(1),
		MinLot:       decimal.Require("0.01"),
		MaxLot:       decimal.NewFromInt(100),
		LotStep:      decimal.Require("0.01"),
		ContractSize: decimal.NewFromInt(1),
		Tradable:     true,
	}
}

type paperFill struct {
	order  model.Order
	status enum.OrderStatus
}

// Paper is a simulated venue that fills every accepted order immediately.
type Paper struct {
	log       logs.Logger
	cfg       PaperConfig
	now       func() time.Time
	connected atomic.Bool
	seq       atomic.Uint64

	mu          sync.Mutex
	rng         *rand.Rand
	balance     float64
	commissions float64
	ticks       map[string]model.Tick
	specs       map[string]model.InstrumentSpec
	fills       map[string]paperFill
}

// NewPaper creates a simulator with validation.
func NewPaper(cfg PaperConfig, log logs.Logger) (*Paper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	if cfg.InitialBalance == 0 {
		cfg.InitialBalance = defaultPaperBalance
	}
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	p := &Paper{
		log:     obs.Component(log, "paper"),
		cfg:     cfg,
		now:     time.Now,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		balance: cfg.InitialBalance,
		ticks:   make(map[string]model.Tick),
		specs:   make(map[string]model.InstrumentSpec),
		fills:   make(map[string]paperFill),
	}
	for _, spec := range cfg.Instruments {
		p.specs[spec.Symbol] = spec
	}
	return p, nil
}

func (p *Paper) Venue() enum.Venue {
	return enum.VenuePaper
}

func (p *Paper) Connect(context.Context) error {
	if !p.connected.Swap(true) {
		p.log.Infof("paper venue connected, balance %.2f %s", p.balance, p.cfg.Currency)
	}
	return nil
}

func (p *Paper) IsConnected() bool {
	return p.connected.Load()
}

// Disconnect makes later placements fail until Connect is called again.
func (p *Paper) Disconnect() {
	p.connected.Store(false)
}

// PlaceOrder fills at the order price, or the trigger price for stops, moved
// against the order by a random slippage of at most MaxSlippage.
func (p *Paper) PlaceOrder(_ context.Context, order model.Order) (model.ExecutionReport, error) {
	if !p.IsConnected() {
		return model.ExecutionReport{}, exception.ErrVenueNotConnected
	}
	if !order.Quantity.IsPositive() {
		return model.ExecutionReport{}, exception.ErrOrderInvalid
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := "paper-" + strconv.FormatUint(p.seq.Add(1), 10)
	report := model.ExecutionReport{ExchangeOrderID: id, Timestamp: p.now()}

	if spec, ok := p.specs[order.Symbol]; ok && !spec.Tradable {
		report.Status = enum.OrderStatusRejected
		p.fills[id] = paperFill{order: order, status: report.Status}
		return report, nil
	}
	if p.cfg.RejectRate > 0 && p.rng.Float64() < p.cfg.RejectRate {
		report.Status = enum.OrderStatusRejected
		p.fills[id] = paperFill{order: order, status: report.Status}
		return report, nil
	}

	price := order.Price
	if order.Type.IsStop() && order.TriggerPrice.IsPositive() {
		price = order.TriggerPrice
	}
	if !price.IsPositive() {
		if t, ok := p.ticks[order.Symbol]; ok {
			price = t.Price()
		}
	}
	if !price.IsPositive() {
		return model.ExecutionReport{}, exception.ErrOrderInvalid
	}
	if p.cfg.MaxSlippage > 0 {
		move := decimal.NewFromFloat(p.rng.Float64() * p.cfg.MaxSlippage)
		price = price.Add(price.Mul(move).Mul(decimal.NewFromInt(order.Side.Sign()))).Round(8)
	}

	commission := price.Mul(order.Quantity).Mul(decimal.NewFromFloat(p.cfg.CommissionRate))
	fee := model.Float(commission)
	if fee > p.balance {
		return model.ExecutionReport{}, exception.ErrInsufficientBalance
	}
	p.balance -= fee
	p.commissions += fee

	report.Status = enum.OrderStatusFilled
	report.FilledQuantity = order.Quantity
	report.AvgPrice = price
	report.Commission = commission
	p.fills[id] = paperFill{order: order, status: report.Status}
	return report, nil
}

// CancelOrder fails for unknown ids and for orders already filled.
func (p *Paper) CancelOrder(_ context.Context, _, exchangeOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.fills[exchangeOrderID]
	if !ok {
		return exception.ErrOrderNotFound
	}
	if f.status.IsTerminal() {
		return exception.ErrOrderTerminal
	}
	f.status = enum.OrderStatusCancelled
	p.fills[exchangeOrderID] = f
	return nil
}

// UpdateTick records the latest quote for a symbol.
func (p *Paper) UpdateTick(tick model.Tick) {
	p.mu.Lock()
	p.ticks[tick.Symbol] = tick
	p.mu.Unlock()
}

func (p *Paper) LastTick(symbol string) (model.Tick, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.ticks[symbol]
	return t, ok
}

func (p *Paper) InstrumentSpec(_ context.Context, symbol string) (model.InstrumentSpec, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if spec, ok := p.specs[symbol]; ok {
		return spec, nil
	}
	return DefaultInstrument(symbol), nil
}

// Credit applies realized profit or loss to the simulated balance.
func (p *Paper) Credit(amount float64) {
	p.mu.Lock()
	p.balance += amount
	p.mu.Unlock()
}

func (p *Paper) AccountInfo(context.Context) (model.AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return model.AccountInfo{
		AccountID:   "paper",
		Balance:     p.balance,
		Equity:      p.balance,
		FreeMargin:  p.balance,
		MarginLevel: 0,
		Currency:    p.cfg.Currency,
	}, nil
}

// Commissions is the total fee charged so far.
func (p *Paper) Commissions() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commissions
}
