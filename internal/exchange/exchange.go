package exchange

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"renkotrader/internal/errors"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/pkg/exception"
)

// Exchange is the capability set the trading core needs from a venue.
type Exchange interface {
	Venue() enum.Venue
	Connect(ctx context.Context) error
	IsConnected() bool
	PlaceOrder(ctx context.Context, order model.Order) (model.ExecutionReport, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	LastTick(symbol string) (model.Tick, bool)
	InstrumentSpec(ctx context.Context, symbol string) (model.InstrumentSpec, error)
	AccountInfo(ctx context.Context) (model.AccountInfo, error)
}

// Config holds endpoint settings for one venue.
type Config struct {
	Venue      enum.Venue
	BaseURL    string
	StreamURL  string
	APIKey     string
	APISecret  string
	Testnet    bool
	Currency   string
	Timeout    time.Duration
	RecvWindow time.Duration
	Paper      PaperConfig
}

const (
	defaultTimeout  = 15 * time.Second
	defaultCurrency = "USDT"
)

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Currency == "" {
		c.Currency = defaultCurrency
	}
	return c
}

// Factory builds an exchange from its config.
type Factory func(cfg Config, log logs.Logger) (Exchange, error)

// Registry maps venue names to constructors. Venues without a factory are
// known but unsupported.
type Registry struct {
	mu        sync.RWMutex
	factories map[enum.Venue]Factory
}

// NewRegistry returns a registry with the paper and Binance venues installed.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[enum.Venue]Factory)}
	r.Register(enum.VenuePaper, func(cfg Config, log logs.Logger) (Exchange, error) {
		return NewPaper(cfg.Paper, log)
	})
	r.Register(enum.VenueBinance, func(cfg Config, log logs.Logger) (Exchange, error) {
		return NewBinance(cfg, log)
	})
	return r
}

func (r *Registry) Register(venue enum.Venue, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f == nil {
		delete(r.factories, venue)
		return
	}
	r.factories[venue] = f
}

// New builds the venue named in cfg.
func (r *Registry) New(cfg Config, log logs.Logger) (Exchange, error) {
	if !cfg.Venue.IsAvailable() {
		return nil, exception.ErrUnsupportedVenue
	}
	r.mu.RLock()
	f, ok := r.factories[cfg.Venue]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(exception.ErrUnsupportedVenue, "venue %s", cfg.Venue)
	}
	return f(cfg, log)
}

// NewByName resolves a venue name and builds it.
func (r *Registry) NewByName(name string, cfg Config, log logs.Logger) (Exchange, error) {
	venue, ok := enum.ParseVenue(name)
	if !ok {
		return nil, errors.Wrapf(exception.ErrUnsupportedVenue, "venue %q", name)
	}
	cfg.Venue = venue
	return r.New(cfg, log)
}

// Supported lists venues with a factory, in declaration order.
func (r *Registry) Supported() []enum.Venue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]enum.Venue, 0, len(r.factories))
	for v := range r.factories {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
