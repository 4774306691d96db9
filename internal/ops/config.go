package ops

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/yanun0323/decimal"
	"gopkg.in/yaml.v3"

	"renkotrader/internal/engine"
	"renkotrader/internal/errors"
	"renkotrader/internal/exchange"
	"renkotrader/internal/feed"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/internal/order"
	"renkotrader/internal/pattern"
	"renkotrader/pkg/conn"
	"renkotrader/pkg/exception"
)

const (
	ModeLive  = "live"
	ModePaper = "paper"

	envPrefix = "RENKO_"
)

// FileConfig mirrors the YAML config layout.
type FileConfig struct {
	Mode       string           `yaml:"mode"`
	LogLevel   string           `yaml:"log_level"`
	Risk       RiskConfig       `yaml:"risk"`
	Pattern    PatternConfig    `yaml:"pattern"`
	Orders     OrdersConfig     `yaml:"orders"`
	Engine     EngineConfig     `yaml:"engine"`
	Symbols    []SymbolConfig   `yaml:"symbols"`
	Exchanges  []ExchangeConfig `yaml:"exchanges"`
	Database   DatabaseConfig   `yaml:"database"`
	Profiling  ProfilingConfig  `yaml:"profiling"`
	Simulation SimulationConfig `yaml:"simulation"`
}

type RiskConfig struct {
	DailyRiskPercent     float64 `yaml:"daily_risk_percent"`
	MaxDrawdownPercent   float64 `yaml:"max_drawdown_percent"`
	ConsecutiveLossLimit int     `yaml:"consecutive_loss_limit"`
	CapitalUtilization   float64 `yaml:"capital_utilization"`
	OrdersPerCounter     int     `yaml:"orders_per_counter"`
	MinLotSize           string  `yaml:"min_lot_size"`
	PaperTradingMode     bool    `yaml:"paper_trading_mode"`
}

type PatternConfig struct {
	MinConfidence         *float64      `yaml:"min_confidence"`
	PartialBrickThreshold float64       `yaml:"partial_brick_threshold"`
	TickBuffer            int           `yaml:"tick_buffer"`
	Setup1Enabled         *bool         `yaml:"setup1_enabled"`
	Setup2Enabled         *bool         `yaml:"setup2_enabled"`
	RiskRewardRatio       float64       `yaml:"risk_reward_ratio"`
	PatternTimeout        time.Duration `yaml:"pattern_timeout"`
}

type OrdersConfig struct {
	QueueSize     int           `yaml:"queue_size"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	OrderTTL      time.Duration `yaml:"order_ttl"`
	HistoryLimit  int           `yaml:"history_limit"`
	MaxSlippage   float64       `yaml:"max_slippage"`
	SmartRouting  bool          `yaml:"smart_routing"`
	DefaultVenue  string        `yaml:"default_venue"`
}

type EngineConfig struct {
	TickQueueSize int     `yaml:"tick_queue_size"`
	InitialEquity float64 `yaml:"initial_equity"`
	Currency      string  `yaml:"currency"`
	PointValue    float64 `yaml:"point_value"`
	ChargeRate    float64 `yaml:"charge_rate"`
}

type SymbolConfig struct {
	Symbol            string  `yaml:"symbol"`
	Venue             string  `yaml:"venue"`
	BrickSize         string  `yaml:"brick_size"`
	TickValue         string  `yaml:"tick_value"`
	MinLotSize        string  `yaml:"min_lot_size"`
	CapitalAllocation float64 `yaml:"capital_allocation"`
	MaxBricks         int     `yaml:"max_bricks"`
	Enabled           *bool   `yaml:"enabled"`
}

type ExchangeConfig struct {
	Venue          string        `yaml:"venue"`
	BaseURL        string        `yaml:"base_url"`
	StreamURL      string        `yaml:"stream_url"`
	APIKey         string        `yaml:"api_key"`
	APISecret      string        `yaml:"api_secret"`
	Testnet        bool          `yaml:"testnet"`
	Currency       string        `yaml:"currency"`
	Timeout        time.Duration `yaml:"timeout"`
	Seed           int64         `yaml:"seed"`
	InitialBalance float64       `yaml:"initial_balance"`
	MaxSlippage    float64       `yaml:"max_slippage"`
	RejectRate     float64       `yaml:"reject_rate"`
	CommissionRate float64       `yaml:"commission_rate"`
}

type DatabaseConfig struct {
	Enabled   bool              `yaml:"enabled"`
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Database  string            `yaml:"database"`
	SSLMode   string            `yaml:"ssl_mode"`
	Params    map[string]string `yaml:"params"`
	QueueSize int               `yaml:"queue_size"`
}

type ProfilingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ServerAddress string `yaml:"server_address"`
	AppName       string `yaml:"app_name"`
}

type SimulationConfig struct {
	Seed       int64         `yaml:"seed"`
	Ticks      int           `yaml:"ticks"`
	Volatility float64       `yaml:"volatility"`
	Drift      float64       `yaml:"drift"`
	Spread     string        `yaml:"spread"`
	Step       time.Duration `yaml:"step"`
	Interval   time.Duration `yaml:"interval"`
	// Start prices keyed by symbol; symbols without one start at 100.
	Start map[string]string `yaml:"start"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Mode       string
	LogLevel   string
	Risk       model.RiskParameters
	Pattern    pattern.Config
	Orders     order.Config
	Engine     engine.Config
	Exchanges  []exchange.Config
	Database   Database
	Profiling  ProfilingConfig
	Simulation Simulation
}

// Paper reports whether the engine should start in paper mode.
func (l Loaded) Paper() bool {
	return l.Mode == ModePaper || l.Risk.PaperTradingMode
}

type Database struct {
	Enabled   bool
	Option    conn.Option
	QueueSize int
}

type Simulation struct {
	Ticks int
	Feed  feed.Config
}

const (
	defaultSimulationTicks = 10_000
	defaultStartPrice      = 100
)

// Load reads .env, then the YAML file at path, then RENKO_* overrides. An
// empty path resolves defaults plus the environment.
func Load(path string) (Loaded, error) {
	_ = godotenv.Load()

	var cfg FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, errors.Wrapf(exception.ErrConfigInvalid, "parse %s: %v", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return Resolve(cfg)
}

// applyEnvOverrides lets the environment replace secrets and mode settings.
func applyEnvOverrides(cfg *FileConfig) {
	if v := os.Getenv(envPrefix + "MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
		cfg.Database.Enabled = true
	}
	if v := os.Getenv(envPrefix + "DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv(envPrefix + "PYROSCOPE_ADDRESS"); v != "" {
		cfg.Profiling.ServerAddress = v
	}
	for i := range cfg.Exchanges {
		name := strings.ToUpper(strings.TrimSpace(cfg.Exchanges[i].Venue))
		if v := os.Getenv(envPrefix + name + "_API_KEY"); v != "" {
			cfg.Exchanges[i].APIKey = v
		}
		if v := os.Getenv(envPrefix + name + "_API_SECRET"); v != "" {
			cfg.Exchanges[i].APISecret = v
		}
	}
}

// Resolve validates a file config and fills defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch mode {
	case "":
		mode = ModePaper
	case ModeLive, ModePaper:
	default:
		return Loaded{}, errors.Wrapf(exception.ErrConfigInvalid, "mode %q", cfg.Mode)
	}

	risk, err := resolveRisk(cfg.Risk)
	if err != nil {
		return Loaded{}, err
	}
	pat, err := resolvePattern(cfg.Pattern)
	if err != nil {
		return Loaded{}, err
	}
	orders, err := resolveOrders(cfg.Orders)
	if err != nil {
		return Loaded{}, err
	}
	symbols, err := resolveSymbols(cfg.Symbols)
	if err != nil {
		return Loaded{}, err
	}
	exchanges, err := resolveExchanges(cfg.Exchanges)
	if err != nil {
		return Loaded{}, err
	}
	sim, err := resolveSimulation(cfg.Simulation, symbols)
	if err != nil {
		return Loaded{}, err
	}

	if cfg.Engine.InitialEquity < 0 || cfg.Engine.ChargeRate < 0 || cfg.Engine.PointValue < 0 {
		return Loaded{}, errors.Wrap(exception.ErrConfigInvalid, "engine values must be >= 0")
	}

	return Loaded{
		Mode:     mode,
		LogLevel: cfg.LogLevel,
		Risk:     risk,
		Pattern:  pat,
		Orders:   orders,
		Engine: engine.Config{
			Symbols:       symbols,
			TickQueueSize: cfg.Engine.TickQueueSize,
			InitialEquity: cfg.Engine.InitialEquity,
			Currency:      cfg.Engine.Currency,
			PointValue:    cfg.Engine.PointValue,
			ChargeRate:    cfg.Engine.ChargeRate,
		},
		Exchanges: exchanges,
		Database: Database{
			Enabled: cfg.Database.Enabled,
			Option: conn.Option{
				Host:       cfg.Database.Host,
				Port:       cfg.Database.Port,
				User:       cfg.Database.User,
				Password:   cfg.Database.Password,
				Database:   cfg.Database.Database,
				SSLMode:    cfg.Database.SSLMode,
				Params:     cfg.Database.Params,
				ConnString: cfg.Database.DSN,
			},
			QueueSize: cfg.Database.QueueSize,
		},
		Profiling:  resolveProfiling(cfg.Profiling),
		Simulation: sim,
	}, nil
}

func resolveRisk(cfg RiskConfig) (model.RiskParameters, error) {
	p := model.DefaultRiskParameters()
	if cfg.DailyRiskPercent != 0 {
		p.DailyRiskPercent = cfg.DailyRiskPercent
	}
	if cfg.MaxDrawdownPercent != 0 {
		p.MaxDrawdownPercent = cfg.MaxDrawdownPercent
	}
	if cfg.ConsecutiveLossLimit != 0 {
		p.ConsecutiveLossLimit = cfg.ConsecutiveLossLimit
	}
	if cfg.CapitalUtilization != 0 {
		p.CapitalUtilization = cfg.CapitalUtilization
	}
	if cfg.OrdersPerCounter != 0 {
		p.OrdersPerCounter = cfg.OrdersPerCounter
	}
	if cfg.MinLotSize != "" {
		lot, err := parsePositive("risk.min_lot_size", cfg.MinLotSize)
		if err != nil {
			return p, err
		}
		p.MinLotSize = lot
	}
	p.PaperTradingMode = cfg.PaperTradingMode

	switch {
	case p.DailyRiskPercent <= 0 || p.DailyRiskPercent > 1:
		return p, errors.Wrap(exception.ErrConfigInvalid, "risk.daily_risk_percent must be in (0, 1]")
	case p.MaxDrawdownPercent <= 0 || p.MaxDrawdownPercent > 1:
		return p, errors.Wrap(exception.ErrConfigInvalid, "risk.max_drawdown_percent must be in (0, 1]")
	case p.ConsecutiveLossLimit < 1:
		return p, errors.Wrap(exception.ErrConfigInvalid, "risk.consecutive_loss_limit must be >= 1")
	case p.CapitalUtilization <= 0 || p.CapitalUtilization > 1:
		return p, errors.Wrap(exception.ErrConfigInvalid, "risk.capital_utilization must be in (0, 1]")
	case p.OrdersPerCounter < 1:
		return p, errors.Wrap(exception.ErrConfigInvalid, "risk.orders_per_counter must be >= 1")
	}
	return p, nil
}

func resolvePattern(cfg PatternConfig) (pattern.Config, error) {
	p := pattern.DefaultConfig()
	if cfg.MinConfidence != nil {
		p.MinConfidence = *cfg.MinConfidence
	}
	if cfg.PartialBrickThreshold != 0 {
		p.PartialBrickThreshold = cfg.PartialBrickThreshold
	}
	if cfg.TickBuffer != 0 {
		p.TickBuffer = cfg.TickBuffer
	}
	if cfg.Setup1Enabled != nil {
		p.Setup1Enabled = *cfg.Setup1Enabled
	}
	if cfg.Setup2Enabled != nil {
		p.Setup2Enabled = *cfg.Setup2Enabled
	}
	if cfg.RiskRewardRatio != 0 {
		p.RiskRewardRatio = cfg.RiskRewardRatio
	}
	if cfg.PatternTimeout != 0 {
		p.PatternTimeout = cfg.PatternTimeout
	}

	switch {
	case p.MinConfidence < 0 || p.MinConfidence > 1:
		return p, errors.Wrap(exception.ErrConfigInvalid, "pattern.min_confidence must be in [0, 1]")
	case p.PartialBrickThreshold < 0.5 || p.PartialBrickThreshold > 1:
		return p, errors.Wrap(exception.ErrConfigInvalid, "pattern.partial_brick_threshold must be in [0.5, 1]")
	case p.TickBuffer < 1:
		return p, errors.Wrap(exception.ErrConfigInvalid, "pattern.tick_buffer must be >= 1")
	case p.RiskRewardRatio <= 0:
		return p, errors.Wrap(exception.ErrConfigInvalid, "pattern.risk_reward_ratio must be > 0")
	case p.PatternTimeout < 0:
		return p, errors.Wrap(exception.ErrConfigInvalid, "pattern.pattern_timeout must be >= 0")
	}
	return p, nil
}

func resolveOrders(cfg OrdersConfig) (order.Config, error) {
	out := order.Config{
		QueueSize:     cfg.QueueSize,
		SweepInterval: cfg.SweepInterval,
		OrderTTL:      cfg.OrderTTL,
		HistoryLimit:  cfg.HistoryLimit,
		MaxSlippage:   cfg.MaxSlippage,
		SmartRouting:  cfg.SmartRouting,
	}
	if cfg.DefaultVenue != "" {
		v, ok := enum.ParseVenue(cfg.DefaultVenue)
		if !ok {
			return out, errors.Wrapf(exception.ErrConfigUnknownVenue, "orders.default_venue %q", cfg.DefaultVenue)
		}
		out.DefaultVenue = v
	}
	if cfg.QueueSize < 0 || cfg.HistoryLimit < 0 || cfg.MaxSlippage < 0 {
		return out, errors.Wrap(exception.ErrConfigInvalid, "orders values must be >= 0")
	}
	return out, nil
}

func resolveSymbols(cfgs []SymbolConfig) ([]model.SymbolConfig, error) {
	if len(cfgs) == 0 {
		return nil, exception.ErrConfigNoSymbols
	}
	seen := make(map[string]struct{}, len(cfgs))
	out := make([]model.SymbolConfig, 0, len(cfgs))
	for _, c := range cfgs {
		name := strings.TrimSpace(c.Symbol)
		if name == "" {
			return nil, errors.Wrap(exception.ErrConfigInvalid, "symbol name is empty")
		}
		if _, dup := seen[name]; dup {
			return nil, errors.Wrapf(exception.ErrConfigInvalid, "duplicate symbol %s", name)
		}
		seen[name] = struct{}{}

		venue := enum.VenuePaper
		if c.Venue != "" {
			v, ok := enum.ParseVenue(c.Venue)
			if !ok {
				return nil, errors.Wrapf(exception.ErrConfigUnknownVenue, "symbol %s venue %q", name, c.Venue)
			}
			venue = v
		}
		brickSize, err := parsePositive(name+".brick_size", c.BrickSize)
		if err != nil {
			return nil, err
		}
		sc := model.SymbolConfig{
			Symbol:            name,
			Venue:             venue,
			BrickSize:         brickSize,
			CapitalAllocation: c.CapitalAllocation,
			MaxBricks:         c.MaxBricks,
			Enabled:           c.Enabled == nil || *c.Enabled,
		}
		if c.TickValue != "" {
			if sc.TickValue, err = parsePositive(name+".tick_value", c.TickValue); err != nil {
				return nil, err
			}
		}
		if c.MinLotSize != "" {
			if sc.MinLotSize, err = parsePositive(name+".min_lot_size", c.MinLotSize); err != nil {
				return nil, err
			}
		}
		if c.CapitalAllocation < 0 || c.CapitalAllocation > 1 {
			return nil, errors.Wrapf(exception.ErrConfigInvalid, "%s.capital_allocation must be in [0, 1]", name)
		}
		out = append(out, sc)
	}
	return out, nil
}

func resolveExchanges(cfgs []ExchangeConfig) ([]exchange.Config, error) {
	out := make([]exchange.Config, 0, len(cfgs))
	for _, c := range cfgs {
		v, ok := enum.ParseVenue(c.Venue)
		if !ok {
			return nil, errors.Wrapf(exception.ErrConfigUnknownVenue, "exchange %q", c.Venue)
		}
		paper := exchange.PaperConfig{
			Seed:           c.Seed,
			InitialBalance: c.InitialBalance,
			Currency:       c.Currency,
			MaxSlippage:    c.MaxSlippage,
			RejectRate:     c.RejectRate,
			CommissionRate: c.CommissionRate,
		}
		if err := paper.Validate(); err != nil {
			return nil, errors.Wrapf(exception.ErrConfigInvalid, "exchange %s: %v", v, err)
		}
		out = append(out, exchange.Config{
			Venue:     v,
			BaseURL:   c.BaseURL,
			StreamURL: c.StreamURL,
			APIKey:    c.APIKey,
			APISecret: c.APISecret,
			Testnet:   c.Testnet,
			Currency:  c.Currency,
			Timeout:   c.Timeout,
			Paper:     paper,
		})
	}
	return out, nil
}

func resolveProfiling(cfg ProfilingConfig) ProfilingConfig {
	if cfg.AppName == "" {
		cfg.AppName = "renkotrader"
	}
	if cfg.ServerAddress == "" {
		cfg.ServerAddress = "http://localhost:4040"
	}
	return cfg
}

func resolveSimulation(cfg SimulationConfig, symbols []model.SymbolConfig) (Simulation, error) {
	ticks := cfg.Ticks
	if ticks <= 0 {
		ticks = defaultSimulationTicks
	}
	spread := decimal.Zero
	if cfg.Spread != "" {
		s, err := decimal.New(cfg.Spread)
		if err != nil || s.Sign() < 0 {
			return Simulation{}, errors.Wrapf(exception.ErrConfigInvalid, "simulation.spread %q", cfg.Spread)
		}
		spread = s
	}

	fc := feed.Config{Seed: cfg.Seed, Step: cfg.Step, Interval: cfg.Interval}
	for _, s := range symbols {
		if !s.Enabled {
			continue
		}
		start := decimal.NewFromInt(defaultStartPrice)
		if raw, ok := cfg.Start[s.Symbol]; ok {
			p, err := parsePositive("simulation.start."+s.Symbol, raw)
			if err != nil {
				return Simulation{}, err
			}
			start = p
		}
		fc.Instruments = append(fc.Instruments, feed.Instrument{
			Symbol:     s.Symbol,
			Start:      start,
			Volatility: cfg.Volatility,
			Drift:      cfg.Drift,
			Spread:     spread,
		})
	}
	if len(fc.Instruments) > 0 {
		if err := fc.Validate(); err != nil {
			return Simulation{}, errors.Wrapf(exception.ErrConfigInvalid, "simulation: %v", err)
		}
	}
	return Simulation{Ticks: ticks, Feed: fc}, nil
}

func parsePositive(field, raw string) (decimal.Decimal, error) {
	v, err := decimal.New(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, errors.Wrapf(exception.ErrConfigInvalid, "%s %q", field, raw)
	}
	if !v.IsPositive() {
		return decimal.Zero, errors.Wrap(exception.ErrConfigInvalid, field+" must be > 0")
	}
	return v, nil
}
