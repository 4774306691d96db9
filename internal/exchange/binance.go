package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"

	"renkotrader/internal/errors"
	"renkotrader/internal/model"
	"renkotrader/internal/model/enum"
	"renkotrader/internal/obs"
	"renkotrader/pkg/exception"
)

const (
	_binanceBaseURL        = "https://api.binance.com"
	_binanceBaseURLTestnet = "https://testnet.binance.vision"

	_binanceStreamURL        = "wss://stream.binance.com:9443/stream"
	_binanceStreamURLTestnet = "wss://stream.testnet.binance.vision/stream"

	_binanceDefaultRecvWindow = 5 * time.Second
)

// Binance is a spot REST adapter. Quotes arrive through Observe, usually fed
// by a BookTickerStream.
type Binance struct {
	log       logs.Logger
	cfg       Config
	client    *resty.Client
	now       func() time.Time
	connected atomic.Bool

	mu    sync.RWMutex
	ticks map[string]model.Tick
	specs map[string]model.InstrumentSpec
}

func NewBinance(cfg Config, log logs.Logger) (*Binance, error) {
	cfg = cfg.withDefaults()
	cfg.Venue = enum.VenueBinance
	if cfg.BaseURL == "" {
		cfg.BaseURL = _binanceBaseURL
		if cfg.Testnet {
			cfg.BaseURL = _binanceBaseURLTestnet
		}
	}
	if cfg.StreamURL == "" {
		cfg.StreamURL = _binanceStreamURL
		if cfg.Testnet {
			cfg.StreamURL = _binanceStreamURLTestnet
		}
	}
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = _binanceDefaultRecvWindow
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetTimeout(cfg.Timeout)

	return &Binance{
		log:    obs.Component(log, "binance"),
		cfg:    cfg,
		client: client,
		now:    time.Now,
		ticks:  make(map[string]model.Tick),
		specs:  make(map[string]model.InstrumentSpec),
	}, nil
}

func (b *Binance) Venue() enum.Venue {
	return enum.VenueBinance
}

// StreamURL is the combined-stream endpoint matching this client.
func (b *Binance) StreamURL() string {
	return b.cfg.StreamURL
}

// Connect pings the REST endpoint.
func (b *Binance) Connect(ctx context.Context) error {
	if err := b.public(ctx, "/api/v3/ping", nil, nil); err != nil {
		b.connected.Store(false)
		return errors.Wrap(err, "binance ping")
	}
	b.connected.Store(true)
	b.log.Infof("connected to %s", b.cfg.BaseURL)
	return nil
}

func (b *Binance) IsConnected() bool {
	return b.connected.Load()
}

type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type binanceFill struct {
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
}

type binanceOrderResponse struct {
	Symbol              string        `json:"symbol"`
	OrderID             int64         `json:"orderId"`
	ClientOrderID       string        `json:"clientOrderId"`
	TransactTime        int64         `json:"transactTime"`
	Status              string        `json:"status"`
	ExecutedQty         string        `json:"executedQty"`
	CummulativeQuoteQty string        `json:"cummulativeQuoteQty"`
	Fills               []binanceFill `json:"fills"`
}

func binanceSide(side enum.OrderSide) string {
	if side == enum.OrderSideSell {
		return "SELL"
	}
	return "BUY"
}

func binanceStatus(status string) enum.OrderStatus {
	switch status {
	case "NEW", "PENDING_NEW":
		return enum.OrderStatusSubmitted
	case "PARTIALLY_FILLED":
		return enum.OrderStatusPartiallyFilled
	case "FILLED":
		return enum.OrderStatusFilled
	case "CANCELED", "PENDING_CANCEL":
		return enum.OrderStatusCancelled
	case "REJECTED":
		return enum.OrderStatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return enum.OrderStatusExpired
	default:
		return enum.OrderStatusSubmitted
	}
}

// orderParams maps an order onto /api/v3/order parameters. Stop intents
// become STOP_LOSS_LIMIT orders.
func orderParams(order model.Order) url.Values {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(order.Symbol))
	params.Set("side", binanceSide(order.Side))
	params.Set("quantity", order.Quantity.String())
	if order.ID != "" {
		params.Set("newClientOrderId", order.ID)
	}
	params.Set("newOrderRespType", "FULL")

	switch {
	case order.Type == enum.OrderTypeMarket:
		params.Set("type", "MARKET")
	case order.Type.IsStop():
		params.Set("type", "STOP_LOSS_LIMIT")
		params.Set("timeInForce", "GTC")
		params.Set("price", order.Price.String())
		stop := order.TriggerPrice
		if !stop.IsPositive() {
			stop = order.Price
		}
		params.Set("stopPrice", stop.String())
	default:
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "GTC")
		params.Set("price", order.Price.String())
	}
	return params
}

func (b *Binance) PlaceOrder(ctx context.Context, order model.Order) (model.ExecutionReport, error) {
	var resp binanceOrderResponse
	if err := b.signed(ctx, http.MethodPost, "/api/v3/order", orderParams(order), &resp); err != nil {
		return model.ExecutionReport{}, err
	}

	report := model.ExecutionReport{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:          binanceStatus(resp.Status),
		Timestamp:       time.UnixMilli(resp.TransactTime),
	}
	if resp.TransactTime == 0 {
		report.Timestamp = b.now()
	}
	// The order is live at this point, so a bad fill field is logged and the
	// report still carries the venue id.
	executed, err := parseDecimal("executedQty", resp.ExecutedQty)
	if err != nil {
		b.log.Errorf("order %s fill, err: %+v", order.ID, err)
	}
	quote, err := parseDecimal("cummulativeQuoteQty", resp.CummulativeQuoteQty)
	if err != nil {
		b.log.Errorf("order %s fill, err: %+v", order.ID, err)
		executed = decimal.Zero
	}
	if executed.IsPositive() {
		report.FilledQuantity = executed
		report.AvgPrice = quote.Div(executed)
	}
	for _, f := range resp.Fills {
		c, err := parseDecimal("commission", f.Commission)
		if err != nil {
			b.log.Errorf("order %s commission, err: %+v", order.ID, err)
			continue
		}
		report.Commission = report.Commission.Add(c)
	}
	return report, nil
}

func (b *Binance) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("orderId", exchangeOrderID)
	return b.signed(ctx, http.MethodDelete, "/api/v3/order", params, nil)
}

// Observe records a quote from the market data stream.
func (b *Binance) Observe(tick model.Tick) {
	b.mu.Lock()
	b.ticks[tick.Symbol] = tick
	b.mu.Unlock()
}

func (b *Binance) LastTick(symbol string) (model.Tick, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.ticks[strings.ToUpper(symbol)]
	return t, ok
}

type binanceBookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	BidQty   string `json:"bidQty"`
	AskPrice string `json:"askPrice"`
	AskQty   string `json:"askQty"`
}

// FetchTicker polls the best bid and ask and records them as the last tick.
func (b *Binance) FetchTicker(ctx context.Context, symbol string) (model.Tick, error) {
	var resp binanceBookTicker
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	if err := b.public(ctx, "/api/v3/ticker/bookTicker", params, &resp); err != nil {
		return model.Tick{}, err
	}
	bid, err := parseDecimal("bidPrice", resp.BidPrice)
	if err != nil {
		return model.Tick{}, err
	}
	ask, err := parseDecimal("askPrice", resp.AskPrice)
	if err != nil {
		return model.Tick{}, err
	}
	tick := model.Tick{Symbol: resp.Symbol, Bid: bid, Ask: ask, Timestamp: b.now()}
	b.Observe(tick)
	return tick, nil
}

type binanceFilter struct {
	FilterType string `json:"filterType"`
	TickSize   string `json:"tickSize"`
	MinQty     string `json:"minQty"`
	MaxQty     string `json:"maxQty"`
	StepSize   string `json:"stepSize"`
}

type binanceSymbol struct {
	Symbol  string          `json:"symbol"`
	Status  string          `json:"status"`
	Filters []binanceFilter `json:"filters"`
}

type binanceExchangeInfo struct {
	Symbols []binanceSymbol `json:"symbols"`
}

// InstrumentSpec loads and caches the symbol's price and lot filters.
func (b *Binance) InstrumentSpec(ctx context.Context, symbol string) (model.InstrumentSpec, error) {
	symbol = strings.ToUpper(symbol)
	b.mu.RLock()
	spec, ok := b.specs[symbol]
	b.mu.RUnlock()
	if ok {
		return spec, nil
	}

	var info binanceExchangeInfo
	params := url.Values{}
	params.Set("symbol", symbol)
	if err := b.public(ctx, "/api/v3/exchangeInfo", params, &info); err != nil {
		return model.InstrumentSpec{}, err
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		spec = model.InstrumentSpec{
			Symbol:       s.Symbol,
			TickValue:    decimal.NewFromInt(1),
			ContractSize: decimal.NewFromInt(1),
			Tradable:     s.Status == "TRADING",
		}
		if err := applyFilters(&spec, s.Filters); err != nil {
			return model.InstrumentSpec{}, errors.Wrapf(err, "symbol %s", symbol)
		}
		b.mu.Lock()
		b.specs[symbol] = spec
		b.mu.Unlock()
		return spec, nil
	}
	return model.InstrumentSpec{}, errors.Wrapf(exception.ErrUnknownInstrument, "symbol %s", symbol)
}

func applyFilters(spec *model.InstrumentSpec, filters []binanceFilter) error {
	var err error
	for _, f := range filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			if spec.TickSize, err = parseDecimal("tickSize", f.TickSize); err != nil {
				return err
			}
		case "LOT_SIZE":
			if spec.MinLot, err = parseDecimal("minQty", f.MinQty); err != nil {
				return err
			}
			if spec.MaxLot, err = parseDecimal("maxQty", f.MaxQty); err != nil {
				return err
			}
			if spec.LotStep, err = parseDecimal("stepSize", f.StepSize); err != nil {
				return err
			}
		}
	}
	return nil
}

type binanceBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type binanceAccount struct {
	UID      int64            `json:"uid"`
	CanTrade bool             `json:"canTrade"`
	Balances []binanceBalance `json:"balances"`
}

// AccountInfo reports the quote currency balance as equity.
func (b *Binance) AccountInfo(ctx context.Context) (model.AccountInfo, error) {
	var acct binanceAccount
	if err := b.signed(ctx, http.MethodGet, "/api/v3/account", url.Values{}, &acct); err != nil {
		return model.AccountInfo{}, err
	}
	info := model.AccountInfo{
		AccountID: strconv.FormatInt(acct.UID, 10),
		Currency:  b.cfg.Currency,
	}
	for _, bal := range acct.Balances {
		if bal.Asset != b.cfg.Currency {
			continue
		}
		free, err := parseDecimal("free", bal.Free)
		if err != nil {
			return model.AccountInfo{}, err
		}
		locked, err := parseDecimal("locked", bal.Locked)
		if err != nil {
			return model.AccountInfo{}, err
		}
		info.Balance = model.Float(free.Add(locked))
		info.Equity = info.Balance
		info.FreeMargin = model.Float(free)
		info.Margin = model.Float(locked)
	}
	return info, nil
}

// sign returns the hex HMAC-SHA256 of payload keyed by the API secret.
func (b *Binance) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(b.cfg.APISecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// signed sends a SIGNED endpoint request. The signature is appended last so
// the signed payload is exactly the query string that precedes it.
func (b *Binance) signed(ctx context.Context, method, path string, params url.Values, out any) error {
	if b.cfg.APIKey == "" || b.cfg.APISecret == "" {
		return exception.ErrMissingCredentials
	}
	params.Set("recvWindow", strconv.FormatInt(b.cfg.RecvWindow.Milliseconds(), 10))
	params.Set("timestamp", strconv.FormatInt(b.now().UnixMilli(), 10))
	query := params.Encode()
	query += "&signature=" + b.sign(query)

	req := b.client.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", b.cfg.APIKey)
	return b.do(req, method, path+"?"+query, out)
}

func (b *Binance) public(ctx context.Context, path string, params url.Values, out any) error {
	target := path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	return b.do(b.client.R().SetContext(ctx), http.MethodGet, target, out)
}

func (b *Binance) do(req *resty.Request, method, target string, out any) error {
	resp, err := req.Execute(method, target)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, target)
	}
	if resp.IsError() {
		var apiErr binanceError
		if err := sonic.Unmarshal(resp.Body(), &apiErr); err == nil && apiErr.Msg != "" {
			return errors.Wrapf(exception.ErrVenueResponse, "status %d, code %d: %s", resp.StatusCode(), apiErr.Code, apiErr.Msg)
		}
		return errors.Wrapf(exception.ErrVenueResponse, "status %d", resp.StatusCode())
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrap(exception.ErrVenueResponse, err.Error())
	}
	return nil
}

// parseDecimal reads a numeric string field of a venue response.
func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.New(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(exception.ErrVenueResponse, "field %s %q: %s", field, raw, err)
	}
	return d, nil
}
