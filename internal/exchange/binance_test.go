package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renkotrader/internal/model/enum"
	"renkotrader/pkg/exception"
)

const (
	testKey    = "api-key"
	testSecret = "api-secret"
)

func validSignature(rawQuery string) bool {
	idx := strings.LastIndex(rawQuery, "&signature=")
	if idx < 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(rawQuery[:idx]))
	return hex.EncodeToString(mac.Sum(nil)) == rawQuery[idx+len("&signature="):]
}

func newTestBinance(t *testing.T, handler http.HandlerFunc) *Binance {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	b, err := NewBinance(Config{BaseURL: srv.URL, APIKey: testKey, APISecret: testSecret}, nil)
	require.NoError(t, err)
	b.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return b
}

func TestBinanceDefaults(t *testing.T) {
	b, err := NewBinance(Config{Testnet: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, _binanceBaseURLTestnet, b.cfg.BaseURL)
	assert.Equal(t, _binanceStreamURLTestnet, b.StreamURL())
	assert.Equal(t, "USDT", b.cfg.Currency)

	_, err = b.PlaceOrder(t.Context(), paperOrder(enum.OrderSideBuy))
	assert.ErrorIs(t, err, exception.ErrMissingCredentials)
}

func TestBinanceConnect(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ping", r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	})
	require.NoError(t, b.Connect(t.Context()))
	assert.True(t, b.IsConnected())
}

func TestBinancePlaceLimitOrder(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, testKey, r.Header.Get("X-MBX-APIKEY"))
		assert.True(t, validSignature(r.URL.RawQuery), r.URL.RawQuery)

		q := r.URL.Query()
		assert.Equal(t, "EURUSD", q.Get("symbol"))
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "LIMIT", q.Get("type"))
		assert.Equal(t, "GTC", q.Get("timeInForce"))
		assert.Equal(t, "1.1", q.Get("price"))
		assert.Equal(t, "2", q.Get("quantity"))
		assert.Equal(t, "o-1", q.Get("newClientOrderId"))
		assert.Equal(t, "1700000000000", q.Get("timestamp"))
		assert.Equal(t, "5000", q.Get("recvWindow"))

		_, _ = w.Write([]byte(`{
			"symbol":"EURUSD","orderId":42,"clientOrderId":"o-1","transactTime":1700000000123,
			"status":"FILLED","executedQty":"2","cummulativeQuoteQty":"2.2004",
			"fills":[
				{"price":"1.1","qty":"1","commission":"0.001","commissionAsset":"USDT"},
				{"price":"1.1004","qty":"1","commission":"0.002","commissionAsset":"USDT"}
			]}`))
	})

	r, err := b.PlaceOrder(t.Context(), paperOrder(enum.OrderSideBuy))
	require.NoError(t, err)
	assert.Equal(t, "42", r.ExchangeOrderID)
	assert.Equal(t, enum.OrderStatusFilled, r.Status)
	assert.True(t, r.FilledQuantity.Equal(d("2")))
	assert.True(t, r.AvgPrice.Equal(d("1.1002")), r.AvgPrice.String())
	assert.True(t, r.Commission.Equal(d("0.003")))
	assert.Equal(t, int64(1700000000123), r.Timestamp.UnixMilli())
}

func TestBinanceStopOrderParams(t *testing.T) {
	o := paperOrder(enum.OrderSideSell)
	o.Type = enum.OrderTypeStop
	o.TriggerPrice = d("1.0998")
	q := orderParams(o)
	assert.Equal(t, "STOP_LOSS_LIMIT", q.Get("type"))
	assert.Equal(t, "SELL", q.Get("side"))
	assert.Equal(t, "1.0998", q.Get("stopPrice"))
	assert.Equal(t, "1.1", q.Get("price"))

	o.Type = enum.OrderTypeMarket
	q = orderParams(o)
	assert.Equal(t, "MARKET", q.Get("type"))
	assert.Empty(t, q.Get("price"))
}

func TestBinanceErrorResponse(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	})

	_, err := b.PlaceOrder(t.Context(), paperOrder(enum.OrderSideBuy))
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrVenueResponse)
	assert.Contains(t, err.Error(), "-2010")
}

func TestBinanceCancelOrder(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.True(t, validSignature(r.URL.RawQuery))
		assert.Equal(t, "42", r.URL.Query().Get("orderId"))
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"status":"CANCELED"}`))
	})
	require.NoError(t, b.CancelOrder(t.Context(), "btcusdt", "42"))
}

func TestBinanceInstrumentSpec(t *testing.T) {
	var calls atomic.Int32
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		_, _ = w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","status":"TRADING","filters":[
			{"filterType":"PRICE_FILTER","tickSize":"0.01"},
			{"filterType":"LOT_SIZE","minQty":"0.00001","maxQty":"9000","stepSize":"0.00001"}
		]}]}`))
	})

	spec, err := b.InstrumentSpec(t.Context(), "btcusdt")
	require.NoError(t, err)
	assert.True(t, spec.Tradable)
	assert.True(t, spec.TickSize.Equal(d("0.01")))
	assert.True(t, spec.MinLot.Equal(d("0.00001")))
	assert.True(t, spec.MaxLot.Equal(d("9000")))

	_, err = b.InstrumentSpec(t.Context(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = b.InstrumentSpec(t.Context(), "ETHUSDT")
	assert.ErrorIs(t, err, exception.ErrUnknownInstrument)
}

func TestBinanceAccountInfo(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/account", r.URL.Path)
		assert.True(t, validSignature(r.URL.RawQuery))
		_, _ = w.Write([]byte(`{"uid":7,"canTrade":true,"balances":[
			{"asset":"BTC","free":"1","locked":"0"},
			{"asset":"USDT","free":"900.5","locked":"99.5"}
		]}`))
	})

	acct, err := b.AccountInfo(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "7", acct.AccountID)
	assert.InDelta(t, 1000, acct.Equity, 1e-9)
	assert.InDelta(t, 900.5, acct.FreeMargin, 1e-9)
	assert.InDelta(t, 99.5, acct.Margin, 1e-9)
}

func TestBinanceFetchTicker(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/bookTicker", r.URL.Path)
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","bidPrice":"100.00","bidQty":"1","askPrice":"100.10","askQty":"2"}`))
	})

	tick, err := b.FetchTicker(t.Context(), "btcusdt")
	require.NoError(t, err)
	assert.True(t, tick.Price().Equal(d("100.05")))

	last, ok := b.LastTick("btcusdt")
	require.True(t, ok)
	assert.Equal(t, tick, last)
}

func TestBinanceMalformedFields(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/ticker/bookTicker":
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","bidPrice":"n/a","bidQty":"1","askPrice":"100.10","askQty":"2"}`))
		case "/api/v3/exchangeInfo":
			_, _ = w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","status":"TRADING","filters":[
				{"filterType":"PRICE_FILTER","tickSize":"0.0.1"}
			]}]}`))
		case "/api/v3/account":
			_, _ = w.Write([]byte(`{"uid":7,"balances":[{"asset":"USDT","free":"lots","locked":"0"}]}`))
		}
	})

	_, err := b.FetchTicker(t.Context(), "BTCUSDT")
	require.ErrorIs(t, err, exception.ErrVenueResponse)
	assert.Contains(t, err.Error(), "bidPrice")
	_, ok := b.LastTick("BTCUSDT")
	assert.False(t, ok)

	_, err = b.InstrumentSpec(t.Context(), "BTCUSDT")
	require.ErrorIs(t, err, exception.ErrVenueResponse)
	assert.Contains(t, err.Error(), "tickSize")

	_, err = b.AccountInfo(t.Context())
	require.ErrorIs(t, err, exception.ErrVenueResponse)
	assert.Contains(t, err.Error(), "free")
}

func TestBinancePlaceOrderBadFillKeepsVenueID(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"orderId":43,"status":"PARTIALLY_FILLED","executedQty":"1","cummulativeQuoteQty":"?",
			"fills":[{"price":"1.1","qty":"1","commission":"bad","commissionAsset":"USDT"}]}`))
	})

	r, err := b.PlaceOrder(t.Context(), paperOrder(enum.OrderSideBuy))
	require.NoError(t, err)
	assert.Equal(t, "43", r.ExchangeOrderID)
	assert.True(t, r.FilledQuantity.IsZero())
	assert.True(t, r.Commission.IsZero())
}
