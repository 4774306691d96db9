package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"renkotrader/internal/errors"
	"renkotrader/internal/model"
	"renkotrader/internal/obs"
	"renkotrader/pkg/exception"
)

// StreamConfig configures a Binance bookTicker subscription.
type StreamConfig struct {
	URL          string
	Symbols      []string
	Backoff      Backoff
	ReadTimeout  time.Duration
	PingInterval time.Duration
	// MaxAttempts stops reconnecting after that many consecutive failures.
	// Zero retries forever.
	MaxAttempts  int
}

// BookTickerStream turns Binance best bid/ask updates into ticks.
type BookTickerStream struct {
	cfg     StreamConfig
	log     logs.Logger
	dialer  *websocket.Dialer
	now     func() time.Time
	handler func(model.Tick)
}

func NewBookTickerStream(cfg StreamConfig, handler func(model.Tick), log logs.Logger) (*BookTickerStream, error) {
	if cfg.URL == "" || len(cfg.Symbols) == 0 || handler == nil {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "stream needs url, symbols and handler")
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	return &BookTickerStream{
		cfg:     cfg,
		log:     obs.Component(log, "binance-stream"),
		dialer:  websocket.DefaultDialer,
		now:     time.Now,
		handler: handler,
	}, nil
}

// Endpoint is the combined stream URL for every configured symbol.
func (s *BookTickerStream) Endpoint() string {
	streams := make([]string, 0, len(s.cfg.Symbols))
	for _, symbol := range s.cfg.Symbols {
		streams = append(streams, strings.ToLower(symbol)+"@bookTicker")
	}
	sep := "?"
	if strings.Contains(s.cfg.URL, "?") {
		sep = "&"
	}
	return s.cfg.URL + sep + "streams=" + strings.Join(streams, "/")
}

// Run reads ticks until ctx is done, reconnecting with backoff.
func (s *BookTickerStream) Run(ctx context.Context) error {
	attempt := 0
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			attempt = 0
		}
		attempt++
		if s.cfg.MaxAttempts > 0 && attempt >= s.cfg.MaxAttempts {
			return errors.Wrap(exception.ErrStreamClosed, err.Error())
		}
		wait := s.cfg.Backoff.Next(attempt)
		s.log.Warnf("stream dropped (attempt %d), reconnect in %s, err: %+v", attempt, wait, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session runs one connection. It only returns with an error and reports
// whether the dial succeeded.
func (s *BookTickerStream) session(ctx context.Context) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.Endpoint(), nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	s.log.Infof("stream connected, %d symbols", len(s.cfg.Symbols))

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(s.now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(s.now().Add(s.cfg.ReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(ctx, conn, done)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		_ = conn.SetReadDeadline(s.now().Add(s.cfg.ReadTimeout))
		tick, ok, err := s.decode(payload)
		if err != nil {
			s.log.Debugf("skip payload, err: %+v", err)
			continue
		}
		if ok {
			s.handler(tick)
		}
	}
}

// keepAlive pings on an interval and closes the connection when ctx ends so
// the blocked read returns.
func (s *BookTickerStream) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			deadline := s.now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

type bookTickerPayload struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	Bid      string `json:"b"`
	BidQty   string `json:"B"`
	Ask      string `json:"a"`
	AskQty   string `json:"A"`
}

type combinedPayload struct {
	Stream string            `json:"stream"`
	Data   bookTickerPayload `json:"data"`
}

// decode accepts combined-stream and raw bookTicker payloads. Subscription
// acks decode without a tick.
func (s *BookTickerStream) decode(payload []byte) (model.Tick, bool, error) {
	var msg combinedPayload
	if err := sonic.Unmarshal(payload, &msg); err != nil {
		return model.Tick{}, false, err
	}
	data := msg.Data
	if msg.Stream == "" {
		if err := sonic.Unmarshal(payload, &data); err != nil {
			return model.Tick{}, false, err
		}
	}
	if data.Symbol == "" {
		return model.Tick{}, false, nil
	}
	bid, err := parseDecimal("b", data.Bid)
	if err != nil {
		return model.Tick{}, false, err
	}
	ask, err := parseDecimal("a", data.Ask)
	if err != nil {
		return model.Tick{}, false, err
	}
	bidQty, err := parseDecimal("B", data.BidQty)
	if err != nil {
		return model.Tick{}, false, err
	}
	askQty, err := parseDecimal("A", data.AskQty)
	if err != nil {
		return model.Tick{}, false, err
	}
	return model.Tick{
		Symbol:    data.Symbol,
		Bid:       bid,
		Ask:       ask,
		Volume:    bidQty.Add(askQty),
		Timestamp: s.now(),
	}, true, nil
}
