package zerodha

import (
	"context"
	"sync"
	"time"

	"options-momentum-bot/internal/logger"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"
)

type tickPrice struct {
	ltp float64
	at  time.Time
}

// tickFeed keeps the latest streamed LTP of every watched instrument.
type tickFeed struct {
	apiKey      string
	accessToken string
	mapper      *instrumentMapper
	ticker      *kiteticker.Ticker

	mu        sync.RWMutex
	prices    map[string]tickPrice
	watched   map[uint32]bool
	connected bool
	now       func() time.Time
}

func newTickFeed(apiKey, accessToken string, mapper *instrumentMapper) *tickFeed {
	return &tickFeed{
		apiKey:      apiKey,
		accessToken: accessToken,
		mapper:      mapper,
		prices:      make(map[string]tickPrice),
		watched:     make(map[uint32]bool),
		now:         time.Now,
	}
}

func (f *tickFeed) start(ctx context.Context) {
	f.ticker = kiteticker.New(f.apiKey, f.accessToken)
	f.ticker.OnConnect(f.onConnect)
	f.ticker.OnError(f.onError)
	f.ticker.OnClose(f.onClose)
	f.ticker.OnReconnect(f.onReconnect)
	f.ticker.OnNoReconnect(f.onNoReconnect)
	f.ticker.OnTick(f.onTick)
	f.ticker.OnOrderUpdate(f.onOrderUpdate)

	go f.ticker.ServeWithContext(ctx)
}

func (f *tickFeed) stop() {
	if f.ticker != nil {
		f.ticker.Stop()
	}
}

// price returns the streamed LTP if one arrived within maxAge.
func (f *tickFeed) price(key string, now time.Time, maxAge time.Duration) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[key]
	if !ok || p.ltp <= 0 || now.Sub(p.at) > maxAge {
		return 0, false
	}
	return p.ltp, true
}

// watch subscribes to an instrument's ticks; unknown keys are ignored.
func (f *tickFeed) watch(key string) {
	token, ok := f.mapper.getToken(key)
	if !ok {
		return
	}
	f.mu.Lock()
	if f.watched[token] {
		f.mu.Unlock()
		return
	}
	f.watched[token] = true
	connected := f.connected
	f.mu.Unlock()

	if connected {
		f.subscribe([]uint32{token})
	}
}

func (f *tickFeed) subscribe(tokens []uint32) {
	if len(tokens) == 0 {
		return
	}
	if err := f.ticker.Subscribe(tokens); err != nil {
		logger.ErrorWithErr(context.Background(), "Tick subscribe failed", err, "tokens", len(tokens))
		return
	}
	if err := f.ticker.SetMode(kiteticker.ModeLTP, tokens); err != nil {
		logger.ErrorWithErr(context.Background(), "Tick mode change failed", err, "tokens", len(tokens))
	}
}

func (f *tickFeed) onConnect() {
	f.mu.Lock()
	f.connected = true
	tokens := make([]uint32, 0, len(f.watched))
	for t := range f.watched {
		tokens = append(tokens, t)
	}
	f.mu.Unlock()

	logger.Info(context.Background(), "Tick feed connected", "watched", len(tokens))
	f.subscribe(tokens)
}

func (f *tickFeed) onError(err error) {
	logger.ErrorWithErr(context.Background(), "Tick feed error", err)
}

func (f *tickFeed) onClose(code int, reason string) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	logger.Warn(context.Background(), "Tick feed closed", "code", code, "reason", reason)
}

func (f *tickFeed) onReconnect(attempt int, delay time.Duration) {
	logger.Info(context.Background(), "Tick feed reconnecting", "attempt", attempt, "delay", delay)
}

func (f *tickFeed) onNoReconnect(attempt int) {
	logger.Warn(context.Background(), "Tick feed gave up reconnecting", "attempts", attempt)
}

func (f *tickFeed) onTick(tick models.Tick) {
	key := f.mapper.getKey(tick.InstrumentToken)
	if key == "" {
		return
	}
	at := tick.Timestamp.Time
	if at.IsZero() {
		at = f.now()
	}
	f.mu.Lock()
	f.prices[key] = tickPrice{ltp: tick.LastPrice, at: at}
	f.mu.Unlock()
}

func (f *tickFeed) onOrderUpdate(order kiteconnect.Order) {
	logger.Debug(context.Background(), "Order update received",
		"order_id", order.OrderID,
		"status", order.Status,
		"symbol", order.TradingSymbol,
	)
}
