// Package zerodha adapts Kite Connect to the MarketData and OrderGateway
// contracts. Option instruments are resolved from the exchange instrument
// dump, which is fetched once per day.
package zerodha

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/types"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

var (
	ErrNoQuote     = errors.New("no quote in response")
	ErrRejected    = errors.New("order rejected")
	ErrCredentials = errors.New("missing API key/access token")
)

// kiteAPI is the subset of the Kite Connect client used here.
type kiteAPI interface {
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetLTP(instruments ...string) (kiteconnect.QuoteLTP, error)
	PlaceOrder(variety string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
	GetOrderHistory(orderID string) ([]kiteconnect.Order, error)
}

type Params struct {
	APIKey      string
	AccessToken string
	// Exchange is the derivatives segment, NFO for index options.
	Exchange string
	// Names maps the bot's underlying names to the instrument dump's name
	// column, e.g. NIFTYBANK -> BANKNIFTY.
	Names map[string]string
	// LiveTicks streams LTPs over the Kite ticker and serves LTP from it
	// when fresh.
	LiveTicks bool
	TickMaxAge time.Duration
}

var DefaultNames = map[string]string{
	"NIFTYBANK": "BANKNIFTY",
	"BANKNIFTY": "BANKNIFTY",
	"NIFTY":     "NIFTY",
	"FINNIFTY":  "FINNIFTY",
}

type Zerodha struct {
	p    Params
	kite kiteAPI
	feed *tickFeed
	now  func() time.Time

	mu      sync.Mutex
	dump    kiteconnect.Instruments
	dumpDay string
	mapper  *instrumentMapper
}

var _ interfaces.Broker = (*Zerodha)(nil)

func NewZerodha(p Params) (*Zerodha, error) {
	if p.APIKey == "" || p.AccessToken == "" {
		return nil, ErrCredentials
	}
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)

	z := newWithAPI(p, kc)
	if p.LiveTicks {
		z.feed = newTickFeed(p.APIKey, p.AccessToken, z.mapper)
	}
	return z, nil
}

func newWithAPI(p Params, kite kiteAPI) *Zerodha {
	if p.Exchange == "" {
		p.Exchange = "NFO"
	}
	if p.Names == nil {
		p.Names = DefaultNames
	}
	if p.TickMaxAge == 0 {
		p.TickMaxAge = 5 * time.Second
	}
	return &Zerodha{p: p, kite: kite, now: time.Now, mapper: newInstrumentMapper()}
}

// Start connects the live tick feed when enabled.
func (z *Zerodha) Start(ctx context.Context) {
	if z.feed != nil {
		z.feed.start(ctx)
	}
}

func (z *Zerodha) Stop() {
	if z.feed != nil {
		z.feed.stop()
	}
}

func (z *Zerodha) name(underlying string) string {
	if n, ok := z.p.Names[strings.ToUpper(underlying)]; ok {
		return n
	}
	return strings.ToUpper(underlying)
}

func (z *Zerodha) key(tradingsymbol string) string {
	return z.p.Exchange + ":" + tradingsymbol
}

// instruments returns today's instrument dump, fetching it on first use.
func (z *Zerodha) instruments(ctx context.Context) (kiteconnect.Instruments, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	day := z.now().Format("2006-01-02")
	if z.dump != nil && z.dumpDay == day {
		return z.dump, nil
	}
	dump, err := z.kite.GetInstrumentsByExchange(z.p.Exchange)
	if err != nil {
		return nil, fmt.Errorf("fetch %s instruments: %w", z.p.Exchange, err)
	}
	z.dump, z.dumpDay = dump, day
	for _, in := range dump {
		z.mapper.addMapping(z.key(in.Tradingsymbol), uint32(in.InstrumentToken))
	}
	logger.Info(ctx, "Loaded instrument dump", "exchange", z.p.Exchange, "count", len(dump))
	return dump, nil
}

func isOption(in kiteconnect.Instrument) bool {
	return in.InstrumentType == string(types.Call) || in.InstrumentType == string(types.Put)
}

func (z *Zerodha) Expiries(ctx context.Context, underlying string) ([]string, error) {
	dump, err := z.instruments(ctx)
	if err != nil {
		return nil, err
	}
	name := z.name(underlying)
	today := z.now().Format("2006-01-02")

	seen := map[string]bool{}
	var out []string
	for _, in := range dump {
		if in.Name != name || !isOption(in) || in.Expiry.Time.IsZero() {
			continue
		}
		e := in.Expiry.Time.Format("2006-01-02")
		if e < today || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Strings(out)
	return out, nil
}

func (z *Zerodha) OptionChain(ctx context.Context, underlying, expiry string) (types.OptionChain, error) {
	dump, err := z.instruments(ctx)
	if err != nil {
		return types.OptionChain{}, err
	}
	name := z.name(underlying)

	rows := map[float64]*types.ChainQuote{}
	var keys []string
	for _, in := range dump {
		if in.Name != name || !isOption(in) || in.Expiry.Time.Format("2006-01-02") != expiry {
			continue
		}
		row, ok := rows[in.StrikePrice]
		if !ok {
			row = &types.ChainQuote{Strike: in.StrikePrice}
			rows[in.StrikePrice] = row
		}
		q := &types.LegQuote{Key: z.key(in.Tradingsymbol), Tradingsymbol: in.Tradingsymbol, LotSize: int(in.LotSize)}
		if in.InstrumentType == string(types.Call) {
			row.Call = q
		} else {
			row.Put = q
		}
		keys = append(keys, q.Key)
	}

	chain := types.OptionChain{Underlying: underlying, Expiry: expiry}
	if len(keys) == 0 {
		return chain, nil
	}

	ltps, err := z.kite.GetLTP(keys...)
	if err != nil {
		return types.OptionChain{}, fmt.Errorf("chain ltp: %w", err)
	}

	strikes := make([]float64, 0, len(rows))
	for s := range rows {
		strikes = append(strikes, s)
	}
	sort.Float64s(strikes)
	for _, s := range strikes {
		row := rows[s]
		for _, q := range []*types.LegQuote{row.Call, row.Put} {
			if q != nil {
				q.LTP = ltps[q.Key].LastPrice
			}
		}
		chain.Strikes = append(chain.Strikes, *row)
	}
	return chain, nil
}

func (z *Zerodha) LTP(ctx context.Context, inst types.Instrument) (float64, error) {
	if z.feed != nil {
		if p, ok := z.feed.price(inst.Key, z.now(), z.p.TickMaxAge); ok {
			return p, nil
		}
		z.feed.watch(inst.Key)
	}

	q, err := z.kite.GetLTP(inst.Key)
	if err != nil {
		return 0, err
	}
	v, ok := q[inst.Key]
	if !ok || v.LastPrice <= 0 {
		return 0, fmt.Errorf("%s: %w", inst.Key, ErrNoQuote)
	}
	return v.LastPrice, nil
}

func splitKey(key string) (exchange, symbol string) {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

// PlaceOrder sends an intraday market order and reads back the average
// price. The observed price is used when the history is not yet available.
func (z *Zerodha) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.Fill, error) {
	exchange, symbol := splitKey(req.Instrument.Key)
	if exchange == "" {
		exchange = z.p.Exchange
	}
	if req.Instrument.Tradingsymbol != "" {
		symbol = req.Instrument.Tradingsymbol
	}

	resp, err := z.kite.PlaceOrder(kiteconnect.VarietyRegular, kiteconnect.OrderParams{
		Exchange:        exchange,
		Tradingsymbol:   symbol,
		Validity:        kiteconnect.ValidityDay,
		Product:         kiteconnect.ProductMIS,
		OrderType:       kiteconnect.OrderTypeMarket,
		TransactionType: string(req.Side),
		Quantity:        req.Quantity,
		Tag:             req.Tag,
	})
	if err != nil {
		return types.Fill{}, err
	}
	if resp.OrderID == "" {
		return types.Fill{}, fmt.Errorf("%w: empty order id", ErrRejected)
	}

	fill := types.Fill{
		OrderID:    resp.OrderID,
		Instrument: req.Instrument,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Time:       z.now(),
		Mode:       types.Live,
		Reason:     req.Reason,
	}

	history, err := z.kite.GetOrderHistory(resp.OrderID)
	if err != nil || len(history) == 0 {
		logger.Warn(ctx, "Order history unavailable, using observed price", "order_id", resp.OrderID, "error", err)
		return fill, nil
	}
	last := history[len(history)-1]
	if strings.EqualFold(last.Status, "REJECTED") {
		return types.Fill{}, fmt.Errorf("%w: %s %s", ErrRejected, resp.OrderID, last.StatusMessage)
	}
	if last.AveragePrice > 0 {
		fill.Price = last.AveragePrice
	}
	return fill, nil
}
