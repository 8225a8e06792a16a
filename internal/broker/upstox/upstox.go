// Package upstox adapts the Upstox v2 REST API to the MarketData and
// OrderGateway contracts.
package upstox

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"options-momentum-bot/internal/api"
	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/types"
)

const DefaultBaseURL = "https://api.upstox.com/v2"

var (
	ErrNoQuote  = errors.New("no quote in response")
	ErrRejected = errors.New("order rejected")
)

var _ interfaces.Broker = (*Client)(nil)

// Config holds connection settings. UnderlyingKeys maps the bot's underlying
// names to Upstox index keys.
type Config struct {
	BaseURL        string
	AccessToken    string
	Timeout        time.Duration
	UnderlyingKeys map[string]string
	Mode           types.Mode
}

// DefaultUnderlyingKeys covers the indices the bot trades.
var DefaultUnderlyingKeys = map[string]string{
	"NIFTYBANK": "NSE_INDEX|Nifty Bank",
	"BANKNIFTY": "NSE_INDEX|Nifty Bank",
	"NIFTY":     "NSE_INDEX|Nifty 50",
	"FINNIFTY":  "NSE_INDEX|Nifty Fin Service",
}

type Client struct {
	api  *api.Client
	keys map[string]string
	mode types.Mode
	now  func() time.Time
}

func New(cfg Config, opts ...api.ClientOption) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UnderlyingKeys == nil {
		cfg.UnderlyingKeys = DefaultUnderlyingKeys
	}
	if cfg.Mode == "" {
		cfg.Mode = types.Live
	}
	base := []api.ClientOption{
		api.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
		api.WithTimeout(cfg.Timeout),
		api.WithBearerToken(cfg.AccessToken),
		api.WithLogging(true),
	}
	return &Client{
		api:  api.NewClient(append(base, opts...)...),
		keys: cfg.UnderlyingKeys,
		mode: cfg.Mode,
		now:  time.Now,
	}
}

func (c *Client) underlyingKey(underlying string) string {
	if strings.Contains(underlying, "|") {
		return underlying
	}
	if k, ok := c.keys[strings.ToUpper(underlying)]; ok {
		return k
	}
	return underlying
}

type envelope struct {
	Status string `json:"status"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (e envelope) err() error {
	if e.Status == "" || e.Status == "success" {
		return nil
	}
	if len(e.Errors) > 0 {
		return fmt.Errorf("upstox status %s: %s", e.Status, e.Errors[0].Message)
	}
	return fmt.Errorf("upstox status %s", e.Status)
}

type ltpResponse struct {
	envelope
	Data map[string]struct {
		LastPrice       float64 `json:"last_price"`
		InstrumentToken string  `json:"instrument_token"`
	} `json:"data"`
}

func (c *Client) LTP(ctx context.Context, inst types.Instrument) (float64, error) {
	var resp ltpResponse
	if err := c.api.GetJSON(ctx, "/market-quote/ltp", url.Values{"instrument_key": {inst.Key}}, &resp); err != nil {
		return 0, err
	}
	if err := resp.err(); err != nil {
		return 0, err
	}
	// The response is keyed by "EXCHANGE:SYMBOL"; match on the token when
	// possible and otherwise take the single entry.
	for _, q := range resp.Data {
		if q.InstrumentToken == "" || q.InstrumentToken == inst.Key {
			if q.LastPrice <= 0 {
				return 0, fmt.Errorf("%s: %w", inst.Key, ErrNoQuote)
			}
			return q.LastPrice, nil
		}
	}
	if len(resp.Data) == 1 {
		for _, q := range resp.Data {
			if q.LastPrice > 0 {
				return q.LastPrice, nil
			}
		}
	}
	return 0, fmt.Errorf("%s: %w", inst.Key, ErrNoQuote)
}

type contractResponse struct {
	envelope
	Data []struct {
		Expiry        string  `json:"expiry"`
		InstrumentKey string  `json:"instrument_key"`
		StrikePrice   float64 `json:"strike_price"`
		LotSize       int     `json:"lot_size"`
	} `json:"data"`
}

// Expiries returns distinct expiries sorted nearest first.
func (c *Client) Expiries(ctx context.Context, underlying string) ([]string, error) {
	var resp contractResponse
	if err := c.api.GetJSON(ctx, "/option/contract", url.Values{"instrument_key": {c.underlyingKey(underlying)}}, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []string
	for _, d := range resp.Data {
		if d.Expiry == "" || seen[d.Expiry] {
			continue
		}
		seen[d.Expiry] = true
		out = append(out, d.Expiry)
	}
	sort.Slice(out, func(i, j int) bool { return expiryTime(out[i]).Before(expiryTime(out[j])) })

	today := c.now().Format("2006-01-02")
	for len(out) > 0 && out[0] < today {
		out = out[1:]
	}
	return out, nil
}

func expiryTime(s string) time.Time {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

type chainSide struct {
	InstrumentKey string `json:"instrument_key"`
	MarketData    struct {
		LTP float64 `json:"ltp"`
	} `json:"market_data"`
}

type chainResponse struct {
	envelope
	Data []struct {
		Expiry      string     `json:"expiry"`
		StrikePrice float64    `json:"strike_price"`
		Call        *chainSide `json:"call_options"`
		Put         *chainSide `json:"put_options"`
	} `json:"data"`
}

func (c *Client) OptionChain(ctx context.Context, underlying, expiry string) (types.OptionChain, error) {
	q := url.Values{
		"instrument_key": {c.underlyingKey(underlying)},
		"expiry_date":    {expiry},
	}
	var resp chainResponse
	if err := c.api.GetJSON(ctx, "/option/chain", q, &resp); err != nil {
		return types.OptionChain{}, err
	}
	if err := resp.err(); err != nil {
		return types.OptionChain{}, err
	}

	chain := types.OptionChain{Underlying: underlying, Expiry: expiry}
	for _, row := range resp.Data {
		chain.Strikes = append(chain.Strikes, types.ChainQuote{
			Strike: row.StrikePrice,
			Call:   legQuote(row.Call),
			Put:    legQuote(row.Put),
		})
	}
	return chain, nil
}

func legQuote(s *chainSide) *types.LegQuote {
	if s == nil || s.InstrumentKey == "" {
		return nil
	}
	return &types.LegQuote{Key: s.InstrumentKey, LTP: s.MarketData.LTP}
}

type placeOrderRequest struct {
	Quantity          int     `json:"quantity"`
	Product           string  `json:"product"`
	Validity          string  `json:"validity"`
	Price             float64 `json:"price"`
	Tag               string  `json:"tag,omitempty"`
	InstrumentToken   string  `json:"instrument_token"`
	OrderType         string  `json:"order_type"`
	TransactionType   string  `json:"transaction_type"`
	DisclosedQuantity int     `json:"disclosed_quantity"`
	TriggerPrice      float64 `json:"trigger_price"`
	IsAMO             bool    `json:"is_amo"`
}

type placeOrderResponse struct {
	envelope
	Data struct {
		OrderID string `json:"order_id"`
	} `json:"data"`
}

type orderDetailsResponse struct {
	envelope
	Data struct {
		Status        string  `json:"status"`
		AveragePrice  float64 `json:"average_price"`
		StatusMessage string  `json:"status_message"`
	} `json:"data"`
}

// PlaceOrder sends an intraday market order. The fill price is the order's
// average price when the broker already reports it, otherwise the observed
// price on the request.
func (c *Client) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.Fill, error) {
	body := placeOrderRequest{
		Quantity:        req.Quantity,
		Product:         "I",
		Validity:        "DAY",
		Tag:             req.Tag,
		InstrumentToken: req.Instrument.Key,
		OrderType:       "MARKET",
		TransactionType: string(req.Side),
	}
	var resp placeOrderResponse
	if err := c.api.PostJSON(ctx, "/order/place", body, &resp); err != nil {
		return types.Fill{}, err
	}
	if err := resp.err(); err != nil {
		return types.Fill{}, err
	}
	if resp.Data.OrderID == "" {
		return types.Fill{}, fmt.Errorf("%w: empty order id", ErrRejected)
	}

	fill := types.Fill{
		OrderID:    resp.Data.OrderID,
		Instrument: req.Instrument,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Time:       c.now(),
		Mode:       c.mode,
		Reason:     req.Reason,
	}

	var det orderDetailsResponse
	if err := c.api.GetJSON(ctx, "/order/details", url.Values{"order_id": {resp.Data.OrderID}}, &det); err == nil {
		if strings.EqualFold(det.Data.Status, "rejected") {
			return types.Fill{}, fmt.Errorf("%w: %s %s", ErrRejected, resp.Data.OrderID, det.Data.StatusMessage)
		}
		if det.Data.AveragePrice > 0 {
			fill.Price = det.Data.AveragePrice
		}
	}
	return fill, nil
}
