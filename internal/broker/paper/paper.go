// Package paper simulates order execution. Every order fills immediately at
// the price observed by the caller.
package paper

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/types"

	"github.com/google/uuid"
)

var ErrNoPrice = errors.New("paper order without observed price")

var _ interfaces.OrderGateway = (*Gateway)(nil)

type Gateway struct {
	now    func() time.Time
	orders atomic.Int64
}

type Option func(*Gateway)

func WithClock(now func() time.Time) Option { return func(g *Gateway) { g.now = now } }

func New(opts ...Option) *Gateway {
	g := &Gateway{now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gateway) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.Fill, error) {
	if req.Price <= 0 {
		return types.Fill{}, ErrNoPrice
	}
	fill := types.Fill{
		OrderID:    "PAPER-" + uuid.NewString(),
		Instrument: req.Instrument,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Time:       g.now(),
		Mode:       types.Paper,
		Reason:     req.Reason,
	}
	g.orders.Add(1)
	logger.Debug(ctx, "Simulated order filled", "instrument", req.Instrument.Key, "side", req.Side, "qty", req.Quantity, "price", req.Price, "order_id", fill.OrderID)
	return fill, nil
}

// Orders returns how many orders have been filled.
func (g *Gateway) Orders() int64 { return g.orders.Load() }

// Broker pairs real market data with simulated execution.
type Broker struct {
	interfaces.MarketData
	*Gateway
}

var _ interfaces.Broker = Broker{}

func Wrap(md interfaces.MarketData, opts ...Option) Broker {
	return Broker{MarketData: md, Gateway: New(opts...)}
}
