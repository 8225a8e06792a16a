package interfaces

import (
	"context"

	"options-momentum-bot/internal/types"
)

// MarketData is the read side of a broker: prices and option chains.
type MarketData interface {
	// LTP returns the last traded price of an instrument.
	LTP(ctx context.Context, inst types.Instrument) (float64, error)

	// Expiries lists the underlying's option expiries, nearest first.
	Expiries(ctx context.Context, underlying string) ([]string, error)

	// OptionChain returns one expiry's strikes in listed order.
	OptionChain(ctx context.Context, underlying, expiry string) (types.OptionChain, error)
}

// OrderGateway accepts orders and reports the fill. It never retries on its
// own; a failure is returned to the caller as is.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, req types.OrderRequest) (types.Fill, error)
}

// Broker is a venue that serves both market data and orders.
type Broker interface {
	MarketData
	OrderGateway
}
