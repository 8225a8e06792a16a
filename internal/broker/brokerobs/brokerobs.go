package brokerobs

import (
	"context"

	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/trace"
	"options-momentum-bot/internal/types"

	"go.opentelemetry.io/otel/attribute"
)

// observableBroker wraps a Broker with logging and tracing.
type observableBroker struct {
	broker interfaces.Broker
}

var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware.
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{broker: broker}
}

func (ob *observableBroker) LTP(ctx context.Context, inst types.Instrument) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.LTP")
	defer span.End()
	span.SetAttributes(attribute.String("instrument", inst.Key))

	price, err := ob.broker.LTP(ctx, inst)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch LTP", err, "instrument", inst.Key)
		return 0, err
	}

	logger.DebugSkip(ctx, 1, "LTP fetched", "instrument", inst.Key, "price", price)
	return price, nil
}

func (ob *observableBroker) Expiries(ctx context.Context, underlying string) ([]string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Expiries")
	defer span.End()

	expiries, err := ob.broker.Expiries(ctx, underlying)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch expiries", err, "underlying", underlying)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Expiries fetched", "underlying", underlying, "count", len(expiries))
	return expiries, nil
}

func (ob *observableBroker) OptionChain(ctx context.Context, underlying, expiry string) (types.OptionChain, error) {
	ctx, span := trace.StartSpan(ctx, "broker.OptionChain")
	defer span.End()
	span.SetAttributes(attribute.String("underlying", underlying), attribute.String("expiry", expiry))

	chain, err := ob.broker.OptionChain(ctx, underlying, expiry)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch option chain", err, "underlying", underlying, "expiry", expiry)
		return types.OptionChain{}, err
	}

	logger.DebugSkip(ctx, 1, "Option chain fetched", "underlying", underlying, "expiry", expiry, "strikes", len(chain.Strikes))
	return chain, nil
}

func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.Fill, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"instrument", req.Instrument.Key,
		"side", req.Side,
		"qty", req.Quantity,
		"observed_price", req.Price,
		"tag", req.Tag,
	)

	fill, err := ob.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"instrument", req.Instrument.Key,
			"side", req.Side,
			"qty", req.Quantity,
		)
		return types.Fill{}, err
	}

	logger.InfoSkip(ctx, 1, "Order filled",
		"instrument", req.Instrument.Key,
		"order_id", fill.OrderID,
		"price", fill.Price,
		"mode", fill.Mode,
	)
	return fill, nil
}
