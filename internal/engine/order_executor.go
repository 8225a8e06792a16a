package engine

import (
	"context"
	"fmt"
	"time"

	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/types"
)

// orderExecutor places orders on the gateway and normalises the fills it
// gets back.
type orderExecutor struct {
	gateway interfaces.OrderGateway
	now     func() time.Time
}

func newOrderExecutor(gateway interfaces.OrderGateway) *orderExecutor {
	return &orderExecutor{gateway: gateway, now: time.Now}
}

// place sends one market order for qty at the observed price. Errors are
// wrapped with ErrOrderFailed.
func (oe *orderExecutor) place(ctx context.Context, inst types.Instrument, side types.Side, qty int, ltp float64, reason string) (types.Fill, error) {
	req := types.OrderRequest{
		Instrument: inst,
		Side:       side,
		Quantity:   qty,
		Price:      ltp,
		Reason:     reason,
		Tag:        tagFor(reason),
	}

	fill, err := oe.gateway.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to place "+string(side)+" order", err,
			"instrument", inst.String(),
			"side", side,
			"qty", qty,
			"price", ltp,
			"reason", reason,
		)
		return types.Fill{}, fmt.Errorf("%s %s x%d @ %.2f: %w: %w", side, inst.Key, qty, ltp, ErrOrderFailed, err)
	}

	if fill.Price == 0 {
		fill.Price = ltp
	}
	if fill.Time.IsZero() {
		fill.Time = oe.now()
	}
	if fill.Instrument.IsZero() {
		fill.Instrument = inst
	}
	if fill.Side == "" {
		fill.Side = side
	}
	if fill.Quantity == 0 {
		fill.Quantity = qty
	}
	if fill.Reason == "" {
		fill.Reason = reason
	}

	logger.Trade(ctx, inst.String(), string(side), fill.Quantity, fill.Price, fill.OrderID,
		"reason", reason,
		"observed_ltp", ltp,
	)
	return fill, nil
}

func tagFor(reason string) string {
	switch reason {
	case ReasonStopLoss, ReasonTrailingStop:
		return "SL"
	case ReasonRangeExit, ReasonSquareOff:
		return "EXIT"
	}
	return "MOMO"
}
