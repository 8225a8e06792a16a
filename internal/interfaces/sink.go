package interfaces

import (
	"context"

	"options-momentum-bot/internal/types"
)

// TradeSink receives every finalised trade record. The ledger never depends
// on a sink succeeding.
type TradeSink interface {
	AppendTrade(ctx context.Context, rec types.TradeRecord) error
}
