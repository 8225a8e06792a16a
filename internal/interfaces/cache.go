package interfaces

import (
	"context"

	"options-momentum-bot/internal/types"
)

// InstrumentCache remembers the last resolved instrument per leg so a
// restart can resume on the same contract.
type InstrumentCache interface {
	Load(ctx context.Context, leg types.Leg) (types.Instrument, error)
	Save(ctx context.Context, leg types.Leg, inst types.Instrument) error
}
