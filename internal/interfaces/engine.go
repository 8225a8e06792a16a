package interfaces

import (
	"context"

	"options-momentum-bot/internal/types"
)

// Runner drives one leg until the context is cancelled or the leg is disabled.
type Runner interface {
	Leg() types.Leg
	Run(ctx context.Context) error
}
