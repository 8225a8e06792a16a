package engine

import (
	"context"
	"math"

	"options-momentum-bot/internal/logger"
)

// Exit reasons recorded on SELL orders.
const (
	ReasonTrailingStop = "TRAILING_STOP"
	ReasonStopLoss     = "STOP_LOSS"
	ReasonRangeExit    = "RANGE_EXIT"
	ReasonSquareOff    = "SQUARE_OFF"
	ReasonMomentum     = "MOMENTUM_ENTRY"
)

// stopManager computes the hard stop and the trailing stop for a long
// position.
type stopManager struct {
	stopLossOffset float64
	trailThreshold float64
	// tight applies once price is at least trailThreshold above entry, loose
	// while it is still near entry.
	tight float64
	loose float64
}

func newStopManager(p Params) *stopManager {
	return &stopManager{
		stopLossOffset: p.StopLossOffset,
		trailThreshold: p.TrailThreshold,
		tight:          math.Min(p.TrailOffset, p.TrailInitial),
		loose:          math.Max(p.TrailOffset, p.TrailInitial),
	}
}

// calculateStopPrice returns the hard stop for an entry price.
func (sm *stopManager) calculateStopPrice(entry float64) float64 {
	return entry - sm.stopLossOffset
}

// trailingDistance picks the trail width for the current price.
func (sm *stopManager) trailingDistance(entry, ltp float64) float64 {
	if ltp >= entry+sm.trailThreshold {
		return sm.tight
	}
	return sm.loose
}

// checkExit reports whether ltp hits the trailing or the hard stop and which
// one fired. pos must already carry the peak including ltp.
func (sm *stopManager) checkExit(ctx context.Context, instrument string, pos Long, ltp float64) (bool, string) {
	distance := sm.trailingDistance(pos.Entry, ltp)
	trailStop := pos.Peak - distance

	logger.Debug(ctx, "Stop check",
		"instrument", instrument,
		"ltp", ltp,
		"entry", pos.Entry,
		"peak", pos.Peak,
		"stop", pos.Stop,
		"trail_distance", distance,
		"trail_stop", trailStop,
	)

	switch {
	case ltp <= pos.Stop:
		logger.Risk(ctx, instrument, "STOP_LOSS_TRIGGERED",
			"ltp", ltp,
			"stop", pos.Stop,
			"entry", pos.Entry,
		)
		return true, ReasonStopLoss
	case ltp <= trailStop:
		logger.Info(ctx, "Trailing stop hit",
			"instrument", instrument,
			"ltp", ltp,
			"peak", pos.Peak,
			"trail_stop", trailStop,
			"entry", pos.Entry,
		)
		return true, ReasonTrailingStop
	}
	return false, ""
}
