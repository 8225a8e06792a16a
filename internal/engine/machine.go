// Package engine holds the per-leg position state machine: momentum entry on
// an uptick, exit on a trailing or hard stop, and forced exit when the
// instrument's premium leaves the configured band.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/types"
)

var (
	ErrOrderFailed   = errors.New("order placement failed")
	ErrNoInstrument  = errors.New("no instrument set")
	ErrPositionOpen  = errors.New("position is open")
	ErrInvalidParams = errors.New("invalid engine params")
)

// Params configures one leg's machine.
type Params struct {
	LowerBound     float64          `yaml:"lower_bound"`
	UpperBound     float64          `yaml:"upper_bound"`
	StopLossOffset float64          `yaml:"stop_loss_offset"`
	TrailOffset    float64          `yaml:"trail_offset"`
	TrailThreshold float64          `yaml:"trail_threshold"`
	TrailInitial   float64          `yaml:"trail_initial"`
	LotSize        int              `yaml:"lot_size"`
	OptionType     types.OptionType `yaml:"option_type"`
}

func (p Params) Validate() error {
	switch {
	case p.LowerBound < 0 || p.UpperBound <= 0 || p.UpperBound < p.LowerBound:
		return fmt.Errorf("%w: band [%.2f, %.2f]", ErrInvalidParams, p.LowerBound, p.UpperBound)
	case p.StopLossOffset <= 0:
		return fmt.Errorf("%w: stop_loss_offset must be > 0", ErrInvalidParams)
	case p.TrailOffset < 0 || p.TrailInitial < 0 || p.TrailThreshold < 0:
		return fmt.Errorf("%w: trailing parameters must be >= 0", ErrInvalidParams)
	case p.LotSize <= 0:
		return fmt.Errorf("%w: lot_size must be > 0", ErrInvalidParams)
	case p.OptionType != types.Call && p.OptionType != types.Put:
		return fmt.Errorf("%w: option_type %q", ErrInvalidParams, p.OptionType)
	}
	return nil
}

// InBand reports whether ltp lies inside [LowerBound, UpperBound].
func (p Params) InBand(ltp float64) bool {
	return ltp >= p.LowerBound && ltp <= p.UpperBound
}

type Action string

const (
	Hold   Action = "HOLD"
	Buy    Action = "BUY"
	Sell   Action = "SELL"
	Rotate Action = "ROTATE"
)

// Decision is the outcome of one tick. Fill is set only when an order went
// through. ForceClose marks a rotation that had to close an open position.
type Decision struct {
	Action     Action
	LTP        float64
	Reason     string
	Fill       *types.Fill
	ForceClose bool
}

// Machine is the state machine for one leg. Ticks must be fed from a single
// goroutine; the read accessors are safe from any goroutine.
type Machine struct {
	params Params
	stops  *stopManager
	exec   *orderExecutor

	mu         sync.Mutex
	instrument types.Instrument
	pos        Position
	prev       float64
	hasPrev    bool
}

func NewMachine(p Params, gateway interfaces.OrderGateway) (*Machine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Machine{
		params: p,
		stops:  newStopManager(p),
		exec:   newOrderExecutor(gateway),
	}, nil
}

func (m *Machine) Params() Params { return m.params }

func (m *Machine) Leg() types.Leg { return m.params.OptionType }

func (m *Machine) Position() Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

func (m *Machine) Instrument() types.Instrument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instrument
}

// Previous returns the last tick price seen, if any.
func (m *Machine) Previous() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prev, m.hasPrev
}

// SetInstrument switches the traded contract. It refuses while a position is
// open and clears the previous price.
func (m *Machine) SetInstrument(inst types.Instrument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos.IsLong() {
		return fmt.Errorf("switch to %s: %w", inst.Key, ErrPositionOpen)
	}
	m.instrument = inst
	m.hasPrev = false
	m.prev = 0
	return nil
}

// Prime seeds the previous price, e.g. with the LTP observed while resolving
// the instrument.
func (m *Machine) Prime(prev float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prev = prev
	m.hasPrev = true
}

// Reset drops the position and the previous price without trading.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos = Flat()
	m.hasPrev = false
	m.prev = 0
}

// OnTick consumes one LTP observation.
func (m *Machine) OnTick(ctx context.Context, ltp float64) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.instrument.IsZero() {
		return Decision{Action: Hold, LTP: ltp}, ErrNoInstrument
	}
	leg := string(m.params.OptionType)

	if !m.params.InBand(ltp) {
		logger.Risk(ctx, m.instrument.String(), "LTP_OUT_OF_BAND",
			"leg", leg,
			"ltp", ltp,
			"lower", m.params.LowerBound,
			"upper", m.params.UpperBound,
			"position", m.pos.String(),
		)
		return m.invalidateLocked(ctx, ltp, ReasonRangeExit)
	}

	defer func() {
		m.prev = ltp
		m.hasPrev = true
	}()

	long, isLong := m.pos.Long()
	if !isLong {
		if !m.hasPrev || ltp <= m.prev {
			logger.Debug(ctx, "No uptick", "leg", leg, "ltp", ltp, "previous", m.prev, "has_previous", m.hasPrev)
			return Decision{Action: Hold, LTP: ltp}, nil
		}

		logger.Decision(ctx, leg, string(Buy), ltp, ReasonMomentum, "previous", m.prev)
		fill, err := m.exec.place(ctx, m.instrument, types.Buy, m.params.LotSize, ltp, ReasonMomentum)
		if err != nil {
			return Decision{Action: Buy, LTP: ltp, Reason: ReasonMomentum}, err
		}
		m.pos = Open(ltp, m.stops.calculateStopPrice(ltp))
		return Decision{Action: Buy, LTP: ltp, Reason: ReasonMomentum, Fill: &fill}, nil
	}

	m.pos = m.pos.withPeak(ltp)
	long, _ = m.pos.Long()

	exit, reason := m.stops.checkExit(ctx, m.instrument.String(), long, ltp)
	if !exit {
		return Decision{Action: Hold, LTP: ltp}, nil
	}

	logger.Decision(ctx, leg, string(Sell), ltp, reason,
		"entry", long.Entry,
		"peak", long.Peak,
		"stop", long.Stop,
	)
	fill, err := m.exec.place(ctx, m.instrument, types.Sell, m.params.LotSize, ltp, reason)
	if err != nil {
		return Decision{Action: Sell, LTP: ltp, Reason: reason}, err
	}
	m.pos = Flat()
	return Decision{Action: Sell, LTP: ltp, Reason: reason, Fill: &fill}, nil
}

// Invalidate discards the current instrument's state: an open position is
// closed once at ltp, and the machine returns to flat whether or not that
// order succeeds. The caller is expected to rotate afterwards.
func (m *Machine) Invalidate(ctx context.Context, ltp float64, reason string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidateLocked(ctx, ltp, reason)
}

func (m *Machine) invalidateLocked(ctx context.Context, ltp float64, reason string) (Decision, error) {
	leg := string(m.params.OptionType)
	d := Decision{Action: Rotate, LTP: ltp, Reason: reason}

	var err error
	if long, ok := m.pos.Long(); ok {
		d.ForceClose = true
		logger.Decision(ctx, leg, string(Sell), ltp, reason,
			"entry", long.Entry,
			"peak", long.Peak,
			"stop", long.Stop,
		)
		var fill types.Fill
		fill, err = m.exec.place(ctx, m.instrument, types.Sell, m.params.LotSize, ltp, reason)
		if err != nil {
			logger.Risk(ctx, m.instrument.String(), "FORCE_CLOSE_FAILED",
				"leg", leg,
				"ltp", ltp,
				"entry", long.Entry,
				"error", err.Error(),
			)
		} else {
			d.Fill = &fill
		}
	} else {
		logger.Decision(ctx, leg, string(Rotate), ltp, reason)
	}

	m.pos = Flat()
	m.hasPrev = false
	m.prev = 0
	return d, err
}

// SquareOff closes an open position once at ltp. On failure the position
// stays long. A flat machine returns a nil fill.
func (m *Machine) SquareOff(ctx context.Context, ltp float64) (*types.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	long, ok := m.pos.Long()
	if !ok {
		return nil, nil
	}

	logger.Decision(ctx, string(m.params.OptionType), string(Sell), ltp, ReasonSquareOff,
		"entry", long.Entry,
		"peak", long.Peak,
	)
	fill, err := m.exec.place(ctx, m.instrument, types.Sell, m.params.LotSize, ltp, ReasonSquareOff)
	if err != nil {
		logger.Risk(ctx, m.instrument.String(), "SQUARE_OFF_FAILED",
			"leg", string(m.params.OptionType),
			"ltp", ltp,
			"entry", long.Entry,
			"error", err.Error(),
		)
		return nil, err
	}
	m.pos = Flat()
	return &fill, nil
}
