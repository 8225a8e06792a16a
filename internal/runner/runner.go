// Package runner drives each leg's state machine from a polling loop and
// keeps the leg on a tradable instrument.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"options-momentum-bot/internal/engine"
	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/trace"
	"options-momentum-bot/internal/types"
)

// Rotation reasons.
const (
	ReasonFetchFailures = "FETCH_FAILURES"
	ReasonStale         = "STALE_DATA"
)

var (
	errDisabled     = errors.New("leg disabled")
	errMarketClosed = errors.New("market closed")
)

// Recorder stores fills. *ledger.Ledger satisfies it.
type Recorder interface {
	RecordFill(ctx context.Context, leg types.Leg, fill types.Fill) types.TradeRecord
}

// Resolver picks a fresh instrument for an option type. *strikes.Selector
// satisfies it.
type Resolver interface {
	ResolveInstrument(ctx context.Context, optionType types.OptionType, lower, upper float64) (types.Instrument, error)
}

// Session gates the loop to market hours. *markethours.Session satisfies it.
type Session interface {
	IsOpen(t time.Time) bool
	NextOpen(t time.Time) time.Time
}

// Observer receives loop events for metrics.
type Observer interface {
	Tick(leg types.Leg, tick types.Tick)
	FetchError(leg types.Leg)
	Decision(leg types.Leg, action string)
	Rotation(leg types.Leg, reason string)
	Health(h Health)
}

type Config struct {
	PollInterval   time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	StaleAfter     time.Duration
	MaxFailures    int
	// OrderTimeout bounds a tick's order round trip. Orders run detached from
	// the leg's context so Stop never aborts one the broker may have taken.
	OrderTimeout time.Duration
	// SquareOffTimeout bounds the exit order placed after cancellation.
	SquareOffTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:     2 * time.Second,
		InitialBackoff:   2 * time.Second,
		MaxBackoff:       60 * time.Second,
		StaleAfter:       60 * time.Second,
		MaxFailures:      3,
		OrderTimeout:     15 * time.Second,
		SquareOffTimeout: 15 * time.Second,
	}
}

// Health is the leg's liveness as seen by monitoring.
type Health struct {
	Leg                 types.Leg        `json:"leg"`
	Enabled             bool             `json:"enabled"`
	Instrument          types.Instrument `json:"instrument"`
	Position            string           `json:"position"`
	LastLTP             float64          `json:"last_ltp"`
	LastTick            time.Time        `json:"last_tick"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	// ResolvingSince is set while the leg has no tradable instrument.
	ResolvingSince time.Time `json:"resolving_since"`
	Rotations      int       `json:"rotations"`
}

type Option func(*Runner)

func WithCache(c interfaces.InstrumentCache) Option { return func(r *Runner) { r.cache = c } }
func WithSession(s Session) Option                  { return func(r *Runner) { r.session = s } }
func WithObserver(o Observer) Option                { return func(r *Runner) { r.observer = o } }

// WithClock replaces time.Now and the context-aware sleep.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(r *Runner) {
		r.now = now
		r.sleep = sleep
	}
}

type Runner struct {
	leg      types.Leg
	md       interfaces.MarketData
	machine  *engine.Machine
	recorder Recorder
	resolver Resolver
	cache    interfaces.InstrumentCache
	session  Session
	observer Observer
	cfg      Config
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	enabled atomic.Bool

	mu       sync.Mutex
	failures int
	lastLTP  float64
	lastGood time.Time
	lastTick time.Time
	resolvSt time.Time
	rotates  int
}

var _ interfaces.Runner = (*Runner)(nil)

func New(machine *engine.Machine, md interfaces.MarketData, resolver Resolver, recorder Recorder, cfg Config, opts ...Option) *Runner {
	r := &Runner{
		leg:      machine.Leg(),
		md:       md,
		machine:  machine,
		recorder: recorder,
		resolver: resolver,
		cfg:      cfg,
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.enabled.Store(true)
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Runner) Leg() types.Leg           { return r.leg }
func (r *Runner) Machine() *engine.Machine { return r.machine }
func (r *Runner) Enabled() bool            { return r.enabled.Load() }

// Enable and Disable flip the flag the loop checks every iteration.
func (r *Runner) Enable()  { r.enabled.Store(true) }
func (r *Runner) Disable() { r.enabled.Store(false) }

func (r *Runner) Health() Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Health{
		Leg:                 r.leg,
		Enabled:             r.enabled.Load(),
		Instrument:          r.machine.Instrument(),
		Position:            r.machine.Position().String(),
		LastLTP:             r.lastLTP,
		LastTick:            r.lastTick,
		ConsecutiveFailures: r.failures,
		ResolvingSince:      r.resolvSt,
		Rotations:           r.rotates,
	}
}

func (r *Runner) marketOpen() bool {
	return r.session == nil || r.session.IsOpen(r.now())
}

func (r *Runner) active(ctx context.Context) bool {
	return ctx.Err() == nil && r.enabled.Load() && r.marketOpen()
}

// Run drives the leg until ctx is cancelled, the leg is disabled or the
// market closes. An open position is squared off once on the way out.
func (r *Runner) Run(ctx context.Context) error {
	leg := string(r.leg)
	logger.Info(ctx, "Leg runner starting", "leg", leg)
	defer r.squareOff(ctx)

	if !r.active(ctx) {
		logger.Info(ctx, "Leg runner not active", "leg", leg, "enabled", r.enabled.Load(), "market_open", r.marketOpen())
		return ctx.Err()
	}

	if r.machine.Instrument().IsZero() {
		if err := r.start(ctx); err != nil {
			return ignoreStop(ctx, err)
		}
	} else {
		r.markGood()
	}

	for r.active(ctx) {
		if err := r.cycle(ctx); err != nil {
			return ignoreStop(ctx, err)
		}
		if err := r.sleep(ctx, r.cfg.PollInterval); err != nil {
			break
		}
	}

	logger.Info(ctx, "Leg runner stopping",
		"leg", leg,
		"enabled", r.enabled.Load(),
		"market_open", r.marketOpen(),
		"cancelled", ctx.Err() != nil,
	)
	return ctx.Err()
}

func ignoreStop(ctx context.Context, err error) error {
	if errors.Is(err, errDisabled) || errors.Is(err, errMarketClosed) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// start resumes on the cached instrument when its premium is still in band,
// otherwise resolves a new one.
func (r *Runner) start(ctx context.Context) error {
	if r.cache != nil {
		inst, err := r.cache.Load(ctx, r.leg)
		switch {
		case err == nil:
			ltp, lerr := r.md.LTP(ctx, inst)
			if lerr == nil && r.machine.Params().InBand(ltp) {
				if err := r.adopt(ctx, inst, ltp, false); err == nil {
					logger.Info(ctx, "Resumed cached instrument", "leg", string(r.leg), "instrument", inst.String(), "ltp", ltp)
					return nil
				}
			}
			logger.Info(ctx, "Cached instrument not usable", "leg", string(r.leg), "instrument", inst.String(), "ltp", ltp, "error", lerr)
		default:
			logger.Debug(ctx, "No cached instrument", "leg", string(r.leg), "error", err)
		}
	}
	return r.ensureInstrument(ctx)
}

// cycle runs one fetch-decide step.
func (r *Runner) cycle(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "runner.cycle")
	defer span.End()

	inst := r.machine.Instrument()
	ltp, err := r.md.LTP(ctx, inst)
	if err != nil {
		n := r.fetchFailed()
		logger.ErrorWithErr(ctx, "LTP fetch failed", err,
			"leg", string(r.leg),
			"instrument", inst.String(),
			"consecutive_failures", n,
		)
		if n >= r.cfg.MaxFailures {
			return r.invalidate(ctx, ReasonFetchFailures)
		}
		return r.checkStale(ctx)
	}

	r.fetched(ltp)
	if r.observer != nil {
		r.observer.Tick(r.leg, types.Tick{Instrument: inst, LTP: ltp, At: r.now()})
	}

	octx, cancel := r.orderContext(ctx)
	d, err := r.machine.OnTick(octx, ltp)
	r.apply(octx, d)
	cancel()
	if err != nil {
		logger.ErrorWithErr(ctx, "Tick not fully processed", err,
			"leg", string(r.leg),
			"instrument", inst.String(),
			"action", string(d.Action),
			"price", ltp,
		)
	}
	if d.Action == engine.Rotate {
		return r.rotate(ctx, d.Reason)
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, d engine.Decision) {
	if d.Action != engine.Hold && r.observer != nil {
		r.observer.Decision(r.leg, string(d.Action))
	}
	if d.Fill != nil {
		r.recorder.RecordFill(ctx, r.leg, *d.Fill)
	}
}

// orderContext keeps the parent's values but not its cancellation.
func (r *Runner) orderContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if r.cfg.OrderTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cfg.OrderTimeout)
}

func (r *Runner) checkStale(ctx context.Context) error {
	r.mu.Lock()
	since := r.now().Sub(r.lastGood)
	r.mu.Unlock()
	if r.cfg.StaleAfter > 0 && since >= r.cfg.StaleAfter {
		logger.Warn(ctx, "No successful tick within staleness window",
			"leg", string(r.leg),
			"instrument", r.machine.Instrument().String(),
			"since_ms", since.Milliseconds(),
		)
		return r.invalidate(ctx, ReasonStale)
	}
	return nil
}

// invalidate closes any open position at the last known price and rotates.
func (r *Runner) invalidate(ctx context.Context, reason string) error {
	r.mu.Lock()
	last := r.lastLTP
	r.mu.Unlock()

	octx, cancel := r.orderContext(ctx)
	d, err := r.machine.Invalidate(octx, last, reason)
	r.apply(octx, d)
	cancel()
	if err != nil {
		logger.ErrorWithErr(ctx, "Force close on invalidation failed", err,
			"leg", string(r.leg),
			"instrument", r.machine.Instrument().String(),
			"side", string(types.Sell),
			"price", last,
		)
	}
	return r.rotate(ctx, reason)
}

func (r *Runner) rotate(ctx context.Context, reason string) error {
	r.mu.Lock()
	r.rotates++
	r.mu.Unlock()
	if r.observer != nil {
		r.observer.Rotation(r.leg, reason)
	}
	logger.Info(ctx, "Rotating instrument", "leg", string(r.leg), "reason", reason, "from", r.machine.Instrument().String())
	r.machine.Reset()
	return r.ensureInstrument(ctx)
}

// ensureInstrument blocks until a contract whose premium is in band is
// found, backing off exponentially between attempts.
// It gives up when the leg is disabled or the session closes.
func (r *Runner) ensureInstrument(ctx context.Context) error {
	p := r.machine.Params()
	backoff := r.cfg.InitialBackoff

	op := logger.StartOperation(ctx, "runner.ensureInstrument", "leg", string(r.leg))
	ctx = op.GetContext()

	r.mu.Lock()
	r.resolvSt = r.now()
	r.mu.Unlock()
	r.publishHealth()

	for attempt := 1; ; attempt++ {
		var stop error
		switch {
		case ctx.Err() != nil:
			stop = ctx.Err()
		case !r.enabled.Load():
			stop = errDisabled
		case !r.marketOpen():
			stop = errMarketClosed
		}
		if stop != nil {
			op.End("attempts", attempt-1, "stopped", stop.Error())
			return stop
		}

		inst, ltp, err := r.candidate(ctx, p)
		if err == nil {
			if err = r.adopt(ctx, inst, ltp, true); err == nil {
				logger.Info(ctx, "Instrument resolved", "leg", string(r.leg), "instrument", inst.String(), "ltp", ltp, "attempts", attempt)
				op.End("attempts", attempt, "instrument", inst.Key)
				return nil
			}
		}

		logger.Warn(ctx, "Instrument resolution failed, backing off",
			"leg", string(r.leg),
			"attempt", attempt,
			"backoff_ms", backoff.Milliseconds(),
			"error", err.Error(),
		)
		if err := r.sleep(ctx, backoff); err != nil {
			op.End("attempts", attempt, "stopped", err.Error())
			return err
		}
		backoff *= 2
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}
}

func (r *Runner) candidate(ctx context.Context, p engine.Params) (types.Instrument, float64, error) {
	inst, err := r.resolver.ResolveInstrument(ctx, r.leg, p.LowerBound, p.UpperBound)
	if err != nil {
		return types.Instrument{}, 0, err
	}
	ltp, err := r.md.LTP(ctx, inst)
	if err != nil {
		return types.Instrument{}, 0, fmt.Errorf("candidate %s ltp: %w", inst.Key, err)
	}
	if !p.InBand(ltp) {
		return types.Instrument{}, 0, fmt.Errorf("candidate %s ltp %.2f outside [%.2f, %.2f]", inst.Key, ltp, p.LowerBound, p.UpperBound)
	}
	return inst, ltp, nil
}

func (r *Runner) adopt(ctx context.Context, inst types.Instrument, ltp float64, persist bool) error {
	if err := r.machine.SetInstrument(inst); err != nil {
		return err
	}
	r.machine.Prime(ltp)
	r.fetched(ltp)

	r.mu.Lock()
	r.resolvSt = time.Time{}
	r.mu.Unlock()
	r.publishHealth()

	if persist && r.cache != nil {
		if err := r.cache.Save(ctx, r.leg, inst); err != nil {
			logger.ErrorWithErr(ctx, "Instrument cache save failed", err, "leg", string(r.leg), "instrument", inst.String())
		}
	}
	return nil
}

func (r *Runner) fetched(ltp float64) {
	r.mu.Lock()
	now := r.now()
	r.failures = 0
	r.lastLTP = ltp
	r.lastGood = now
	r.lastTick = now
	r.mu.Unlock()
	r.publishHealth()
}

func (r *Runner) markGood() {
	r.mu.Lock()
	r.lastGood = r.now()
	r.mu.Unlock()
}

func (r *Runner) fetchFailed() int {
	r.mu.Lock()
	r.failures++
	n := r.failures
	r.mu.Unlock()
	if r.observer != nil {
		r.observer.FetchError(r.leg)
	}
	r.publishHealth()
	return n
}

func (r *Runner) publishHealth() {
	if r.observer != nil {
		r.observer.Health(r.Health())
	}
}

// squareOff makes one attempt to close an open position. It runs on a
// context detached from cancellation so shutdown can still place the order.
func (r *Runner) squareOff(ctx context.Context) {
	if !r.machine.Position().IsLong() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.SquareOffTimeout)
	defer cancel()

	inst := r.machine.Instrument()
	op := logger.StartOperation(ctx, "runner.squareOff", "leg", string(r.leg), "instrument", inst.String())
	ctx = op.GetContext()
	price, err := r.md.LTP(ctx, inst)
	if err != nil {
		r.mu.Lock()
		price = r.lastLTP
		r.mu.Unlock()
		logger.Warn(ctx, "Square off using last known price", "leg", string(r.leg), "instrument", inst.String(), "price", price, "error", err.Error())
	}

	fill, err := r.machine.SquareOff(ctx, price)
	if err != nil {
		op.EndWithError(err, "side", string(types.Sell), "price", price, "position", "left open")
		return
	}
	op.End("price", price)
	if fill != nil {
		if r.observer != nil {
			r.observer.Decision(r.leg, string(engine.Sell))
		}
		r.recorder.RecordFill(ctx, r.leg, *fill)
	}
}
