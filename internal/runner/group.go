package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/types"
)

var ErrUnknownLeg = errors.New("unknown leg")

type slot struct {
	runner *Runner
	wake   chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func (s *slot) set(cancel context.CancelFunc, running bool) {
	s.mu.Lock()
	s.cancel = cancel
	s.running = running
	s.mu.Unlock()
}

func (s *slot) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Group runs one Runner per leg concurrently. Legs can be stopped and
// started again while the group runs; a leg whose session ended waits for
// the next open.
type Group struct {
	slots   map[types.Leg]*slot
	order   []types.Leg
	session Session
	now     func() time.Time
	// idle is how long a leg waits before retrying when no session is set.
	idle time.Duration
}

func NewGroup(session Session, runners ...*Runner) *Group {
	g := &Group{
		slots:   make(map[types.Leg]*slot, len(runners)),
		session: session,
		now:     time.Now,
		idle:    time.Minute,
	}
	for _, r := range runners {
		g.slots[r.Leg()] = &slot{runner: r, wake: make(chan struct{}, 1)}
		g.order = append(g.order, r.Leg())
	}
	return g
}

func (g *Group) Legs() []types.Leg { return append([]types.Leg(nil), g.order...) }

func (g *Group) Runner(leg types.Leg) (*Runner, bool) {
	s, ok := g.slots[leg]
	if !ok {
		return nil, false
	}
	return s.runner, true
}

// Run blocks until ctx is cancelled or a leg fails with an unexpected
// error, which also stops the other legs.
func (g *Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, leg := range g.order {
		s := g.slots[leg]
		eg.Go(func() error { return g.runLeg(ctx, s) })
	}
	return eg.Wait()
}

func (g *Group) runLeg(ctx context.Context, s *slot) error {
	leg := string(s.runner.Leg())
	for {
		if s.runner.Enabled() {
			legCtx, cancel := context.WithCancel(ctx)
			s.set(cancel, true)
			err := s.runner.Run(legCtx)
			cancel()
			s.set(nil, false)

			if ctx.Err() != nil {
				return nil
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("leg %s: %w", leg, err)
			}
			if s.runner.Enabled() {
				wait := g.untilOpen()
				logger.Info(ctx, "Leg waiting for market open", "leg", leg, "wait_ms", wait.Milliseconds())
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return nil
				case <-t.C:
				case <-s.wake:
					t.Stop()
				}
				continue
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		}
	}
}

func (g *Group) untilOpen() time.Duration {
	if g.session == nil {
		return g.idle
	}
	now := g.now()
	if d := g.session.NextOpen(now).Sub(now); d > 0 {
		return d
	}
	return g.idle
}

// Start enables a leg; it begins trading on its next loop.
func (g *Group) Start(leg types.Leg) error {
	s, ok := g.slots[leg]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLeg, leg)
	}
	s.runner.Enable()
	s.notify()
	return nil
}

// Stop disables a leg and interrupts any sleep or backoff it is in. An order
// already in flight completes and is recorded, and an open position is
// squared off by the runner on its way out.
func (g *Group) Stop(leg types.Leg) error {
	s, ok := g.slots[leg]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLeg, leg)
	}
	s.runner.Disable()
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Running reports whether a leg's loop is currently executing.
func (g *Group) Running(leg types.Leg) bool {
	s, ok := g.slots[leg]
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (g *Group) Health() []Health {
	out := make([]Health, 0, len(g.order))
	for _, leg := range g.order {
		out = append(out, g.slots[leg].runner.Health())
	}
	return out
}
