// Package ledger keeps the per-leg trade logs and the running P&L derived
// from them. Both legs write into one Ledger; every mutation happens under a
// single lock so aggregate reads always see a consistent snapshot.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"options-momentum-bot/internal/charges"
	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/types"
)

// DefaultStartingBalance is the paper account size at session start.
const DefaultStartingBalance = 100000.0

type legBook struct {
	trades      []types.TradeRecord
	matched     map[int]bool // indexes of BUYs already closed by a SELL
	dayPnL      float64
	capitalUsed float64
	charges     float64
	completed   int
	wins        int
}

func newLegBook() *legBook {
	return &legBook{matched: map[int]bool{}}
}

// LegSummary is a point-in-time view of one leg.
type LegSummary struct {
	Leg             types.Leg `json:"leg"`
	DayPnL          float64   `json:"day_pnl"`
	CapitalUsed     float64   `json:"capital_used"`
	TotalCharges    float64   `json:"total_charges"`
	CompletedTrades int       `json:"completed_trades"`
	WinRate         float64   `json:"win_rate"`
	Trades          int       `json:"trades"`
	OpenPosition    bool      `json:"open_position"`
}

// Summary is a consistent snapshot across both legs.
type Summary struct {
	Legs            map[types.Leg]LegSummary `json:"legs"`
	DayPnL          float64                  `json:"day_pnl"`
	CapitalUsed     float64                  `json:"capital_used"`
	TotalCharges    float64                  `json:"total_charges"`
	CompletedTrades int                      `json:"completed_trades"`
	StartingBalance float64                  `json:"starting_balance"`
	CurrentBalance  float64                  `json:"current_balance"`
	ReturnPct       float64                  `json:"return_pct"`
	Time            time.Time                `json:"time"`
}

type Option func(*Ledger)

// WithStartingBalance overrides DefaultStartingBalance.
func WithStartingBalance(v float64) Option {
	return func(l *Ledger) { l.startingBalance = v }
}

// WithSchedule overrides the fee schedule used for closing trades.
func WithSchedule(s charges.Schedule) Option {
	return func(l *Ledger) { l.schedule = s }
}

// WithSinks registers sinks that receive every record after it is stored.
func WithSinks(sinks ...interfaces.TradeSink) Option {
	return func(l *Ledger) { l.sinks = append(l.sinks, sinks...) }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

type Ledger struct {
	mu              sync.Mutex
	books           map[types.Leg]*legBook
	startingBalance float64
	balance         float64
	schedule        charges.Schedule
	sinks           []interfaces.TradeSink
	now             func() time.Time

	subMu  sync.Mutex
	subs   map[int]chan types.TradeRecord
	nextID int
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		books:           map[types.Leg]*legBook{},
		startingBalance: DefaultStartingBalance,
		schedule:        charges.DefaultSchedule(),
		now:             time.Now,
		subs:            map[int]chan types.TradeRecord{},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.balance = l.startingBalance
	for _, leg := range types.Legs {
		l.books[leg] = newLegBook()
	}
	return l
}

func (l *Ledger) book(leg types.Leg) *legBook {
	b := l.books[leg]
	if b == nil {
		b = newLegBook()
		l.books[leg] = b
	}
	return b
}

// RecordFill appends a fill to the leg's log and returns the stored record.
// A SELL is matched against the most recent unmatched BUY on the same
// instrument; an unmatched SELL is kept with nil profit fields.
func (l *Ledger) RecordFill(ctx context.Context, leg types.Leg, fill types.Fill) types.TradeRecord {
	l.mu.Lock()
	rec := l.recordLocked(ctx, leg, fill)
	l.mu.Unlock()

	l.publish(rec)
	for _, sink := range l.sinks {
		if err := sink.AppendTrade(ctx, rec); err != nil {
			logger.ErrorWithErr(ctx, "Trade sink append failed", err,
				"leg", leg,
				"instrument", rec.Instrument.String(),
				"side", rec.Side,
				"price", rec.Price,
				"record_id", rec.ID,
			)
		}
	}
	return rec
}

func (l *Ledger) recordLocked(ctx context.Context, leg types.Leg, fill types.Fill) types.TradeRecord {
	ts := fill.Time
	if ts.IsZero() {
		ts = l.now()
	}
	rec := types.TradeRecord{
		ID:         uuid.NewString(),
		Time:       ts,
		Leg:        leg,
		Instrument: fill.Instrument,
		Side:       fill.Side,
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		OrderType:  "MARKET",
		Mode:       fill.Mode,
		OrderID:    fill.OrderID,
		Reason:     fill.Reason,
	}

	b := l.book(leg)
	if fill.Side == types.Sell {
		if idx, ok := b.lastOpenBuy(fill.Instrument.Key); ok {
			b.matched[idx] = true
			l.closeLocked(b, &rec, b.trades[idx].Price)
		} else {
			logger.Warn(ctx, "SELL without matching BUY",
				"leg", leg,
				"instrument", fill.Instrument.String(),
				"side", fill.Side,
				"price", fill.Price,
				"qty", fill.Quantity,
			)
		}
	}

	b.trades = append(b.trades, rec)
	return rec
}

func (l *Ledger) closeLocked(b *legBook, rec *types.TradeRecord, entry float64) {
	gross := charges.Round((rec.Price - entry) * float64(rec.Quantity))
	ch := charges.Round2(l.schedule.Compute(entry, rec.Price, rec.Quantity))
	net := charges.Round(gross - ch.Total)

	b.dayPnL = charges.Round(b.dayPnL + net)
	b.capitalUsed += entry * float64(rec.Quantity)
	b.charges += ch.Total
	b.completed++
	if net > 0 {
		b.wins++
	}
	l.balance += net

	dayPnL := b.dayPnL
	rec.EntryPrice = &entry
	rec.Charges = &ch
	rec.GrossProfit = &gross
	rec.NetProfit = &net
	rec.DayPnL = &dayPnL
}

// lastOpenBuy scans the log backwards for the newest BUY on key that no SELL
// has closed yet.
func (b *legBook) lastOpenBuy(key string) (int, bool) {
	for i := len(b.trades) - 1; i >= 0; i-- {
		t := b.trades[i]
		if t.Side == types.Buy && t.Instrument.Key == key && !b.matched[i] {
			return i, true
		}
	}
	return 0, false
}

func (b *legBook) openPosition() bool {
	for i, t := range b.trades {
		if t.Side == types.Buy && !b.matched[i] {
			return true
		}
	}
	return false
}

func (b *legBook) winRate() float64 {
	if b.completed == 0 {
		return 0
	}
	return float64(b.wins) / float64(b.completed) * 100
}

func (l *Ledger) DayPnL(leg types.Leg) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.book(leg).dayPnL
}

func (l *Ledger) CapitalUsed(leg types.Leg) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.book(leg).capitalUsed
}

func (l *Ledger) CompletedTrades(leg types.Leg) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.book(leg).completed
}

// WinRate is the percentage of closed trades with positive net profit, zero
// when nothing has closed.
func (l *Ledger) WinRate(leg types.Leg) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.book(leg).winRate()
}

// Trades returns a copy of the leg's log in chronological order.
func (l *Ledger) Trades(leg types.Leg) []types.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.book(leg)
	out := make([]types.TradeRecord, len(b.trades))
	copy(out, b.trades)
	return out
}

func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Summary{
		Legs:            make(map[types.Leg]LegSummary, len(l.books)),
		StartingBalance: l.startingBalance,
		CurrentBalance:  charges.Round(l.balance),
		Time:            l.now(),
	}
	for leg, b := range l.books {
		s.Legs[leg] = LegSummary{
			Leg:             leg,
			DayPnL:          b.dayPnL,
			CapitalUsed:     charges.Round(b.capitalUsed),
			TotalCharges:    charges.Round(b.charges),
			CompletedTrades: b.completed,
			WinRate:         charges.Round(b.winRate()),
			Trades:          len(b.trades),
			OpenPosition:    b.openPosition(),
		}
		s.DayPnL += b.dayPnL
		s.CapitalUsed += b.capitalUsed
		s.TotalCharges += b.charges
		s.CompletedTrades += b.completed
	}
	s.DayPnL = charges.Round(s.DayPnL)
	s.CapitalUsed = charges.Round(s.CapitalUsed)
	s.TotalCharges = charges.Round(s.TotalCharges)
	if l.startingBalance > 0 {
		s.ReturnPct = charges.Round((l.balance - l.startingBalance) / l.startingBalance * 100)
	}
	return s
}

// ResetDay clears logs and counters for a new session. The balance carries
// over.
func (l *Ledger) ResetDay() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for leg := range l.books {
		l.books[leg] = newLegBook()
	}
}
