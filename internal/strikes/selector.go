// Package strikes picks the call and put contracts whose premium sits inside a
// target band on the nearest expiry, and resolves them to broker instruments.
package strikes

import (
	"context"
	"errors"
	"fmt"

	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/types"
)

// NotFoundExpiry is the expiry reported when no expiry data was available.
const NotFoundExpiry = "0"

var (
	ErrNoExpiry           = errors.New("no expiry data available")
	ErrEmptyChain         = errors.New("option chain is empty")
	ErrNoStrike           = errors.New("no strike in premium band")
	ErrInstrumentNotFound = errors.New("instrument not found in option chain")
)

// Result is the outcome of one selection pass. A zero strike means that side
// had no match.
type Result struct {
	Expiry string
	CE     float64
	PE     float64
	// CELTP and PELTP are the premiums seen when the match was taken.
	CELTP float64
	PELTP float64
}

// NotFound is the sentinel result.
func NotFound() Result { return Result{Expiry: NotFoundExpiry} }

// Strike returns the selected strike for one option type.
func (r Result) Strike(optionType types.OptionType) float64 {
	if optionType == types.Call {
		return r.CE
	}
	return r.PE
}

// Found reports whether an expiry was available and the given side matched.
func (r Result) Found(optionType types.OptionType) bool {
	return r.Expiry != NotFoundExpiry && r.Strike(optionType) != 0
}

// Select scans the chain in listed order and takes, independently per side,
// the first strike whose LTP lies in [lower, upper]. Rows without a strike or
// with a zero LTP are skipped. Scanning stops once both sides matched.
func Select(chain types.OptionChain, lower, upper float64) Result {
	if chain.Expiry == "" || chain.Expiry == NotFoundExpiry {
		return NotFound()
	}

	res := Result{Expiry: chain.Expiry}
	ceFound, peFound := false, false

	for _, row := range chain.Strikes {
		if row.Strike == 0 {
			continue
		}
		if !ceFound && inBand(row.Call, lower, upper) {
			res.CE, res.CELTP = row.Strike, row.Call.LTP
			ceFound = true
		}
		if !peFound && inBand(row.Put, lower, upper) {
			res.PE, res.PELTP = row.Strike, row.Put.LTP
			peFound = true
		}
		if ceFound && peFound {
			break
		}
	}
	return res
}

func inBand(q *types.LegQuote, lower, upper float64) bool {
	if q == nil || q.LTP == 0 {
		return false
	}
	return q.LTP >= lower && q.LTP <= upper
}

// Selector resolves strikes against live market data.
type Selector struct {
	md         interfaces.MarketData
	underlying string
}

func NewSelector(md interfaces.MarketData, underlying string) *Selector {
	return &Selector{md: md, underlying: underlying}
}

func (s *Selector) Underlying() string { return s.underlying }

// Resolve fetches the nearest expiry's chain and selects strikes in band. A
// missing expiry or empty chain yields the sentinel result plus an error the
// caller should treat as "retry next cycle".
func (s *Selector) Resolve(ctx context.Context, lower, upper float64) (Result, types.OptionChain, error) {
	expiries, err := s.md.Expiries(ctx, s.underlying)
	if err != nil {
		return NotFound(), types.OptionChain{}, fmt.Errorf("fetch expiries for %s: %w", s.underlying, err)
	}
	if len(expiries) == 0 {
		logger.Warn(ctx, "No expiry data, check token scopes or underlying", "underlying", s.underlying)
		return NotFound(), types.OptionChain{}, ErrNoExpiry
	}

	expiry := expiries[0]
	chain, err := s.md.OptionChain(ctx, s.underlying, expiry)
	if err != nil {
		return NotFound(), types.OptionChain{}, fmt.Errorf("fetch option chain %s %s: %w", s.underlying, expiry, err)
	}
	if len(chain.Strikes) == 0 {
		return NotFound(), chain, ErrEmptyChain
	}
	if chain.Expiry == "" {
		chain.Expiry = expiry
	}

	res := Select(chain, lower, upper)
	logger.Info(ctx, "Strike selection",
		"underlying", s.underlying,
		"expiry", res.Expiry,
		"ce_strike", res.CE,
		"ce_ltp", res.CELTP,
		"pe_strike", res.PE,
		"pe_ltp", res.PELTP,
		"lower", lower,
		"upper", upper,
		"strikes", len(chain.Strikes),
	)
	return res, chain, nil
}

// Instrument looks up the broker instrument for one strike in a chain.
func Instrument(chain types.OptionChain, strike float64, optionType types.OptionType) (types.Instrument, error) {
	for _, row := range chain.Strikes {
		if row.Strike != strike {
			continue
		}
		q := row.Quote(optionType)
		if q == nil || q.Key == "" {
			break
		}
		return types.Instrument{
			Underlying:    chain.Underlying,
			Expiry:        chain.Expiry,
			Strike:        strike,
			OptionType:    optionType,
			Key:           q.Key,
			Tradingsymbol: q.Tradingsymbol,
			LotSize:       q.LotSize,
		}, nil
	}
	return types.Instrument{}, fmt.Errorf("%s %.0f expiry %s: %w", optionType, strike, chain.Expiry, ErrInstrumentNotFound)
}

// ResolveInstrument runs a selection and resolves the instrument for one
// option type in a single pass.
func (s *Selector) ResolveInstrument(ctx context.Context, optionType types.OptionType, lower, upper float64) (types.Instrument, error) {
	res, chain, err := s.Resolve(ctx, lower, upper)
	if err != nil {
		return types.Instrument{}, err
	}
	if !res.Found(optionType) {
		return types.Instrument{}, fmt.Errorf("%s in %.2f-%.2f: %w", optionType, lower, upper, ErrNoStrike)
	}
	if chain.Underlying == "" {
		chain.Underlying = s.underlying
	}
	return Instrument(chain, res.Strike(optionType), optionType)
}
