package types

import (
	"fmt"
	"strings"
	"time"
)

// OptionType is the contract flavour traded by a leg.
type OptionType string

const (
	Call OptionType = "CE"
	Put  OptionType = "PE"
)

// Leg identifies one side of the strategy. There is exactly one leg per
// option type, so the two share representation.
type Leg = OptionType

// Legs lists both legs in a stable order.
var Legs = []Leg{Call, Put}

// ParseOptionType accepts "CE"/"PE" (case-insensitive) as well as
// "CALL"/"PUT".
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CE", "CALL":
		return Call, nil
	case "PE", "PUT":
		return Put, nil
	}
	return "", fmt.Errorf("unknown option type %q", s)
}

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Mode is PAPER or LIVE; it travels on every trade record.
type Mode string

const (
	Paper Mode = "PAPER"
	Live  Mode = "LIVE"
)

// Instrument identifies one tradable option contract.
type Instrument struct {
	Underlying    string     `json:"underlying"`
	Expiry        string     `json:"expiry"`
	Strike        float64    `json:"strike"`
	OptionType    OptionType `json:"option_type"`
	Key           string     `json:"instrument_key"`
	Tradingsymbol string     `json:"tradingsymbol,omitempty"`
	LotSize       int        `json:"lot_size,omitempty"`
}

// IsZero reports whether the instrument is unresolved.
func (i Instrument) IsZero() bool { return i.Key == "" }

func (i Instrument) String() string {
	if i.IsZero() {
		return "<none>"
	}
	return fmt.Sprintf("%s %s %.0f%s (%s)", i.Underlying, i.Expiry, i.Strike, i.OptionType, i.Key)
}

// Tick is a single last-traded-price observation.
type Tick struct {
	Instrument Instrument
	LTP        float64
	At         time.Time
}

// ChainQuote is one strike row of an option chain snapshot.
type ChainQuote struct {
	Strike float64   `json:"strike"`
	Call   *LegQuote `json:"call,omitempty"`
	Put    *LegQuote `json:"put,omitempty"`
}

// LegQuote is the market data for one side of a strike row.
type LegQuote struct {
	Key           string  `json:"instrument_key"`
	Tradingsymbol string  `json:"tradingsymbol,omitempty"`
	LTP           float64 `json:"ltp"`
	LotSize       int     `json:"lot_size,omitempty"`
}

// OptionChain is a snapshot of one expiry's strikes in listed order.
type OptionChain struct {
	Underlying string       `json:"underlying"`
	Expiry     string       `json:"expiry"`
	Strikes    []ChainQuote `json:"strikes"`
}

// Quote returns the side of a row matching optionType, or nil.
func (q ChainQuote) Quote(optionType OptionType) *LegQuote {
	if optionType == Call {
		return q.Call
	}
	return q.Put
}

// OrderRequest is what the engine hands the order gateway.
type OrderRequest struct {
	Instrument Instrument
	Side       Side
	Quantity   int
	// Price is the last observed LTP; paper fills use it verbatim.
	Price  float64
	Reason string
	Tag    string
}

// Fill is a confirmed execution reported by the order gateway.
type Fill struct {
	OrderID    string     `json:"order_id"`
	Instrument Instrument `json:"instrument"`
	Side       Side       `json:"side"`
	Quantity   int        `json:"quantity"`
	Price      float64    `json:"price"`
	Time       time.Time  `json:"time"`
	Mode       Mode       `json:"mode"`
	Reason     string     `json:"reason,omitempty"`
}

// Charges is the round-trip cost breakdown of a closed trade.
type Charges struct {
	Brokerage  float64 `json:"brokerage"`
	STT        float64 `json:"stt"`
	TxnCharges float64 `json:"txn_charges"`
	StampDuty  float64 `json:"stamp_duty"`
	SEBIFee    float64 `json:"sebi"`
	IPFTFee    float64 `json:"ipft"`
	GST        float64 `json:"gst"`
	Total      float64 `json:"total"`
}

// TradeRecord is an immutable ledger entry. Profit fields are nil on BUYs and
// on SELLs that could not be matched against a prior BUY.
type TradeRecord struct {
	ID          string     `json:"id"`
	Time        time.Time  `json:"timestamp"`
	Leg         Leg        `json:"strike_price_mode"`
	Instrument  Instrument `json:"instrument"`
	Side        Side       `json:"action"`
	Quantity    int        `json:"quantity"`
	Price       float64    `json:"price"`
	OrderType   string     `json:"order_type"`
	Mode        Mode       `json:"mode"`
	OrderID     string     `json:"order_id,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	EntryPrice  *float64   `json:"entry_price,omitempty"`
	Charges     *Charges   `json:"charges,omitempty"`
	GrossProfit *float64   `json:"gross_profit"`
	NetProfit   *float64   `json:"net_profit"`
	DayPnL      *float64   `json:"day_pnl"`
}

// Closed reports whether the record is a SELL matched against a BUY.
func (t TradeRecord) Closed() bool {
	return t.Side == Sell && t.NetProfit != nil
}
