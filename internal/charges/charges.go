// Package charges computes the round-trip transaction costs of an intraday
// index-option trade on NSE under a flat-fee discount broker schedule.
package charges

import (
	"github.com/shopspring/decimal"

	"options-momentum-bot/internal/types"
)

// Schedule holds the venue fee rates. All rates are fractions of turnover
// except BrokeragePerOrder, which is a flat amount per executed order.
type Schedule struct {
	BrokeragePerOrder float64 `yaml:"brokerage_per_order"`
	STTRate           float64 `yaml:"stt_rate"`
	TxnRate           float64 `yaml:"txn_rate"`
	StampDutyRate     float64 `yaml:"stamp_duty_rate"`
	SEBITurnoverRate  float64 `yaml:"sebi_turnover_rate"`
	IPFTRate          float64 `yaml:"ipft_rate"`
	GSTRate           float64 `yaml:"gst_rate"`
}

// DefaultSchedule is the NSE options schedule the bot was tuned against.
func DefaultSchedule() Schedule {
	return Schedule{
		BrokeragePerOrder: 20,
		STTRate:           0.000625,
		TxnRate:           0.0003503,
		StampDutyRate:     0.00003,
		SEBITurnoverRate:  10 / 1e7,
		IPFTRate:          0.50 / 1e5,
		GSTRate:           0.18,
	}
}

// Compute returns the charges of buying qty at entry and selling at exit.
// STT applies to the sell side only, stamp duty to the buy side only.
func (s Schedule) Compute(entry, exit float64, qty int) types.Charges {
	q := float64(qty)
	turnover := (entry + exit) * q

	c := types.Charges{
		Brokerage:  2 * s.BrokeragePerOrder,
		STT:        exit * q * s.STTRate,
		TxnCharges: turnover * s.TxnRate,
		StampDuty:  entry * q * s.StampDutyRate,
		SEBIFee:    turnover * s.SEBITurnoverRate,
		IPFTFee:    turnover * s.IPFTRate,
	}
	c.GST = s.GSTRate * (c.Brokerage + c.TxnCharges)
	c.Total = c.Brokerage + c.STT + c.TxnCharges + c.StampDuty + c.SEBIFee + c.IPFTFee + c.GST
	return c
}

// Compute applies the default schedule.
func Compute(entry, exit float64, qty int) types.Charges {
	return DefaultSchedule().Compute(entry, exit, qty)
}

// Round2 rounds every component to paise. Total is rounded on its own rather
// than re-summed, which is how contract notes present it.
func Round2(c types.Charges) types.Charges {
	return types.Charges{
		Brokerage:  Round(c.Brokerage),
		STT:        Round(c.STT),
		TxnCharges: Round(c.TxnCharges),
		StampDuty:  Round(c.StampDuty),
		SEBIFee:    Round(c.SEBIFee),
		IPFTFee:    Round(c.IPFTFee),
		GST:        Round(c.GST),
		Total:      Round(c.Total),
	}
}

// Round rounds a rupee amount half away from zero to two decimals.
func Round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
