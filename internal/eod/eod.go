// Package eod writes the end-of-day CSV summary of each leg's trades.
package eod

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"options-momentum-bot/internal/charges"
	"options-momentum-bot/internal/markethours"
	"options-momentum-bot/internal/tradelog"
	"options-momentum-bot/internal/types"
)

type summarizer struct {
	log     *tradelog.Log
	session *markethours.Session
	dir     string
	legs    []types.Leg
	now     func() time.Time
}

var header = []string{"leg", "buys", "sells", "completed_trades", "wins", "win_rate", "gross_profit", "charges", "net_profit", "capital_used", "unmatched_sells"}

func aggregate(leg types.Leg, recs []types.TradeRecord) legRow {
	r := legRow{Leg: string(leg)}
	for _, rec := range recs {
		switch rec.Side {
		case types.Buy:
			r.Buys++
			r.CapitalUsed += rec.Price * float64(rec.Quantity)
		case types.Sell:
			r.Sells++
			if !rec.Closed() {
				r.Unmatched++
				continue
			}
			r.Completed++
			if *rec.NetProfit > 0 {
				r.Wins++
			}
			if rec.GrossProfit != nil {
				r.GrossProfit += *rec.GrossProfit
			}
			if rec.Charges != nil {
				r.Charges += rec.Charges.Total
			}
			r.NetProfit += *rec.NetProfit
		}
	}
	return r
}

func money(v float64) string { return fmt.Sprintf("%.2f", charges.Round(v)) }

func (r legRow) csv() []string {
	return []string{
		r.Leg,
		strconv.Itoa(r.Buys),
		strconv.Itoa(r.Sells),
		strconv.Itoa(r.Completed),
		strconv.Itoa(r.Wins),
		fmt.Sprintf("%.2f", r.winRate()),
		money(r.GrossProfit),
		money(r.Charges),
		money(r.NetProfit),
		money(r.CapitalUsed),
		strconv.Itoa(r.Unmatched),
	}
}

// SummarizeDay writes the summary for t's IST date. It returns "" without
// error when neither leg traded.
func (s *summarizer) SummarizeDay(t time.Time) (string, error) {
	var rows []legRow
	total := legRow{Leg: "TOTAL"}
	for _, leg := range s.legs {
		recs, err := s.log.ReadDay(leg, t)
		if err != nil {
			return "", fmt.Errorf("read %s trades: %w", leg, err)
		}
		if len(recs) == 0 {
			continue
		}
		r := aggregate(leg, recs)
		rows = append(rows, r)

		total.Buys += r.Buys
		total.Sells += r.Sells
		total.Completed += r.Completed
		total.Wins += r.Wins
		total.GrossProfit += r.GrossProfit
		total.Charges += r.Charges
		total.NetProfit += r.NetProfit
		total.CapitalUsed += r.CapitalUsed
		total.Unmatched += r.Unmatched
	}
	if len(rows) == 0 {
		return "", nil
	}

	outPath := s.csvPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, r := range rows {
		if err := w.Write(r.csv()); err != nil {
			return "", err
		}
	}
	if err := w.Write(total.csv()); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}

func (s *summarizer) SummarizeToday() (string, error) { return s.SummarizeDay(s.istNow()) }

// ShouldRunNow is true on a trading day once the session has been closed for
// a few minutes and today's summary has not been written.
func (s *summarizer) ShouldRunNow() (bool, string) {
	now := s.istNow()
	outPath := s.csvPath(now)
	if !s.session.IsTradingDay(now) || now.Before(s.session.Close(now).Add(runDelay)) {
		return false, outPath
	}
	if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
		return true, outPath
	}
	return false, outPath
}
