// Package markethours answers whether the NSE F&O session is open for the
// strategy, in IST.
package markethours

import (
	"fmt"
	"time"
)

// IST is Indian Standard Time (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session is the daily trading window the bot runs in. The strategy starts
// five minutes after the exchange opens to skip the opening auction noise.
type Session struct {
	openMin  int // minutes after midnight IST
	closeMin int
	holidays map[string]bool
}

// Default is 09:20-15:30 IST with the built-in holiday calendar.
func Default() *Session {
	s, _ := New("09:20", "15:30", nil)
	return s
}

// New parses "HH:MM" bounds and merges extra holidays ("2006-01-02") into
// the built-in calendar.
func New(open, close string, extraHolidays []string) (*Session, error) {
	o, err := time.Parse("15:04", open)
	if err != nil {
		return nil, fmt.Errorf("parse open %q: %w", open, err)
	}
	c, err := time.Parse("15:04", close)
	if err != nil {
		return nil, fmt.Errorf("parse close %q: %w", close, err)
	}
	s := &Session{
		openMin:  o.Hour()*60 + o.Minute(),
		closeMin: c.Hour()*60 + c.Minute(),
		holidays: make(map[string]bool, len(nseHolidays)+len(extraHolidays)),
	}
	if s.closeMin <= s.openMin {
		return nil, fmt.Errorf("close %s is not after open %s", close, open)
	}
	for _, d := range nseHolidays {
		s.holidays[d] = true
	}
	for _, d := range extraHolidays {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", d, err)
		}
		s.holidays[d] = true
	}
	return s, nil
}

func (s *Session) IsHoliday(t time.Time) bool {
	return s.holidays[t.In(IST).Format("2006-01-02")]
}

// IsTradingDay reports a weekday that is not a holiday.
func (s *Session) IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	wd := ist.Weekday()
	return wd != time.Saturday && wd != time.Sunday && !s.IsHoliday(ist)
}

// IsOpen reports whether t lies in [open, close) on a trading day.
func (s *Session) IsOpen(t time.Time) bool {
	ist := t.In(IST)
	if !s.IsTradingDay(ist) {
		return false
	}
	m := ist.Hour()*60 + ist.Minute()
	return m >= s.openMin && m < s.closeMin
}

func (s *Session) at(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, IST)
}

// Close returns the session close on t's IST date.
func (s *Session) Close(t time.Time) time.Time {
	return s.at(t.In(IST), s.closeMin)
}

// NextOpen returns the next session open at or after t.
func (s *Session) NextOpen(t time.Time) time.Time {
	ist := t.In(IST)
	if open := s.at(ist, s.openMin); ist.Before(open) && s.IsTradingDay(ist) {
		return open
	}
	d := ist.AddDate(0, 0, 1)
	for i := 0; i < 14; i++ {
		if s.IsTradingDay(d) {
			return s.at(d, s.openMin)
		}
		d = d.AddDate(0, 0, 1)
	}
	return s.at(ist.AddDate(0, 0, 1), s.openMin)
}

// Status is the market state reported to the API.
type Status struct {
	Open     bool      `json:"is_open"`
	Now      time.Time `json:"now"`
	NextOpen time.Time `json:"next_open"`
	Close    time.Time `json:"close"`
	Message  string    `json:"message"`
}

func (s *Session) Status(t time.Time) Status {
	st := Status{
		Open:     s.IsOpen(t),
		Now:      t.In(IST),
		NextOpen: s.NextOpen(t),
		Close:    s.Close(t),
	}
	if st.Open {
		st.Message = fmt.Sprintf("Market open, closes in %s", fmtDur(st.Close.Sub(t)))
	} else {
		st.Message = fmt.Sprintf("Market closed, opens %s %s (%s)",
			st.NextOpen.Weekday().String()[:3], st.NextOpen.Format("15:04"), fmtDur(st.NextOpen.Sub(t)))
	}
	return st
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
