package engine

import "fmt"

// Long holds the state of an open position.
type Long struct {
	Entry float64 `json:"entry"`
	Stop  float64 `json:"stop"`
	Peak  float64 `json:"peak"`
}

// Position is either flat or long. The zero value is flat, and a long
// position always carries entry, stop and peak together.
type Position struct {
	long *Long
}

// Flat returns a position with nothing open.
func Flat() Position { return Position{} }

// Open returns a long position entered at entry with the given hard stop.
func Open(entry, stop float64) Position {
	return Position{long: &Long{Entry: entry, Stop: stop, Peak: entry}}
}

func (p Position) IsLong() bool { return p.long != nil }

// Long returns a copy of the open position, if any.
func (p Position) Long() (Long, bool) {
	if p.long == nil {
		return Long{}, false
	}
	return *p.long, true
}

// withPeak returns the position with its peak raised to ltp when ltp is a new
// high. Flat positions are returned unchanged.
func (p Position) withPeak(ltp float64) Position {
	if p.long == nil || ltp <= p.long.Peak {
		return p
	}
	l := *p.long
	l.Peak = ltp
	return Position{long: &l}
}

func (p Position) String() string {
	if p.long == nil {
		return "FLAT"
	}
	return fmt.Sprintf("LONG(entry=%.2f stop=%.2f peak=%.2f)", p.long.Entry, p.long.Stop, p.long.Peak)
}
