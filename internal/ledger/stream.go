package ledger

import "options-momentum-bot/internal/types"

// Subscribe returns a channel receiving every stored record and a cancel
// func that closes it. Records are dropped for a subscriber whose buffer is
// full.
func (l *Ledger) Subscribe(buffer int) (<-chan types.TradeRecord, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan types.TradeRecord, buffer)

	l.subMu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	l.subMu.Unlock()

	return ch, func() {
		l.subMu.Lock()
		defer l.subMu.Unlock()
		if c, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(c)
		}
	}
}

func (l *Ledger) publish(rec types.TradeRecord) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}
