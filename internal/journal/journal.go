// Package journal persists ledger records to SQLite for later analysis.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/types"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id             TEXT PRIMARY KEY,
	leg            TEXT NOT NULL,
	instrument_key TEXT NOT NULL,
	strike         REAL,
	expiry         TEXT,
	side           TEXT NOT NULL,
	qty            INTEGER NOT NULL,
	price          REAL NOT NULL,
	mode           TEXT NOT NULL,
	order_id       TEXT,
	reason         TEXT,
	entry_price    REAL,
	charges        REAL,
	gross_profit   REAL,
	net_profit     REAL,
	day_pnl        REAL,
	traded_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_leg ON trades(leg, traded_at);
`

// Journal is a TradeSink backed by a SQLite database.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

var _ interfaces.TradeSink = (*Journal)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	logger.Info(context.Background(), "Opened trade journal", "path", path)
	return &Journal{db: db}, nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func (j *Journal) AppendTrade(ctx context.Context, rec types.TradeRecord) error {
	var chg any
	if rec.Charges != nil {
		chg = rec.Charges.Total
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO trades (id, leg, instrument_key, strike, expiry, side, qty, price, mode, order_id, reason,
		 entry_price, charges, gross_profit, net_profit, day_pnl, traded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.Leg),
		rec.Instrument.Key,
		rec.Instrument.Strike,
		rec.Instrument.Expiry,
		string(rec.Side),
		rec.Quantity,
		rec.Price,
		string(rec.Mode),
		rec.OrderID,
		rec.Reason,
		nullable(rec.EntryPrice),
		chg,
		nullable(rec.GrossProfit),
		nullable(rec.NetProfit),
		nullable(rec.DayPnL),
		rec.Time.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Row is one persisted trade.
type Row struct {
	ID        string   `json:"id"`
	Leg       string   `json:"leg"`
	Key       string   `json:"instrument_key"`
	Side      string   `json:"side"`
	Qty       int      `json:"qty"`
	Price     float64  `json:"price"`
	Mode      string   `json:"mode"`
	Reason    string   `json:"reason"`
	NetProfit *float64 `json:"net_profit"`
	TradedAt  string   `json:"traded_at"`
}

// Recent returns the last limit trades, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Row, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, leg, instrument_key, side, qty, price, mode, COALESCE(reason, ''), net_profit, traded_at
		 FROM trades ORDER BY traded_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var net sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.Leg, &r.Key, &r.Side, &r.Qty, &r.Price, &r.Mode, &r.Reason, &net, &r.TradedAt); err != nil {
			return nil, err
		}
		if net.Valid {
			v := net.Float64
			r.NetProfit = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// NetByLeg sums realised net profit per leg since the given time.
func (j *Journal) NetByLeg(ctx context.Context, since time.Time) (map[string]float64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT leg, COALESCE(SUM(net_profit), 0) FROM trades WHERE traded_at >= ? GROUP BY leg`,
		since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var leg string
		var net float64
		if err := rows.Scan(&leg, &net); err != nil {
			return nil, err
		}
		out[leg] = net
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
