// Package tradelog appends every ledger record to a per-leg daily JSONL file
// and gzips files past their retention.
package tradelog

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/markethours"
	"options-momentum-bot/internal/types"
)

const ext = ".jsonl"

// LogDir is TRADER_LOG_DIR or "logs".
func LogDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

// Log is a TradeSink writing trades/<date>_<LEG>.jsonl under dir.
type Log struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

var _ interfaces.TradeSink = (*Log)(nil)

func New(dir string) *Log {
	if dir == "" {
		dir = LogDir()
	}
	return &Log{dir: dir, now: time.Now}
}

func (l *Log) Dir() string { return l.dir }

// Path returns the file holding leg's trades for the IST day of t.
func (l *Log) Path(leg types.Leg, t time.Time) string {
	d := t.In(markethours.IST).Format("2006-01-02")
	return filepath.Join(l.dir, "trades", d+"_"+string(leg)+ext)
}

func (l *Log) AppendTrade(_ context.Context, rec types.TradeRecord) error {
	at := rec.Time
	if at.IsZero() {
		at = l.now()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode trade %s: %w", rec.ID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.Path(rec.Leg, at)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// ReadDay returns leg's records for the IST day of t in file order. A missing
// file is an empty day. Unparseable lines are skipped.
func (l *Log) ReadDay(leg types.Leg, t time.Time) ([]types.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.Path(leg, t))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []types.TradeRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec types.TradeRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}

// CompressOlder gzips trade files last modified more than retentionDays ago.
func (l *Log) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := l.now().AddDate(0, 0, -retentionDays)

	return filepath.WalkDir(l.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := gzipFile(p, gz); err != nil {
			return fmt.Errorf("compress %s: %w", p, err)
		}
		return os.Remove(p)
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
