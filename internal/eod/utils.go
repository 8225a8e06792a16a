package eod

import (
	"path/filepath"
	"time"

	"options-momentum-bot/internal/markethours"
)

// runDelay is how long after the session close the summary becomes due.
const runDelay = 10 * time.Minute

func (s *summarizer) istNow() time.Time {
	return s.now().In(markethours.IST)
}

func (s *summarizer) csvPath(t time.Time) string {
	d := t.In(markethours.IST).Format("2006-01-02")
	return filepath.Join(s.dir, "eod", d+".csv")
}
