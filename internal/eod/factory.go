package eod

import (
	"time"

	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/markethours"
	"options-momentum-bot/internal/tradelog"
	"options-momentum-bot/internal/types"
)

type Option func(*summarizer)

func WithClock(now func() time.Time) Option { return func(s *summarizer) { s.now = now } }

func WithLegs(legs ...types.Leg) Option { return func(s *summarizer) { s.legs = legs } }

// NewSummarizer builds summaries from log's per-leg files into <log dir>/eod.
func NewSummarizer(log *tradelog.Log, session *markethours.Session, opts ...Option) interfaces.EodSummarizer {
	s := &summarizer{
		log:     log,
		session: session,
		dir:     log.Dir(),
		legs:    types.Legs,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}
