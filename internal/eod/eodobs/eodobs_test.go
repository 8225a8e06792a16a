package eodobs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSummarizer struct {
	path string
	err  error
	due  bool
	days []time.Time
}

func (f *fakeSummarizer) SummarizeDay(t time.Time) (string, error) {
	f.days = append(f.days, t)
	return f.path, f.err
}

func (f *fakeSummarizer) SummarizeToday() (string, error) { return f.path, f.err }
func (f *fakeSummarizer) ShouldRunNow() (bool, string)    { return f.due, f.path }

func TestWrapPassesResultsThrough(t *testing.T) {
	inner := &fakeSummarizer{path: "logs/eod/2026-10-15.csv", due: true}
	s := Wrap(inner)

	day := time.Date(2026, 10, 15, 16, 0, 0, 0, time.UTC)
	p, err := s.SummarizeDay(day)
	require.NoError(t, err)
	assert.Equal(t, inner.path, p)
	assert.Equal(t, []time.Time{day}, inner.days)

	p, err = s.SummarizeToday()
	require.NoError(t, err)
	assert.Equal(t, inner.path, p)

	due, p := s.ShouldRunNow()
	assert.True(t, due)
	assert.Equal(t, inner.path, p)
}

func TestWrapEmptyPathIsNotAnError(t *testing.T) {
	p, err := Wrap(&fakeSummarizer{}).SummarizeToday()
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestWrapReturnsErrors(t *testing.T) {
	boom := errors.New("disk full")
	p, err := Wrap(&fakeSummarizer{path: "x.csv", err: boom}).SummarizeDay(time.Now())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, p)
}
