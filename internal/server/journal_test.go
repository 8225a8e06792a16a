package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"options-momentum-bot/internal/journal"
	"options-momentum-bot/internal/ledger"
	"options-momentum-bot/internal/markethours"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJournal struct {
	rows      []journal.Row
	net       map[string]float64
	err       error
	lastLimit int
	lastSince time.Time
}

func (j *fakeJournal) Recent(_ context.Context, limit int) ([]journal.Row, error) {
	j.lastLimit = limit
	if j.err != nil {
		return nil, j.err
	}
	if limit < len(j.rows) {
		return j.rows[:limit], nil
	}
	return j.rows, nil
}

func (j *fakeJournal) NetByLeg(_ context.Context, since time.Time) (map[string]float64, error) {
	j.lastSince = since
	return j.net, j.err
}

func newJournalServer(j Journal) *Server {
	l := ledger.New(ledger.WithClock(func() time.Time { return now }))
	return New(":0", l, newFakeController(), markethours.Default(),
		WithClock(func() time.Time { return now }),
		WithJournal(j),
	)
}

func TestJournalRoutesAbsentWithoutJournal(t *testing.T) {
	s, _, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), http.MethodGet, "/api/journal").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), http.MethodGet, "/api/journal/net").Code)
}

func TestJournalRecent(t *testing.T) {
	net := 350.0
	j := &fakeJournal{rows: []journal.Row{
		{ID: "2", Leg: "CE", Side: "SELL", Price: 110, NetProfit: &net},
		{ID: "1", Leg: "CE", Side: "BUY", Price: 100},
	}}
	s := newJournalServer(j)

	rec := do(t, s.Handler(), http.MethodGet, "/api/journal?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []journal.Row
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].ID)
	assert.Equal(t, 1, j.lastLimit)

	do(t, s.Handler(), http.MethodGet, "/api/journal")
	assert.Equal(t, 50, j.lastLimit)
	do(t, s.Handler(), http.MethodGet, "/api/journal?limit=100000")
	assert.Equal(t, 500, j.lastLimit)

	for _, bad := range []string{"0", "-3", "ten"} {
		assert.Equal(t, http.StatusBadRequest, do(t, s.Handler(), http.MethodGet, "/api/journal?limit="+bad).Code, bad)
	}
}

func TestJournalRecentEmptyIsArray(t *testing.T) {
	s := newJournalServer(&fakeJournal{})
	rec := do(t, s.Handler(), http.MethodGet, "/api/journal")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestJournalNet(t *testing.T) {
	j := &fakeJournal{net: map[string]float64{"CE": 350, "PE": -120}}
	s := newJournalServer(j)

	rec := do(t, s.Handler(), http.MethodGet, "/api/journal/net")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"since":"2026-10-15","net":{"CE":350,"PE":-120}}`, rec.Body.String())
	assert.True(t, j.lastSince.Equal(time.Date(2026, 10, 15, 0, 0, 0, 0, markethours.IST)))

	rec = do(t, s.Handler(), http.MethodGet, "/api/journal/net?since=2026-10-01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, j.lastSince.Equal(time.Date(2026, 10, 1, 0, 0, 0, 0, markethours.IST)))

	assert.Equal(t, http.StatusBadRequest, do(t, s.Handler(), http.MethodGet, "/api/journal/net?since=01/10/2026").Code)
}

func TestJournalReadFailure(t *testing.T) {
	s := newJournalServer(&fakeJournal{err: errors.New("database is locked")})
	assert.Equal(t, http.StatusInternalServerError, do(t, s.Handler(), http.MethodGet, "/api/journal").Code)
	assert.Equal(t, http.StatusInternalServerError, do(t, s.Handler(), http.MethodGet, "/api/journal/net").Code)
}
