package eod

import (
	"context"
	"encoding/csv"
	"os"
	"testing"
	"time"

	"options-momentum-bot/internal/markethours"
	"options-momentum-bot/internal/tradelog"
	"options-momentum-bot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func closed(id string, leg types.Leg, at time.Time, gross, chg, net float64) types.TradeRecord {
	return types.TradeRecord{
		ID: id, Time: at, Leg: leg, Side: types.Sell, Quantity: 35, Price: 110,
		GrossProfit: ptr(gross), NetProfit: ptr(net), Charges: &types.Charges{Total: chg},
	}
}

func buy(id string, leg types.Leg, at time.Time, price float64) types.TradeRecord {
	return types.TradeRecord{ID: id, Time: at, Leg: leg, Side: types.Buy, Quantity: 35, Price: price}
}

func readCSV(t *testing.T, p string) [][]string {
	t.Helper()
	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSummarizeDay(t *testing.T) {
	log := tradelog.New(t.TempDir())
	ctx := context.Background()
	day := time.Date(2026, 10, 15, 10, 0, 0, 0, markethours.IST)

	for _, rec := range []types.TradeRecord{
		buy("1", types.Call, day, 100),
		closed("2", types.Call, day, 350, 50, 300),
		buy("3", types.Call, day, 120),
		closed("4", types.Call, day, -70, 50, -120),
		buy("5", types.Put, day, 90),
		{ID: "6", Time: day, Leg: types.Put, Side: types.Sell, Quantity: 35, Price: 95},
	} {
		require.NoError(t, log.AppendTrade(ctx, rec))
	}

	s := NewSummarizer(log, markethours.Default())
	p, err := s.SummarizeDay(day)
	require.NoError(t, err)

	rows := readCSV(t, p)
	require.Len(t, rows, 4)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, []string{"CE", "2", "2", "2", "1", "50.00", "280.00", "100.00", "180.00", "7700.00", "0"}, rows[1])
	assert.Equal(t, []string{"PE", "1", "1", "0", "0", "0.00", "0.00", "0.00", "0.00", "3150.00", "1"}, rows[2])
	assert.Equal(t, "TOTAL", rows[3][0])
	assert.Equal(t, "180.00", rows[3][8])
}

func TestSummarizeEmptyDay(t *testing.T) {
	s := NewSummarizer(tradelog.New(t.TempDir()), markethours.Default())
	p, err := s.SummarizeDay(time.Date(2026, 10, 15, 10, 0, 0, 0, markethours.IST))
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestShouldRunNow(t *testing.T) {
	log := tradelog.New(t.TempDir())
	at := func(h, m int) time.Time { return time.Date(2026, 10, 15, h, m, 0, 0, markethours.IST) }

	s := NewSummarizer(log, markethours.Default(), WithClock(func() time.Time { return at(15, 0) }))
	ok, _ := s.ShouldRunNow()
	assert.False(t, ok, "session still open")

	now := at(15, 45)
	s = NewSummarizer(log, markethours.Default(), WithClock(func() time.Time { return now }))
	ok, p := s.ShouldRunNow()
	assert.True(t, ok)

	require.NoError(t, log.AppendTrade(context.Background(), buy("1", types.Call, now, 100)))
	written, err := s.SummarizeToday()
	require.NoError(t, err)
	assert.Equal(t, p, written)

	ok, _ = s.ShouldRunNow()
	assert.False(t, ok, "already written")
}

func TestShouldNotRunOnWeekend(t *testing.T) {
	sat := time.Date(2026, 10, 17, 16, 0, 0, 0, markethours.IST)
	s := NewSummarizer(tradelog.New(t.TempDir()), markethours.Default(), WithClock(func() time.Time { return sat }))
	ok, _ := s.ShouldRunNow()
	assert.False(t, ok)
}
