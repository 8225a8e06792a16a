package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"options-momentum-bot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestAppendAndQuery(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "db", "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	at := time.Date(2026, 10, 15, 4, 0, 0, 0, time.UTC)
	inst := types.Instrument{Key: "NSE_FO|1", Strike: 52000, Expiry: "2026-10-20", OptionType: types.Call}

	require.NoError(t, j.AppendTrade(ctx, types.TradeRecord{ID: "a", Time: at, Leg: types.Call, Instrument: inst, Side: types.Buy, Quantity: 35, Price: 100, Mode: types.Paper}))
	require.NoError(t, j.AppendTrade(ctx, types.TradeRecord{
		ID: "b", Time: at.Add(time.Minute), Leg: types.Call, Instrument: inst, Side: types.Sell, Quantity: 35, Price: 110, Mode: types.Paper,
		EntryPrice: ptr(100), GrossProfit: ptr(350), NetProfit: ptr(290.5), DayPnL: ptr(290.5), Charges: &types.Charges{Total: 59.5},
	}))
	require.NoError(t, j.AppendTrade(ctx, types.TradeRecord{ID: "c", Time: at, Leg: types.Put, Side: types.Sell, Quantity: 35, Price: 80, Mode: types.Paper}))

	rows, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].ID)
	require.NotNil(t, rows[0].NetProfit)
	assert.Equal(t, 290.5, *rows[0].NetProfit)

	net, err := j.NetByLeg(ctx, at.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 290.5, net["CE"])
	assert.Equal(t, 0.0, net["PE"])
}

func TestDuplicateIDIgnored(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	rec := types.TradeRecord{ID: "x", Time: time.Now(), Leg: types.Call, Side: types.Buy, Quantity: 1, Price: 1, Mode: types.Paper}
	require.NoError(t, j.AppendTrade(context.Background(), rec))
	require.NoError(t, j.AppendTrade(context.Background(), rec))

	rows, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
