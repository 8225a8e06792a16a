package tradelog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"options-momentum-bot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestAppendAndReadDayPerLeg(t *testing.T) {
	l := New(t.TempDir())
	ctx := context.Background()
	at := time.Date(2026, 10, 15, 4, 0, 0, 0, time.UTC) // 09:30 IST

	require.NoError(t, l.AppendTrade(ctx, types.TradeRecord{ID: "1", Time: at, Leg: types.Call, Side: types.Buy, Price: 100, Quantity: 35}))
	require.NoError(t, l.AppendTrade(ctx, types.TradeRecord{ID: "2", Time: at.Add(time.Minute), Leg: types.Call, Side: types.Sell, Price: 110, Quantity: 35, NetProfit: ptr(300)}))
	require.NoError(t, l.AppendTrade(ctx, types.TradeRecord{ID: "3", Time: at, Leg: types.Put, Side: types.Buy, Price: 90, Quantity: 35}))

	ce, err := l.ReadDay(types.Call, at)
	require.NoError(t, err)
	require.Len(t, ce, 2)
	assert.Equal(t, "1", ce[0].ID)
	assert.True(t, ce[1].Closed())
	assert.Equal(t, 300.0, *ce[1].NetProfit)

	pe, err := l.ReadDay(types.Put, at)
	require.NoError(t, err)
	assert.Len(t, pe, 1)

	assert.FileExists(t, filepath.Join(l.Dir(), "trades", "2026-10-15_CE.jsonl"))
}

func TestDayBoundaryIsIST(t *testing.T) {
	l := New(t.TempDir())
	// 20:00 UTC on the 14th is 01:30 IST on the 15th.
	at := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, filepath.Join(l.Dir(), "trades", "2026-10-15_PE.jsonl"), l.Path(types.Put, at))
}

func TestReadMissingDay(t *testing.T) {
	recs, err := New(t.TempDir()).ReadDay(types.Call, time.Now())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReadSkipsGarbage(t *testing.T) {
	l := New(t.TempDir())
	at := time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC)
	p := l.Path(types.Call, at)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("not json\n{\"id\":\"ok\",\"action\":\"BUY\"}\n"), 0o644))

	recs, err := l.ReadDay(types.Call, at)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ok", recs[0].ID)
}

func TestCompressOlder(t *testing.T) {
	l := New(t.TempDir())
	now := time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	old := time.Date(2026, 10, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, l.AppendTrade(context.Background(), types.TradeRecord{ID: "old", Time: old, Leg: types.Call}))
	require.NoError(t, l.AppendTrade(context.Background(), types.TradeRecord{ID: "new", Time: now, Leg: types.Call}))
	oldPath := l.Path(types.Call, old)
	require.NoError(t, os.Chtimes(oldPath, old, old))
	require.NoError(t, os.Chtimes(l.Path(types.Call, now), now, now))

	require.NoError(t, l.CompressOlder(7))

	assert.NoFileExists(t, oldPath)
	assert.FileExists(t, oldPath+".gz")
	assert.FileExists(t, l.Path(types.Call, now))
}

func TestCompressDisabled(t *testing.T) {
	assert.NoError(t, New(t.TempDir()).CompressOlder(0))
}
