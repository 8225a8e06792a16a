package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-momentum-bot/internal/types"
)

type fakeGateway struct {
	orders []types.OrderRequest
	fail   bool
}

func (g *fakeGateway) PlaceOrder(_ context.Context, req types.OrderRequest) (types.Fill, error) {
	if g.fail {
		return types.Fill{}, errors.New("insufficient margin")
	}
	g.orders = append(g.orders, req)
	return types.Fill{OrderID: "ord", Price: req.Price, Mode: types.Paper}, nil
}

func scenarioParams() Params {
	return Params{
		LowerBound:     90,
		UpperBound:     110,
		StopLossOffset: 20,
		TrailOffset:    3,
		TrailThreshold: 2,
		TrailInitial:   1,
		LotSize:        35,
		OptionType:     types.Call,
	}
}

var testInstrument = types.Instrument{
	Underlying: "NIFTYBANK",
	Expiry:     "2026-10-29",
	Strike:     52000,
	OptionType: types.Call,
	Key:        "NSE_FO|43210",
}

func newTestMachine(t *testing.T, p Params, g *fakeGateway) *Machine {
	t.Helper()
	m, err := NewMachine(p, g)
	require.NoError(t, err)
	require.NoError(t, m.SetInstrument(testInstrument))
	return m
}

func feed(t *testing.T, m *Machine, ticks ...float64) []Decision {
	t.Helper()
	var out []Decision
	for _, ltp := range ticks {
		d, err := m.OnTick(context.Background(), ltp)
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

func TestScenarioBuyThenTrailingExit(t *testing.T) {
	g := &fakeGateway{}
	m := newTestMachine(t, scenarioParams(), g)

	ds := feed(t, m, 100, 105)
	assert.Equal(t, Hold, ds[0].Action)
	require.Equal(t, Buy, ds[1].Action)
	require.NotNil(t, ds[1].Fill)
	assert.Equal(t, 105.0, ds[1].Fill.Price)

	long, ok := m.Position().Long()
	require.True(t, ok)
	assert.Equal(t, Long{Entry: 105, Stop: 85, Peak: 105}, long)

	ds = feed(t, m, 95)
	require.Equal(t, Sell, ds[0].Action)
	assert.Equal(t, ReasonTrailingStop, ds[0].Reason)
	assert.Equal(t, 95.0, ds[0].Fill.Price)
	assert.False(t, m.Position().IsLong())

	require.Len(t, g.orders, 2)
	assert.Equal(t, types.Buy, g.orders[0].Side)
	assert.Equal(t, types.Sell, g.orders[1].Side)
	assert.Equal(t, 35, g.orders[1].Quantity)
}

func TestScenarioOutOfBandFirstTick(t *testing.T) {
	p := scenarioParams()
	p.LowerBound, p.UpperBound = 100, 200
	g := &fakeGateway{}
	m := newTestMachine(t, p, g)

	d, err := m.OnTick(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, Rotate, d.Action)
	assert.False(t, d.ForceClose)
	assert.Nil(t, d.Fill)
	assert.Empty(t, g.orders)
	assert.False(t, m.Position().IsLong())
}

func TestOutOfBandClosesLongPosition(t *testing.T) {
	g := &fakeGateway{}
	m := newTestMachine(t, scenarioParams(), g)
	feed(t, m, 100, 101)
	require.True(t, m.Position().IsLong())

	d, err := m.OnTick(context.Background(), 120)
	require.NoError(t, err)
	assert.Equal(t, Rotate, d.Action)
	assert.True(t, d.ForceClose)
	require.NotNil(t, d.Fill)
	assert.Equal(t, 120.0, d.Fill.Price)
	assert.Equal(t, ReasonRangeExit, d.Fill.Reason)
	assert.False(t, m.Position().IsLong())

	_, hasPrev := m.Previous()
	assert.False(t, hasPrev)
}

func TestOutOfBandResetsEvenWhenCloseFails(t *testing.T) {
	g := &fakeGateway{}
	m := newTestMachine(t, scenarioParams(), g)
	feed(t, m, 100, 101)

	g.fail = true
	d, err := m.OnTick(context.Background(), 80)
	assert.ErrorIs(t, err, ErrOrderFailed)
	assert.Equal(t, Rotate, d.Action)
	assert.True(t, d.ForceClose)
	assert.Nil(t, d.Fill)
	assert.False(t, m.Position().IsLong())
}

func TestHardStop(t *testing.T) {
	p := scenarioParams()
	p.StopLossOffset = 2
	p.TrailOffset, p.TrailInitial = 10, 10
	g := &fakeGateway{}
	m := newTestMachine(t, p, g)

	feed(t, m, 100, 101)
	ds := feed(t, m, 99)
	assert.Equal(t, Sell, ds[0].Action)
	assert.Equal(t, ReasonStopLoss, ds[0].Reason)
}

func TestTrailTightensAboveThreshold(t *testing.T) {
	g := &fakeGateway{}
	m := newTestMachine(t, scenarioParams(), g)

	feed(t, m, 95, 96) // entry 96
	// 98 is at entry+threshold: tight trail of 1 from peak 98
	ds := feed(t, m, 98, 97.5)
	assert.Equal(t, Hold, ds[0].Action)
	// 97.5 is below entry+threshold so the loose trail of 3 applies: 98-3=95
	assert.Equal(t, Hold, ds[1].Action)

	ds = feed(t, m, 101, 100)
	assert.Equal(t, Hold, ds[0].Action)
	// 100 >= 98 so tight: 101-1=100, sells at 100
	assert.Equal(t, Sell, ds[1].Action)
	assert.Equal(t, ReasonTrailingStop, ds[1].Reason)
}

func TestNoBuyWithoutUptick(t *testing.T) {
	g := &fakeGateway{}
	m := newTestMachine(t, scenarioParams(), g)

	ds := feed(t, m, 100, 100, 99, 98)
	for _, d := range ds {
		assert.Equal(t, Hold, d.Action)
	}
	assert.Empty(t, g.orders)
}

func TestPrimeAllowsImmediateEntry(t *testing.T) {
	g := &fakeGateway{}
	m := newTestMachine(t, scenarioParams(), g)
	m.Prime(100)

	ds := feed(t, m, 101)
	assert.Equal(t, Buy, ds[0].Action)
}

func TestFailedBuyLeavesMachineFlat(t *testing.T) {
	g := &fakeGateway{fail: true}
	m := newTestMachine(t, scenarioParams(), g)

	_, err := m.OnTick(context.Background(), 100)
	require.NoError(t, err)
	d, err := m.OnTick(context.Background(), 101)
	assert.ErrorIs(t, err, ErrOrderFailed)
	assert.Equal(t, Buy, d.Action)
	assert.Nil(t, d.Fill)
	assert.False(t, m.Position().IsLong())

	prev, ok := m.Previous()
	assert.True(t, ok)
	assert.Equal(t, 101.0, prev)

	g.fail = false
	ds := feed(t, m, 102)
	assert.Equal(t, Buy, ds[0].Action)
}

func TestFailedSellKeepsPositionAndTracksPeak(t *testing.T) {
	g := &fakeGateway{}
	m := newTestMachine(t, scenarioParams(), g)
	feed(t, m, 100, 105, 108)

	g.fail = true
	_, err := m.OnTick(context.Background(), 104)
	assert.ErrorIs(t, err, ErrOrderFailed)

	long, ok := m.Position().Long()
	require.True(t, ok)
	assert.Equal(t, 108.0, long.Peak)
	assert.Equal(t, 105.0, long.Entry)
}

func TestAtMostOneOpenPositionAndPeakMonotonic(t *testing.T) {
	g := &fakeGateway{}
	m := newTestMachine(t, scenarioParams(), g)

	ticks := []float64{95, 96, 97, 99, 102, 104, 103.5, 104.5, 106, 105.2, 91, 92, 93, 92.5, 94, 96, 95.5}
	long := false
	lastPeak := 0.0
	for _, ltp := range ticks {
		d, err := m.OnTick(context.Background(), ltp)
		require.NoError(t, err)

		if d.Action == Buy {
			assert.False(t, long, "BUY while already long at %.2f", ltp)
			long = true
			lastPeak = 0
		}
		if d.Action == Sell {
			assert.True(t, long)
			assert.LessOrEqual(t, d.Fill.Price, lastPeak)
			long = false
		}
		if l, ok := m.Position().Long(); ok {
			assert.GreaterOrEqual(t, l.Peak, lastPeak)
			lastPeak = l.Peak
		}
	}
}

func TestInvalidateWhileFlat(t *testing.T) {
	g := &fakeGateway{}
	m := newTestMachine(t, scenarioParams(), g)
	m.Prime(100)

	d, err := m.Invalidate(context.Background(), 100, "STALE")
	require.NoError(t, err)
	assert.Equal(t, Rotate, d.Action)
	assert.False(t, d.ForceClose)
	assert.Empty(t, g.orders)
}

func TestSquareOff(t *testing.T) {
	g := &fakeGateway{}
	m := newTestMachine(t, scenarioParams(), g)

	fill, err := m.SquareOff(context.Background(), 100)
	require.NoError(t, err)
	assert.Nil(t, fill)

	feed(t, m, 100, 101)

	g.fail = true
	_, err = m.SquareOff(context.Background(), 100.5)
	assert.ErrorIs(t, err, ErrOrderFailed)
	assert.True(t, m.Position().IsLong())

	g.fail = false
	fill, err = m.SquareOff(context.Background(), 100.5)
	require.NoError(t, err)
	require.NotNil(t, fill)
	assert.Equal(t, ReasonSquareOff, fill.Reason)
	assert.False(t, m.Position().IsLong())
}

func TestSetInstrumentRefusedWhileLong(t *testing.T) {
	g := &fakeGateway{}
	m := newTestMachine(t, scenarioParams(), g)
	feed(t, m, 100, 101)

	err := m.SetInstrument(types.Instrument{Key: "NSE_FO|1"})
	assert.ErrorIs(t, err, ErrPositionOpen)
}

func TestTickWithoutInstrument(t *testing.T) {
	m, err := NewMachine(scenarioParams(), &fakeGateway{})
	require.NoError(t, err)

	_, err = m.OnTick(context.Background(), 100)
	assert.ErrorIs(t, err, ErrNoInstrument)
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"inverted band", func(p *Params) { p.LowerBound, p.UpperBound = 200, 100 }},
		{"negative lower", func(p *Params) { p.LowerBound = -1 }},
		{"zero upper", func(p *Params) { p.LowerBound, p.UpperBound = 0, 0 }},
		{"zero stop", func(p *Params) { p.StopLossOffset = 0 }},
		{"negative trail", func(p *Params) { p.TrailOffset = -1 }},
		{"zero lot", func(p *Params) { p.LotSize = 0 }},
		{"bad option type", func(p *Params) { p.OptionType = "XX" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := scenarioParams()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
		})
	}
	assert.NoError(t, scenarioParams().Validate())

	floor := scenarioParams()
	floor.LowerBound = 0
	assert.NoError(t, floor.Validate(), "a zero floor admits any price up to the upper bound")
}
