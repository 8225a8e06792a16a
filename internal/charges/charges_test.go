package charges

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeComponents(t *testing.T) {
	c := Compute(105, 95, 70)

	turnover := (105.0 + 95.0) * 70
	assert.Equal(t, 40.0, c.Brokerage)
	assert.InDelta(t, 95*70*0.000625, c.STT, 1e-9)
	assert.InDelta(t, turnover*0.0003503, c.TxnCharges, 1e-9)
	assert.InDelta(t, 105*70*0.00003, c.StampDuty, 1e-9)
	assert.InDelta(t, turnover*10/1e7, c.SEBIFee, 1e-9)
	assert.InDelta(t, turnover*0.50/1e5, c.IPFTFee, 1e-9)
	assert.InDelta(t, 0.18*(40+turnover*0.0003503), c.GST, 1e-9)
}

func TestComputeTotalIsSumOfComponents(t *testing.T) {
	cases := []struct {
		entry, exit float64
		qty         int
	}{
		{105, 95, 70},
		{150.5, 162.25, 35},
		{100, 100, 1},
		{199.95, 100.05, 1050},
	}
	for _, tc := range cases {
		c := Compute(tc.entry, tc.exit, tc.qty)
		sum := c.Brokerage + c.STT + c.TxnCharges + c.StampDuty + c.SEBIFee + c.IPFTFee + c.GST
		assert.InDelta(t, sum, c.Total, 1e-9, "entry=%v exit=%v qty=%d", tc.entry, tc.exit, tc.qty)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	first := Compute(123.45, 130.1, 70)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Compute(123.45, 130.1, 70))
	}
}

func TestScheduleOverride(t *testing.T) {
	s := DefaultSchedule()
	s.BrokeragePerOrder = 0
	s.GSTRate = 0

	c := s.Compute(100, 110, 10)
	assert.Zero(t, c.Brokerage)
	assert.Zero(t, c.GST)
	assert.Greater(t, c.Total, 0.0)
}

func TestRound2(t *testing.T) {
	c := Round2(Compute(105, 95, 70))
	for _, v := range []float64{c.Brokerage, c.STT, c.TxnCharges, c.StampDuty, c.SEBIFee, c.IPFTFee, c.GST, c.Total} {
		assert.InDelta(t, math.Round(v*100)/100, v, 1e-9)
	}
	assert.Equal(t, 1.24, Round(1.235))
	assert.Equal(t, -1.24, Round(-1.235))
}
