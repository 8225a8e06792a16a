package markethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ist(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, IST)
}

func TestIsOpen(t *testing.T) {
	s := Default()

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", ist(2026, 10, 15, 9, 19), false},
		{"at open", ist(2026, 10, 15, 9, 20), true},
		{"midday", ist(2026, 10, 15, 12, 0), true},
		{"last minute", ist(2026, 10, 15, 15, 29), true},
		{"at close", ist(2026, 10, 15, 15, 30), false},
		{"saturday", ist(2026, 10, 17, 11, 0), false},
		{"holiday", ist(2026, 10, 2, 11, 0), false},
		{"utc input", time.Date(2026, 10, 15, 4, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsOpen(tt.at))
		})
	}
}

func TestNextOpen(t *testing.T) {
	s := Default()

	assert.Equal(t, ist(2026, 10, 15, 9, 20), s.NextOpen(ist(2026, 10, 15, 8, 0)))
	assert.Equal(t, ist(2026, 10, 16, 9, 20), s.NextOpen(ist(2026, 10, 15, 16, 0)))
	// Friday evening rolls to Monday.
	assert.Equal(t, ist(2026, 10, 19, 9, 20), s.NextOpen(ist(2026, 10, 16, 16, 0)))
	// Monday then Dussehra on 20th and 21st.
	assert.Equal(t, ist(2026, 10, 22, 9, 20), s.NextOpen(ist(2026, 10, 19, 16, 0)))
}

func TestCustomSession(t *testing.T) {
	s, err := New("09:15", "15:30", []string{"2026-10-15"})
	require.NoError(t, err)
	assert.False(t, s.IsOpen(ist(2026, 10, 15, 10, 0)))
	assert.True(t, s.IsOpen(ist(2026, 10, 16, 9, 15)))

	_, err = New("15:30", "09:15", nil)
	assert.Error(t, err)
	_, err = New("09:15", "15:30", []string{"15/10/2026"})
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	s := Default()

	st := s.Status(ist(2026, 10, 15, 13, 0))
	assert.True(t, st.Open)
	assert.Equal(t, "Market open, closes in 2h30m", st.Message)

	st = s.Status(ist(2026, 10, 17, 10, 0))
	assert.False(t, st.Open)
	assert.Equal(t, ist(2026, 10, 19, 9, 20), st.NextOpen)
}
