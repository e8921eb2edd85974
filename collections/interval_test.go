package collections

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalMinutes(t *testing.T) {
	tests := []struct {
		interval string
		want     int
		wantErr  bool
	}{
		{interval: "09:00-10:00", want: 60},
		{interval: "09:00-09:30", want: 30},
		{interval: "08:15-10:45", want: 150},
		{interval: "10:00", wantErr: true},
		{interval: "morning-noon", wantErr: true},
		{interval: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := IntervalMinutes(tt.interval)
		if tt.wantErr {
			assert.Error(t, err, tt.interval)
			continue
		}
		require.NoError(t, err, tt.interval)
		assert.Equal(t, tt.want, got, tt.interval)
	}
}

func TestIntervalKeyRoundTrip(t *testing.T) {
	key := IntervalKey("09:00", "10:00")
	assert.Equal(t, "09:00-10:00", key)

	start, end, err := SplitInterval(key)
	require.NoError(t, err)
	assert.Equal(t, "09:00", start)
	assert.Equal(t, "10:00", end)
}

func TestMonthOf(t *testing.T) {
	month, err := MonthOf("2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", month)

	_, err = MonthOf("05.03.2024")
	assert.Error(t, err)
	_, err = MonthOf("")
	assert.Error(t, err)
}

func TestNextMonthKey(t *testing.T) {
	tests := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), "2024-04"},
		{time.Date(2024, time.December, 31, 23, 0, 0, 0, time.UTC), "2025-01"},
		// The 31st must not skip short months.
		{time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC), "2024-02"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextMonthKey(tt.now))
	}
}
