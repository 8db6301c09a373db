package timeutil

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDateKeyUsesWallClock(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	// 2024-03-10 20:30 UTC is already 2024-03-11 in Seoul.
	ts := time.Date(2024, 3, 10, 20, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-10", LocalDateKey(ts))
	assert.Equal(t, "2024-03-11", LocalDateKey(ts.In(seoul)))
}

func TestParseDateKey(t *testing.T) {
	got, err := ParseDateKey("2024-02-29", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDateKey("2024-02-30", time.UTC)
	assert.Error(t, err)
}

func TestMinutesSinceMidnight(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ts   time.Time
		want int
	}{
		{"midnight", day, 0},
		{"morning", time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC), 570},
		{"rounds to nearest minute", time.Date(2024, 5, 1, 9, 30, 40, 0, time.UTC), 571},
		{"previous day clamps to zero", time.Date(2024, 4, 30, 22, 0, 0, 0, time.UTC), 0},
		{"next midnight is the end", time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), MinutesPerDay},
		{"next day clamps to end", time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC), MinutesPerDay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MinutesSinceMidnight(tt.ts, day))
		})
	}
}

func TestMinutesSinceMidnightFollowsWallClockOnDSTDays(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name string
		day  time.Time
		ts   time.Time
		want int
	}{
		{"spring forward morning", time.Date(2024, 3, 10, 0, 0, 0, 0, ny), time.Date(2024, 3, 10, 10, 0, 0, 0, ny), 600},
		{"spring forward late evening", time.Date(2024, 3, 10, 0, 0, 0, 0, ny), time.Date(2024, 3, 10, 23, 30, 0, 0, ny), 1410},
		{"spring forward after the gap", time.Date(2024, 3, 10, 0, 0, 0, 0, ny), time.Date(2024, 3, 10, 3, 0, 0, 0, ny), 180},
		{"fall back morning", time.Date(2024, 11, 3, 0, 0, 0, 0, ny), time.Date(2024, 11, 3, 10, 0, 0, 0, ny), 600},
		{"fall back late evening", time.Date(2024, 11, 3, 0, 0, 0, 0, ny), time.Date(2024, 11, 3, 23, 30, 0, 0, ny), 1410},
		{"fall back next midnight", time.Date(2024, 11, 3, 0, 0, 0, 0, ny), time.Date(2024, 11, 4, 0, 0, 0, 0, ny), MinutesPerDay},
		{"utc instant read in day's zone", time.Date(2024, 11, 3, 0, 0, 0, 0, ny), time.Date(2024, 11, 3, 15, 0, 0, 0, time.UTC), 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MinutesSinceMidnight(tt.ts, tt.day))
		})
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("09:05")
	require.NoError(t, err)
	assert.Equal(t, 9, h)
	assert.Equal(t, 5, m)

	for _, bad := range []string{"", "9", "24:00", "12:60", "ab:cd", "12:5"} {
		_, _, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrInvalidClock, bad)
	}
}

func TestAtClockAndDayBounds(t *testing.T) {
	day := time.Date(2024, 1, 1, 17, 45, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), AtClock(day, 9, 0))

	start, end := DayBounds(day)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), end)
}

func TestAddMonthsClamped(t *testing.T) {
	jan31 := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   time.Time
		n    int
		want time.Time
	}{
		{"leap february", jan31, 1, time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC)},
		{"back to a long month", jan31, 2, time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC)},
		{"thirty day month", jan31, 3, time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC)},
		{"year rollover", time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC), 3, time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)},
		{"non-leap february", time.Date(2023, 1, 29, 0, 0, 0, 0, time.UTC), 1, time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC)},
		{"negative months", time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), -1, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"zero", jan31, 0, jan31},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddMonthsClamped(tt.in, tt.n))
		})
	}
}

func TestDaysIn(t *testing.T) {
	assert.Equal(t, 29, DaysIn(2024, time.February))
	assert.Equal(t, 28, DaysIn(2023, time.February))
	assert.Equal(t, 31, DaysIn(2024, time.December))
}
