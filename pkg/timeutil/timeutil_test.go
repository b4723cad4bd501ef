package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysBetween(t *testing.T) {
	loc, err := LoadLocation("Asia/Almaty")
	require.NoError(t, err)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, loc)

	assert.Equal(t, 0, DaysBetween(start, start.Add(23*time.Hour), loc))
	assert.Equal(t, 1, DaysBetween(start, start.Add(24*time.Hour), loc))
	assert.Equal(t, -1, DaysBetween(start, start.Add(-time.Minute), loc))
	assert.Equal(t, 29, DaysBetween(start, time.Date(2026, 3, 30, 12, 0, 0, 0, loc), loc))
}

func TestDaysBetweenAcrossDST(t *testing.T) {
	loc, err := LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// Clocks jump forward on 2026-03-29, so that day is 23 hours long.
	start := time.Date(2026, 3, 28, 0, 0, 0, 0, loc)
	justAfterMidnight := time.Date(2026, 3, 30, 0, 5, 0, 0, loc)

	assert.Equal(t, 2, DaysBetween(start, justAfterMidnight, loc))
}

func TestLoadLocationDefault(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, loc.String())

	_, err = LoadLocation("Mars/Olympus")
	assert.Error(t, err)
}

func TestFormatDateAndAddDays(t *testing.T) {
	loc, err := LoadLocation("Asia/Almaty")
	require.NoError(t, err)

	d := time.Date(2026, 1, 5, 0, 0, 0, 0, loc)
	assert.Equal(t, "2026-01-05", FormatDate(d, loc))
	assert.Equal(t, "2026-01-04", FormatDate(d, time.UTC), "local midnight is the previous UTC day")
	assert.Equal(t, "2026-01-07", FormatDate(AddDays(d.Add(5*time.Hour), 2, loc), loc))
}
