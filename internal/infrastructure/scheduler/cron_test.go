package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/15 * * * *", false},
		{"0 2 * * *", false},
		{"30 6 * * 1-5", false},
		{"0 0,12 1 */2 *", false},
		{"0 2 * *", true},
		{"60 * * * *", true},
		{"* 24 * * *", true},
		{"*/0 * * * *", true},
		{"5-1 * * * *", true},
		{"a * * * *", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := ParseCronExpression(tt.expr, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDailyAtUsesLocation(t *testing.T) {
	local := time.FixedZone("UTC+5", 5*60*60)
	ce, err := DailyAt(2, 0, local)
	require.NoError(t, err)

	// 20:30 UTC on 1 March is 01:30 on 2 March locally.
	after := time.Date(2026, 3, 1, 20, 30, 0, 0, time.UTC)
	next := ce.Next(after)
	assert.Equal(t, time.Date(2026, 3, 2, 2, 0, 0, 0, local).Unix(), next.Unix())

	// Exactly on the minute: strictly after.
	assert.Equal(t, next.Add(24*time.Hour).Unix(), ce.Next(next).Unix())
	assert.Contains(t, ce.String(), "UTC+5")
}

func TestWeekdayExpression(t *testing.T) {
	ce, err := ParseCronExpression("30 6 * * 1-5", time.UTC)
	require.NoError(t, err)

	// Saturday 2026-03-07.
	next := ce.Next(time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 6, next.Hour())
	assert.Equal(t, 30, next.Minute())
}

func TestIntervalScheduleIsAligned(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &IntervalSchedule{Interval: 6 * time.Hour, Anchor: anchor}

	assert.Equal(t, anchor.Add(12*time.Hour), s.Next(anchor.Add(7*time.Hour)))
	assert.Equal(t, anchor.Add(6*time.Hour), s.Next(anchor), "strictly after")
	assert.Equal(t, anchor, s.Next(anchor.Add(-time.Minute)))
	assert.Equal(t, "@every 6h0m0s", s.String())

	assert.Equal(t, time.Second, NewIntervalSchedule(0).Interval)
}
