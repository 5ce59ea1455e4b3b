package keeper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimitsCheck(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := NewDailyTracker()
	limits := Limits{MaxRunsPerDay: 2, Cooldown: time.Hour}

	d := limits.Check(tracker, "a", start)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.RunsToday)

	tracker.Record("a", start)
	d = limits.Check(tracker, "a", start.Add(30*time.Minute))
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "cooling down for another 30m0s")

	// other portfolios are tracked separately
	assert.True(t, limits.Check(tracker, "b", start).Allowed)

	tracker.Record("a", start.Add(2*time.Hour))
	d = limits.Check(tracker, "a", start.Add(4*time.Hour))
	assert.False(t, d.Allowed)
	assert.Equal(t, 2, d.RunsToday)
	assert.Contains(t, d.Reason, "daily limit")

	// the first run ages out of the 24h window
	d = limits.Check(tracker, "a", start.Add(24*time.Hour+time.Minute))
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.RunsToday)

	tracker.Reset()
	assert.Empty(t, tracker.Runs("a", start))
}

func TestUnlimited(t *testing.T) {
	now := time.Now()
	tracker := NewDailyTracker()
	for i := 0; i < 100; i++ {
		tracker.Record("a", now)
	}
	assert.True(t, Limits{}.Check(tracker, "a", now).Allowed)
}
