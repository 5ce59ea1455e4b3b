package keeper

import (
	"fmt"
	"sync"
	"time"
)

// Limits bound how often the keeper trades one portfolio.
type Limits struct {
	MaxRunsPerDay int           // rolling 24h, 0 = unlimited
	Cooldown      time.Duration // minimum gap after a run that traded
}

func DefaultLimits() Limits {
	return Limits{
		MaxRunsPerDay: 24,
		Cooldown:      10 * time.Minute,
	}
}

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed   bool
	Reason    string
	RunsToday int
}

// Check decides whether name may run at now.
func (l Limits) Check(t *DailyTracker, name string, now time.Time) Decision {
	runs := t.Runs(name, now)
	d := Decision{Allowed: true, RunsToday: len(runs)}

	if l.MaxRunsPerDay > 0 && len(runs) >= l.MaxRunsPerDay {
		d.Allowed = false
		d.Reason = fmt.Sprintf("daily limit reached: %d runs in 24h", len(runs))
		return d
	}

	if l.Cooldown > 0 && len(runs) > 0 {
		last := runs[len(runs)-1]
		if wait := last.Add(l.Cooldown).Sub(now); wait > 0 {
			d.Allowed = false
			d.Reason = fmt.Sprintf("cooling down for another %s", wait.Round(time.Second))
			return d
		}
	}

	return d
}

// DailyTracker tracks rolling 24-hour run times per portfolio
type DailyTracker struct {
	mu   sync.Mutex
	runs map[string][]time.Time
}

func NewDailyTracker() *DailyTracker {
	return &DailyTracker{runs: make(map[string][]time.Time)}
}

// Record adds a run that traded.
func (t *DailyTracker) Record(name string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[name] = append(t.cleanup(name, at), at)
}

// Runs returns the runs of the last 24 hours, oldest first.
func (t *DailyTracker) Runs(name string, now time.Time) []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	runs := t.cleanup(name, now)
	t.runs[name] = runs
	return append([]time.Time(nil), runs...)
}

// Reset clears all tracked runs
func (t *DailyTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs = make(map[string][]time.Time)
}

func (t *DailyTracker) cleanup(name string, now time.Time) []time.Time {
	cutoff := now.Add(-24 * time.Hour)

	kept := make([]time.Time, 0, len(t.runs[name]))
	for _, at := range t.runs[name] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	return kept
}
