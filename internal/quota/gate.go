// Package quota decides whether a tracker may spend a request right now.
package quota

import (
	"time"

	"github.com/pders01/ntrack/internal/tracker"
)

// DefaultWindow is the length of a request-count window.
const DefaultWindow = 24 * time.Hour

type Verdict int

const (
	// Proceed means a request was counted and the fetch may run.
	Proceed Verdict = iota
	// CoolingDown means a previous limit hit has not expired yet.
	CoolingDown
	// LimitReached means this call exhausted the window and started a cooldown.
	LimitReached
	// NotDue means a scheduled refresh came before the tracker's interval.
	NotDue
)

func (v Verdict) String() string {
	switch v {
	case Proceed:
		return "proceed"
	case CoolingDown:
		return "cooling-down"
	case LimitReached:
		return "limit-reached"
	case NotDue:
		return "not-due"
	}
	return "unknown"
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Gate applies the per-tracker daily request budget.
type Gate struct {
	Window       time.Duration
	DueTolerance time.Duration
}

func NewGate(window, dueTolerance time.Duration) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Gate{Window: window, DueTolerance: dueTolerance}
}

// Admit evaluates and updates the quota fields of t. It must run under the
// same lock that persists t. The interval check applies only to scheduled
// refreshes; manual refreshes skip it.
func (g *Gate) Admit(t *tracker.Tracker, now time.Time, scheduled bool) Verdict {
	if !now.Before(t.RequestResetTime) {
		t.RequestCount = 0
		t.RequestResetTime = now.Add(g.window())
		t.RateLimitedUntil = nil
	}

	if t.CoolingDown(now) {
		return CoolingDown
	}

	if t.RequestCount >= t.DailyRequestLimit {
		until := t.RequestResetTime
		t.RateLimitedUntil = &until
		return LimitReached
	}

	if scheduled && !t.Due(now, g.DueTolerance) {
		return NotDue
	}

	t.RequestCount++
	return Proceed
}

func (g *Gate) window() time.Duration {
	if g.Window <= 0 {
		return DefaultWindow
	}
	return g.Window
}
