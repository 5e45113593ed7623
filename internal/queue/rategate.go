package queue

import "time"

// RateGate is the sole admission authority for outbound API calls. It
// permits a call only when both hold:
//   - fewer than windowCapacity calls happened in the last windowDuration
//   - at least minSpacing has passed since the previous call
//
// The gate carries no lock of its own: the dispatcher is its only user, so
// TryAcquire followed by Record is atomic in practice.
type RateGate struct {
	windowCapacity int
	windowDuration time.Duration
	minSpacing     time.Duration

	calls []time.Time // call times still inside the window, oldest first
}

func NewRateGate(capacity int, window, spacing time.Duration) *RateGate {
	return &RateGate{
		windowCapacity: capacity,
		windowDuration: window,
		minSpacing:     spacing,
	}
}

// TryAcquire reports whether a call may happen at now. It is side-effect
// free apart from dropping expired window entries; the caller must Record
// the call immediately when it proceeds.
func (g *RateGate) TryAcquire(now time.Time) bool {
	g.prune(now)
	if len(g.calls) >= g.windowCapacity {
		return false
	}
	if len(g.calls) > 0 && now.Sub(g.calls[len(g.calls)-1]) < g.minSpacing {
		return false
	}
	return true
}

// Record charges one call against the budget.
func (g *RateGate) Record(now time.Time) {
	g.calls = append(g.calls, now)
}

// NextEligible returns the earliest instant at which TryAcquire would
// succeed, assuming no further calls are recorded. Returns now when the
// gate is already open.
func (g *RateGate) NextEligible(now time.Time) time.Time {
	g.prune(now)
	eligible := now
	if len(g.calls) > 0 {
		if at := g.calls[len(g.calls)-1].Add(g.minSpacing); at.After(eligible) {
			eligible = at
		}
	}
	if len(g.calls) >= g.windowCapacity {
		// The oldest entry expires exactly windowDuration after it was made.
		if at := g.calls[0].Add(g.windowDuration); at.After(eligible) {
			eligible = at
		}
	}
	return eligible
}

// prune drops entries that have left the window. An entry exactly
// windowDuration old no longer counts.
func (g *RateGate) prune(now time.Time) {
	cut := 0
	for cut < len(g.calls) && now.Sub(g.calls[cut]) >= g.windowDuration {
		cut++
	}
	if cut > 0 {
		g.calls = append(g.calls[:0], g.calls[cut:]...)
	}
}
