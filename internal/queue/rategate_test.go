package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateGate_WindowCapacity(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewRateGate(3, time.Minute, 0)

	for i := 0; i < 3; i++ {
		now := base.Add(time.Duration(i) * time.Second)
		assert.True(t, g.TryAcquire(now), "call %d should be admitted", i)
		g.Record(now)
	}

	assert.False(t, g.TryAcquire(base.Add(3*time.Second)), "window is full")
	assert.False(t, g.TryAcquire(base.Add(59*time.Second)), "window still full just before expiry")
}

func TestRateGate_WindowBoundaryInclusive(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewRateGate(1, time.Minute, 0)

	g.Record(base)
	assert.False(t, g.TryAcquire(base.Add(time.Minute-time.Nanosecond)))

	// A call exactly windowDuration old has expired.
	assert.True(t, g.TryAcquire(base.Add(time.Minute)))
}

func TestRateGate_MinSpacing(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewRateGate(30, time.Minute, 2*time.Second)

	assert.True(t, g.TryAcquire(base))
	g.Record(base)

	assert.False(t, g.TryAcquire(base.Add(1999*time.Millisecond)))
	assert.True(t, g.TryAcquire(base.Add(2*time.Second)))
}

func TestRateGate_NextEligible(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("open gate returns now", func(t *testing.T) {
		g := NewRateGate(3, time.Minute, 2*time.Second)
		assert.Equal(t, base, g.NextEligible(base))
	})

	t.Run("spacing dominates", func(t *testing.T) {
		g := NewRateGate(3, time.Minute, 2*time.Second)
		g.Record(base)
		assert.Equal(t, base.Add(2*time.Second), g.NextEligible(base.Add(time.Second)))
	})

	t.Run("full window dominates", func(t *testing.T) {
		g := NewRateGate(2, time.Minute, 2*time.Second)
		g.Record(base)
		g.Record(base.Add(2 * time.Second))
		// Both window slots are taken; the oldest frees up at base+60s.
		assert.Equal(t, base.Add(time.Minute), g.NextEligible(base.Add(5*time.Second)))
	})
}

func TestRateGate_PruneDropsExpiredOnly(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewRateGate(2, time.Minute, 0)

	g.Record(base)
	g.Record(base.Add(30 * time.Second))

	// At base+60s the first call expires and one slot opens.
	assert.True(t, g.TryAcquire(base.Add(time.Minute)))
	g.Record(base.Add(time.Minute))

	// The 30s and 60s calls are both still inside the window.
	assert.False(t, g.TryAcquire(base.Add(61*time.Second)))
}
