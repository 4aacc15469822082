package study

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerFirstRunNeverStops(t *testing.T) {
	tr := NewTracker(DefaultConvergenceConfig())
	assert.False(t, tr.Update(1500))
	assert.Equal(t, 1500.0, tr.BestCost())
}

func TestTrackerImprovementResetsStale(t *testing.T) {
	tr := NewTracker(ConvergenceConfig{Enabled: true, Patience: 2, Threshold: 0.01})

	assert.False(t, tr.Update(1000)) // reference
	assert.False(t, tr.Update(999))  // 0.1% < 1%: stale 1
	assert.Equal(t, 1, tr.StaleCount())

	assert.False(t, tr.Update(900)) // 10% improvement: reset
	assert.Equal(t, 0, tr.StaleCount())

	assert.False(t, tr.Update(899.5))
	assert.True(t, tr.Update(899.4)) // stale 2 >= patience
}

func TestTrackerPatience(t *testing.T) {
	tr := NewTracker(ConvergenceConfig{Enabled: true, Patience: 3, Threshold: 0.001})

	assert.False(t, tr.Update(1250))
	assert.False(t, tr.Update(1250))
	assert.False(t, tr.Update(1250))
	assert.True(t, tr.Update(1250))
	assert.Equal(t, 3, tr.StaleCount())
}

func TestTrackerDisabled(t *testing.T) {
	tr := NewTracker(DisabledConvergenceConfig())
	for i := 0; i < 50; i++ {
		assert.False(t, tr.Update(42))
	}
	// Disabled updates are not recorded either.
	assert.Empty(t, tr.History())
	assert.True(t, math.IsInf(tr.BestCost(), 1))
}

func TestTrackerBestCostTracksMinimum(t *testing.T) {
	tr := NewTracker(ConvergenceConfig{Enabled: true, Patience: 10, Threshold: 0.001})
	for _, c := range []float64{1300, 1260, 1290, 1251, 1255} {
		tr.Update(c)
	}
	assert.Equal(t, 1251.0, tr.BestCost())
	assert.Len(t, tr.History(), 5)
}

func TestTrackerHistoryIsCopy(t *testing.T) {
	tr := NewTracker(DefaultConvergenceConfig())
	tr.Update(10)
	h := tr.History()
	h[0] = -1
	assert.Equal(t, []float64{10}, tr.History())
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker(ConvergenceConfig{Enabled: true, Patience: 1, Threshold: 0.5})
	tr.Update(100)
	tr.Update(100)
	tr.Reset()

	assert.Equal(t, 0, tr.StaleCount())
	assert.Empty(t, tr.History())
	assert.False(t, tr.Update(100))
}
