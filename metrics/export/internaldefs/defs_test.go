package internaldefs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrEthical07/stagepass"
)

func TestEveryCounterHasADefinition(t *testing.T) {
	seen := map[stagepass.MetricID]bool{}
	for _, def := range CounterDefs {
		assert.False(t, seen[def.ID], "duplicate definition for %s", def.Name)
		assert.False(t, stagepass.IsHistogram(def.ID), def.Name)
		seen[def.ID] = true
	}
	for _, def := range HistogramDefs {
		assert.True(t, stagepass.IsHistogram(def.ID), def.Name)
		seen[def.ID] = true
	}
	assert.Len(t, seen, stagepass.MetricIDCount)
}

func TestCumulative(t *testing.T) {
	got := Cumulative(Normalize([]uint64{1, 2, 3}))
	assert.Equal(t, [stagepass.HistogramBucketCount]uint64{1, 3, 6, 6, 6, 6, 6, 6}, got)
}

func TestUpperBoundsSeconds(t *testing.T) {
	bounds := UpperBoundsSeconds()
	assert.Len(t, bounds, stagepass.HistogramBucketCount-1)
	assert.InDelta(t, 0.005, bounds[0], 1e-9)
	assert.InDelta(t, 0.5, bounds[len(bounds)-1], 1e-9)
}
