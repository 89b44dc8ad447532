package estimator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildObservations_RanksByFrequency(t *testing.T) {
	pages := []uint64{1, 1, 1, 2, 2, 3}
	obs, detected := BuildObservations(pages, 1.0, 0, 42)
	require.NotEmpty(t, obs)
	assert.Equal(t, 3, detected)

	// Cumulative access must be non-decreasing by rank.
	for i := 1; i < len(obs); i++ {
		assert.GreaterOrEqual(t, obs[i].CumulativeAccess, obs[i-1].CumulativeAccess)
	}
}

func TestBuildObservations_SmallSampleAppendsSyntheticPoint(t *testing.T) {
	pages := []uint64{1, 2, 3}
	obs, _ := BuildObservations(pages, 1.0, 50, 1)

	// 3 distinct pages, plus the hardware-L3 pseudo-page prepend, plus the
	// small-sample synthetic low-frequency append.
	require.Len(t, obs, 5)
	assert.Equal(t, 1.0, obs[0].Pages)
	assert.Equal(t, 50.0, obs[0].CumulativeAccess, "the L3-absorbed volume leads the curve")
	assert.Equal(t, 5.0, obs[4].Pages)
}

func TestBuildObservations_NoZeroPointWithoutRefsData(t *testing.T) {
	pages := []uint64{1, 2, 3}
	obs, _ := BuildObservations(pages, 1.0, 0, 1)

	// Without a refs-derived access volume there is nothing to prepend:
	// just the 3 ranked pages and the small-sample append.
	require.Len(t, obs, 4)
	assert.Equal(t, 1.0, obs[0].Pages)
	assert.Equal(t, 1.0, obs[0].CumulativeAccess)
}

func TestBuildObservations_LargeSampleSkipsZeroPoint(t *testing.T) {
	var pages []uint64
	for p := uint64(1); p <= 12; p++ {
		pages = append(pages, p)
	}
	obs, detected := BuildObservations(pages, 1.0, 50, 1)

	// Twelve distinct pages resolved: the sample carries its own shape, so
	// neither the pseudo-page nor the synthetic tail is added.
	assert.Equal(t, 12, detected)
	require.Len(t, obs, 12)
	assert.Equal(t, 1.0, obs[0].CumulativeAccess)
}

func TestBuildObservations_DeterministicGivenSameSeed(t *testing.T) {
	pages := []uint64{5, 5, 6, 6, 6, 7, 8, 9, 9, 9, 9, 10}
	a, _ := BuildObservations(pages, 2.0, 0, 99)
	b, _ := BuildObservations(pages, 2.0, 0, 99)
	assert.Equal(t, a, b)
}

func TestBuildObservations_EmptyInput(t *testing.T) {
	obs, detected := BuildObservations(nil, 1.0, 0, 1)
	assert.Zero(t, detected)
	// Still produces the N_s<10 synthetic point.
	assert.Len(t, obs, 1)
}
