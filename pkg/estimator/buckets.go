package estimator

import (
	"math/rand"
	"sort"
)

// minSampleSize is the sample count below which a synthetic low-frequency
// point is appended so the fit still has a tail.
const minSampleSize = 10

// BuildObservations turns a raw multiset of page-quantized addresses (as
// produced by pkg/system/sampler) into the (rank, cumulative access)
// Observation series Fit expects. sampleRatio is the multiplicative factor
// that rescales the sparse sample to the true access rate; zeroPointAccess
// is the access volume served entirely within the hardware L3, prepended as
// the hottest pseudo-page when the sample resolves to only a handful of
// distinct pages; seed drives the tie-breaking order among equal-frequency
// pages so repeated calls on an identical address batch are reproducible.
func BuildObservations(pages []uint64, sampleRatio, zeroPointAccess float64, seed int64) ([]Observation, int) {
	freq := make(map[uint64]int, len(pages))
	for _, p := range pages {
		freq[p]++
	}
	detected := len(freq)

	type pageFreq struct {
		page  uint64
		count int
	}
	ranked := make([]pageFreq, 0, len(freq))
	for p, c := range freq {
		ranked = append(ranked, pageFreq{p, c})
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(ranked), func(i, j int) { ranked[i], ranked[j] = ranked[j], ranked[i] })

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].count > ranked[j].count })

	observations := make([]Observation, 0, len(ranked)+2)

	cumulative := 0.0
	rank := 1
	if detected > 0 && detected < minSampleSize && zeroPointAccess > 0 {
		// Only a handful of distinct pages resolved: the bulk of the
		// traffic never left the hardware L3, so it shows up as a
		// pseudo-page hotter than anything the sampler saw. Prepend it so
		// the fit accounts for that volume.
		cumulative += zeroPointAccess
		observations = append(observations, Observation{
			Pages:            float64(rank),
			CumulativeAccess: cumulative,
		})
		rank++
	}

	for _, pf := range ranked {
		cumulative += float64(pf.count) * sampleRatio
		observations = append(observations, Observation{
			Pages:            float64(rank),
			CumulativeAccess: cumulative,
		})
		rank++
	}

	if len(pages) < minSampleSize {
		// Tiny sample: append a synthetic low-frequency point so the fit
		// has at least two points to work with.
		observations = append(observations, Observation{
			Pages:            float64(rank),
			CumulativeAccess: cumulative + sampleRatio,
		})
	}

	return observations, detected
}
