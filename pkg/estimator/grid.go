package estimator

import "github.com/nova-systems/cachectl/pkg/types"

// gridStartMb, gridEndMb, gridStepMb define the {256, 512, ..., 16384} MB
// cache-size grid the fitted curve is evaluated over.
const (
	gridStartMb = 256
	gridEndMb   = 16384
	gridStepMb  = 256

	// pagesPerMb is 1 MiB / 4 KiB page size: K = C·pagesPerMb pages for a
	// cache size of C MB.
	pagesPerMb = 256
)

// Grid evaluates state's miss ratio at every cache size in the fixed grid,
// forcing the final (largest) entry to miss-ratio 0 unconditionally so the
// curve always ends with a monotone-decreasing tail. A positive
// compulsoryPoint caps the hit-eligible page span: accesses to pages beyond
// it can never be served from cache, whatever the cache size.
func Grid(state FitState, anonPages, pagesDetected, compulsoryPoint float64) []types.MRCPoint {
	var points []types.MRCPoint
	for c := gridStartMb; c <= gridEndMb; c += gridStepMb {
		k := float64(c * pagesPerMb)

		var mr float64
		switch {
		case k <= pagesDetected:
			// Already fits in the hottest working set.
			mr = 0
		default:
			hitSpan := k
			if compulsoryPoint > 0 && hitSpan > compulsoryPoint {
				hitSpan = compulsoryPoint
			}
			mr = computeMissRatio(hitSpan, anonPages, state)
		}
		points = append(points, types.MRCPoint{
			CacheSizeMb: types.MemoryMb(c),
			MissRatio:   mr,
		})
	}
	if len(points) > 0 {
		points[len(points)-1].MissRatio = 0
	}
	return points
}
