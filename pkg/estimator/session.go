package estimator

import (
	"errors"
	"fmt"
	"math"

	"github.com/nova-systems/cachectl/pkg/system/util"
	"github.com/nova-systems/cachectl/pkg/types"
)

// cacheLineBytes is the L3 cache-line size used to turn an L3-miss rate
// into an implied bandwidth (AppUsage.CacheMbps).
const cacheLineBytes = 64

// ErrTransient is returned when the assembled miss_ratio_observed is >= 1:
// the window's data is too transient and the whole cycle is aborted.
// Distinct from ErrInsufficientData (not enough history yet) and
// ErrFitDiverged (the gradient descent itself failed to converge).
var ErrTransient = errors.New("estimator: sample window too transient")

// Inputs is everything one estimation cycle needs, assembled by the caller
// (pkg/agent) from the last-100-report history and the current sampling
// window's raw address multiset.
type Inputs struct {
	// Pages is the raw sampled-page multiset collected this window.
	Pages []uint64

	// CacheMbpsAvg is A: cache_mbps averaged over the last 100 reports.
	CacheMbpsAvg float64
	// CacheRefMbpsAvg is the L3-reference bandwidth averaged over the same
	// window; together with CacheMbpsAvg it gives the share of traffic the
	// hardware L3 absorbs before it ever reaches memory.
	CacheRefMbpsAvg float64
	// BwMbpsAvg is B: bw_mbps averaged over the same window.
	BwMbpsAvg float64
	// HitRatePercentAvg is hit_rate_percent averaged over the same window.
	HitRatePercentAvg float64

	// AnonPages is the average anonymous-memory footprint, in 4 KiB pages.
	AnonPages float64
	// CurrentCachePages is the tenant's currently-enforced cache size, in 4
	// KiB pages — the size at which the observed hit rate was measured, and
	// so the size the fit's miss-ratio phase anchors computed_hit against.
	CurrentCachePages float64

	// TSample is T_sample, the sampling-window duration in seconds.
	TSample float64
	// SCache is S_cache, the sampler's decimation (accesses per sample).
	SCache float64

	// SeparateCompulsory requests the optional compulsory-miss split: the
	// emitted curve stops crediting hits for pages beyond the solved
	// compulsory-miss point. Most callers leave this false.
	SeparateCompulsory bool
}

const pageSizeBytes = 4096

// mbpsToBytesPerSec converts megabits/s to bytes/s.
const mbpsToBytesPerSec = 125_000

// Estimate runs one full MRC-estimation cycle: it assembles the working
// quantities (pages_per_sec, pages_fetched, miss_ratio_observed, the sample
// ratio r) from in, builds the ranked observation series, fits the
// two-phase model, and emits the fixed-grid MRC. prev seeds the fit from the
// previous cycle's coefficients (or nil on the first call for a tenant).
func Estimate(in Inputs, seed int64, prev *FitState) ([]types.MRCPoint, FitState, error) {
	ns := float64(len(in.Pages))

	pagesPerSec := ns * in.SCache / in.TSample
	pagesFetched := in.BwMbpsAvg * 1024 * 1024 / 8 / pageSizeBytes

	accessRatio := util.SafeDiv(pagesFetched, pagesPerSec)
	missRatioObserved := math.Min(1, math.Min(in.HitRatePercentAvg, accessRatio)) / osPrefetchFactor
	// Delayed block I/O can skew a window badly enough that no fit is
	// worth anchoring against it; abort and keep the previous curve.
	if missRatioObserved >= 1 {
		return nil, FitState{}, fmt.Errorf("estimator: miss_ratio_observed=%.4f: %w", missRatioObserved, ErrTransient)
	}

	r := in.SCache
	if ns > 0 && in.TSample > 0 {
		// CacheMbpsAvg is megabits/s; the sampled-access rate is in
		// bytes/s, so convert before taking the ratio.
		accessBytesPerSec := in.CacheMbpsAvg * mbpsToBytesPerSec
		sampledBytesPerSec := ns * cacheLineBytes / in.TSample
		r = math.Max(in.SCache, util.SafeDiv(accessBytesPerSec, sampledBytesPerSec))
	}

	// When the sample collapses to a handful of distinct pages, most of
	// the traffic was absorbed by the hardware L3; express that volume as
	// a pseudo-page hotter than anything sampled.
	zeroPointAccess := 0.0
	if in.CacheRefMbpsAvg > 0 {
		hwHit := (in.CacheRefMbpsAvg - in.CacheMbpsAvg) / in.CacheRefMbpsAvg
		hwHit = math.Min(math.Max(hwHit, epsilon), 1-epsilon)
		accessSampled := ns * r
		zeroPointAccess = accessSampled/(1-hwHit) - accessSampled
	}

	observed, pagesDetected := BuildObservations(in.Pages, r, zeroPointAccess, seed)

	anonPages := in.AnonPages
	if anonPages <= 0 {
		anonPages = 1
	}
	cachePages := in.CurrentCachePages
	if cachePages <= 0 {
		cachePages = anonPages
	}

	state, err := Fit(observed, anonPages, cachePages, missRatioObserved, seed, prev)
	if err != nil {
		return nil, FitState{}, err
	}

	compulsoryPoint := 0.0
	if in.SeparateCompulsory {
		// A failed root search falls back to the uncapped curve rather
		// than losing the whole cycle.
		if m, err := computeCompulsoryMissPoint(state, cachePages); err == nil {
			compulsoryPoint = m
		}
	}

	mrc := Grid(state, anonPages, float64(pagesDetected), compulsoryPoint)
	return mrc, state, nil
}

// CompulsoryMissPoint solves, via Newton-Raphson seeded at cachePages, the
// page index beyond which additional cache capacity cannot reduce misses —
// the same root Estimate uses to cap the grid when
// Inputs.SeparateCompulsory is set. Exposed for diagnostics.
func CompulsoryMissPoint(state FitState, cachePages float64) (float64, error) {
	return computeCompulsoryMissPoint(state, cachePages)
}
