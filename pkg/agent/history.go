//go:build linux

package agent

import (
	"sync"

	"github.com/nova-systems/cachectl/pkg/estimator"
	"github.com/nova-systems/cachectl/pkg/system/util"
	"github.com/nova-systems/cachectl/pkg/types"
)

// historyDepth is the number of recent report cycles the estimator's input
// averages are taken over.
const historyDepth = 100

// History is one tenant's rolling report window plus the estimator state
// carried across fit calls (previous FitState, last successful MRC). The
// Agent guards every tenant's History with one coarse shared mutex rather
// than one lock per tenant; nothing outside the estimator contends on it.
type History struct {
	cacheMbps    *util.Ring
	cacheRefMbps *util.Ring
	bwMbps       *util.Ring
	hitRate      *util.Ring
	anonMb       *util.Ring

	fitState *estimator.FitState // nil until the first successful Fit
	lastMRC  []types.MRCPoint    // nil until the first successful Grid
}

// NewHistory allocates the parallel 100-deep rings this tenant's estimator
// inputs are averaged from.
func NewHistory() *History {
	return &History{
		cacheMbps:    util.NewRing(historyDepth),
		cacheRefMbps: util.NewRing(historyDepth),
		bwMbps:       util.NewRing(historyDepth),
		hitRate:      util.NewRing(historyDepth),
		anonMb:       util.NewRing(historyDepth),
	}
}

// Append records one report cycle's worth of data. Only the report loop
// appends; readers snapshot via Averages.
func (h *History) Append(cacheMbps, cacheRefMbps, bwMbps, hitRate, anonMb float64) {
	h.cacheMbps.Push(cacheMbps)
	h.cacheRefMbps.Push(cacheRefMbps)
	h.bwMbps.Push(bwMbps)
	h.hitRate.Push(hitRate)
	h.anonMb.Push(anonMb)
}

// Ready reports whether the full window has accumulated. Estimation is
// skipped until it has.
func (h *History) Ready() bool { return h.cacheMbps.Full() }

// Averages returns the current mean of each tracked quantity.
func (h *History) Averages() (cacheMbps, cacheRefMbps, bwMbps, hitRate, anonMb float64) {
	return h.cacheMbps.Mean(), h.cacheRefMbps.Mean(), h.bwMbps.Mean(), h.hitRate.Mean(), h.anonMb.Mean()
}

// PreviousFit returns the carried-across-calls fit seed, or nil on the
// tenant's first estimation cycle.
func (h *History) PreviousFit() *estimator.FitState { return h.fitState }

// RecordFit stores the coefficients from a successful Fit/Estimate call so
// the next cycle seeds from them.
func (h *History) RecordFit(s estimator.FitState) { h.fitState = &s }

// LastMRC returns the most recently emitted MRC, or nil if the estimator
// has never succeeded for this tenant.
func (h *History) LastMRC() []types.MRCPoint { return h.lastMRC }

// RecordMRC stores the latest successfully emitted MRC snapshot.
func (h *History) RecordMRC(mrc []types.MRCPoint) { h.lastMRC = mrc }

// historyTable is the agent's per-container history map, guarded by a
// single coarse mutex.
type historyTable struct {
	mu    sync.Mutex
	byApp map[types.AppId]*History
}

func newHistoryTable() *historyTable {
	return &historyTable{byApp: make(map[types.AppId]*History)}
}

// Get returns the History for id, creating it on first reference.
func (t *historyTable) Get(id types.AppId) *History {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.byApp[id]
	if !ok {
		h = NewHistory()
		t.byApp[id] = h
	}
	return h
}
