//go:build linux

package agent

import (
	"context"
	"time"

	"github.com/go-kit/log/level"

	"github.com/nova-systems/cachectl/pkg/estimator"
	"github.com/nova-systems/cachectl/pkg/types"
)

// pagesPerMb is 1 MiB / 4 KiB page size, used to turn a MemoryMb ceiling
// into the page count estimator.Inputs expects.
const pagesPerMb = 256

// runEstimationLoop drives the sampler and MRC estimator for one container
// on its own goroutine, so the blocking sample/fit never stalls the report
// loop. It runs until ctx is cancelled.
func (a *Agent) runEstimationLoop(ctx context.Context, c *Container) {
	var cycle uint64
	var lastSamplerLog time.Time

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		h, err := a.cgroupHandle(ctx, c)
		if err != nil {
			a.sleepOrDone(ctx, sampleWindow)
			continue
		}

		pages, err := a.smp.Sample(ctx, h.Path, sampleWindow, sCacheDefault)
		if err != nil {
			// SamplerUnavailable: skip this cycle, keep the previous MRC,
			// log at most once per container per minute.
			if now := time.Now(); now.Sub(lastSamplerLog) >= time.Minute {
				level.Debug(a.logger).Log("msg", "sampler unavailable", "app_id", c.AppId, "err", err)
				lastSamplerLog = now
			}
			a.sleepOrDone(ctx, sampleWindow)
			continue
		}

		hist := a.hist.Get(c.AppId)
		if !hist.Ready() {
			a.sleepOrDone(ctx, sampleWindow)
			continue
		}

		cacheMbpsAvg, cacheRefMbpsAvg, bwMbpsAvg, hitRateAvg, anonMbAvg := hist.Averages()

		in := estimator.Inputs{
			Pages:              pages,
			CacheMbpsAvg:       cacheMbpsAvg,
			CacheRefMbpsAvg:    cacheRefMbpsAvg,
			BwMbpsAvg:          bwMbpsAvg,
			HitRatePercentAvg:  hitRateAvg,
			AnonPages:          anonMbAvg * pagesPerMb,
			CurrentCachePages:  a.currentCachePages(c.AppId),
			TSample:            sampleWindow.Seconds(),
			SCache:             sCacheDefault,
			SeparateCompulsory: a.cfg.CompulsorySplitEnabled(),
		}

		cycle++
		mrc, state, err := estimator.Estimate(in, randSeed(c.AppId, cycle), hist.PreviousFit())
		if err != nil {
			level.Info(a.logger).Log("msg", "mrc estimate skipped", "app_id", c.AppId, "err", err)
			if a.metrics != nil {
				a.metrics.EstimatorFitFail.Inc()
			}
			a.sleepOrDone(ctx, sampleWindow)
			continue
		}

		hist.RecordFit(state)
		hist.RecordMRC(mrc)

		a.sleepOrDone(ctx, sampleWindow)
	}
}

// currentCachePages returns the tenant's currently-targeted cache size, in
// 4 KiB pages, from the last AllocationMap applied via POST /config.
func (a *Agent) currentCachePages(id types.AppId) float64 {
	a.allocMu.Lock()
	defer a.allocMu.Unlock()
	alloc, ok := a.alloc[id]
	if !ok {
		return 0
	}
	return float64(alloc.MemoryMb) * pagesPerMb
}

func (a *Agent) sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
