//go:build linux

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log/level"

	"github.com/nova-systems/cachectl/pkg/system/blkio"
	"github.com/nova-systems/cachectl/pkg/system/memacct"
	"github.com/nova-systems/cachectl/pkg/system/util"
	"github.com/nova-systems/cachectl/pkg/transport"
	"github.com/nova-systems/cachectl/pkg/types"
)

// cacheLineBytes is the L3 cache-line size used to convert an L3-miss rate
// into the implied cache_mbps bandwidth.
const cacheLineBytes = 64

// reportUsage runs one full collection cycle across every managed
// container: memory/bandwidth/perf-counter sampling, AppUsage assembly,
// history append, and a POST to the coordinator.
func (a *Agent) reportUsage(ctx context.Context) error {
	usage := make(map[types.AppId]types.AppUsage, len(a.containers))
	stats := make(types.AppStats, len(a.containers))
	now := time.Now()

	for id, c := range a.containers {
		h, err := a.cgroupHandle(ctx, c)
		if err != nil {
			continue // CgroupUnavailable: skip this container this cycle
		}

		mem, err := memacct.Sample(h)
		if err != nil {
			continue // ParseError/CgroupUnavailable: skip, state unchanged
		}

		var bwUsage blkio.Usage
		if acc := a.bio[id]; acc != nil {
			if u, err := acc.Sample(h, now); err == nil {
				bwUsage = u
			}
		}

		a.monMu.Lock()
		mon := a.monitor[id]
		a.monMu.Unlock()
		var counters struct{ l3Miss, l3Ref, majFault, memOps float64 }
		if mon != nil {
			avg := mon.Averages()
			counters.l3Miss = float64(avg.L3Misses)
			counters.l3Ref = float64(avg.L3Refs)
			counters.majFault = float64(avg.MajorFault)
			counters.memOps = float64(avg.MemOps)
		}

		cacheMbps := counters.l3Miss * cacheLineBytes * 8 / 1_000_000
		cacheRefMbps := counters.l3Ref * cacheLineBytes * 8 / 1_000_000
		hitRatePercent := util.SafeDiv(counters.majFault, counters.l3Miss)

		u := types.AppUsage{
			VmId:             a.vmID,
			AppId:            id,
			MemMb:            types.MemoryMb(mem.CurrentMB),
			BwMbps:           types.BandwidthMbps(uint64(bwUsage.Max())),
			CacheMbps:        uint64(cacheMbps),
			AccessMemOpsSec:  uint64(counters.memOps),
			AccessRateOpsSec: uint64(counters.l3Ref),
			HitRatePercent:   hitRatePercent,
		}

		hist := a.hist.Get(id)
		hist.Append(cacheMbps, cacheRefMbps, bwUsage.Max(), hitRatePercent, float64(mem.AnonMB))
		u.Mrc = hist.LastMRC()

		usage[id] = u
		stats[id] = types.MemoryMb(mem.AnonMB)

		level.Debug(a.logger).Log(
			"msg", "collected usage",
			"app_id", id,
			"mem", types.ToBytes(mem.CurrentMB*1024*1024).Humanized(),
			"anon", types.ToBytes(mem.AnonMB*1024*1024).Humanized(),
			"bw_mbps", bwUsage.Max(),
		)

		if a.metrics != nil {
			a.metrics.MemMb.WithLabelValues(fmt.Sprint(id)).Set(float64(mem.CurrentMB))
			a.metrics.BwMbps.WithLabelValues(fmt.Sprint(id)).Set(bwUsage.Max())
		}
	}

	body := types.UsageReport{
		Usage: types.UsageMap{a.vmID: usage},
		Stats: stats,
	}

	url := fmt.Sprintf("http://%s/usage", a.cfg.GlobalIp)
	if err := transport.PostJSON(ctx, a.httpClient, url, body); err != nil {
		return fmt.Errorf("agent: post usage report: %w", err)
	}
	return nil
}
