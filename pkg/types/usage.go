package types

// MRCPoint is one (cache_size_mb, miss_ratio) sample of a miss-ratio curve.
type MRCPoint struct {
	CacheSizeMb MemoryMb `json:"cache_size_mb"`
	MissRatio   float64  `json:"miss_ratio"`
}

// AppUsage is one tenant's usage report for one VM, produced once per
// report interval by the local agent.
type AppUsage struct {
	VmId  VmId  `json:"vm_id"`
	AppId AppId `json:"app_id"`

	MemMb MemoryMb      `json:"mem_mb"`
	BwMbps BandwidthMbps `json:"bw_mbps"`

	CacheMbps uint64 `json:"cache_mbps"`

	AccessMemOpsSec  uint64 `json:"access_mem_ops_sec"`
	AccessRateOpsSec uint64 `json:"access_rate_ops_sec"`

	// HitRatePercent is major-faults / L3-misses; deliberately not clamped
	// to [0,1], it is a scale, not a probability.
	HitRatePercent float64 `json:"hit_rate_percent"`

	// Mrc is the latest estimated miss-ratio curve, or nil if the estimator
	// has not yet produced one (or the last attempt diverged and the
	// previous snapshot had none either).
	Mrc []MRCPoint `json:"mrc,omitempty"`
}

// UsageMap is the coordinator's merged view: VmId -> (AppId -> AppUsage).
type UsageMap map[VmId]map[AppId]AppUsage

// Merge folds src into the receiver in place, overwriting any existing
// VmId/AppId entry — used by the coordinator merging incoming POST /usage
// bodies and building its /status snapshot.
func (u UsageMap) Merge(src UsageMap) {
	for vm, apps := range src {
		dst, ok := u[vm]
		if !ok {
			dst = make(map[AppId]AppUsage, len(apps))
			u[vm] = dst
		}
		for app, usage := range apps {
			dst[app] = usage
		}
	}
}

// AppStats maps a tenant to its anonymous-memory footprint, reported
// alongside UsageMap.
type AppStats map[AppId]MemoryMb

// UsageReport is the body of POST /usage: the reporting agent's UsageMap
// plus the per-tenant anonymous-memory stats collected in the same cycle.
type UsageReport struct {
	Usage UsageMap `json:"usage"`
	Stats AppStats `json:"stats"`
}
