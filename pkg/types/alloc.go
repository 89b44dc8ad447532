package types

// Alloc is the target ceiling pair for one tenant: the values are goals,
// not observed usage.
type Alloc struct {
	MemoryMb      MemoryMb      `json:"memory_mb"`
	BandwidthMbps BandwidthMbps `json:"bandwidth_mbps"`
}

// AllocationMap maps a tenant to its target ceiling. Keys are unique by
// construction (it's a Go map); values are targets, never observed usage.
type AllocationMap map[AppId]Alloc

// GlobalAllocation is the coordinator's full view of tenant placement plus
// the latest allocation targets.
type GlobalAllocation struct {
	// PlacementMap gives, per tenant, the ordered set of VMs hosting it.
	// Every AppId referenced by Allocation must appear here.
	PlacementMap map[AppId][]VmId `json:"placement_map"`
	VmIpMap      map[VmId]string  `json:"vm_ip_map"`
	Allocation   AllocationMap    `json:"allocation_map"`
}

// Clone returns a deep copy safe to mutate independently of the receiver.
func (g GlobalAllocation) Clone() GlobalAllocation {
	out := GlobalAllocation{
		PlacementMap: make(map[AppId][]VmId, len(g.PlacementMap)),
		VmIpMap:      make(map[VmId]string, len(g.VmIpMap)),
		Allocation:   make(AllocationMap, len(g.Allocation)),
	}
	for k, v := range g.PlacementMap {
		vs := make([]VmId, len(v))
		copy(vs, v)
		out.PlacementMap[k] = vs
	}
	for k, v := range g.VmIpMap {
		out.VmIpMap[k] = v
	}
	for k, v := range g.Allocation {
		out.Allocation[k] = v
	}
	return out
}
