//go:build linux

package coordinator

import (
	"fmt"

	"github.com/nova-systems/cachectl/pkg/types"
)

// Split divides a global AllocationMap into per-VM maps. Each tenant's
// memory and bandwidth targets are divided by the number of VMs hosting it,
// truncating; the integer-division residual is simply dropped, identically
// for every VM, so the per-VM sums reconstruct n*(mem/n, bw/n).
//
// An AppId with no placement entry fails the whole split: pushing a config
// for a tenant no VM hosts would silently misallocate the budget.
func Split(placement map[types.AppId][]types.VmId, alloc types.AllocationMap) (map[types.VmId]types.AllocationMap, error) {
	out := make(map[types.VmId]types.AllocationMap)

	for app, target := range alloc {
		vms, ok := placement[app]
		if !ok || len(vms) == 0 {
			return nil, fmt.Errorf("coordinator: app %d has no placement entry", app)
		}

		n := uint64(len(vms))
		share := types.Alloc{
			MemoryMb:      types.MemoryMb(uint64(target.MemoryMb) / n),
			BandwidthMbps: types.BandwidthMbps(uint64(target.BandwidthMbps) / n),
		}

		for _, vm := range vms {
			m, ok := out[vm]
			if !ok {
				m = make(types.AllocationMap)
				out[vm] = m
			}
			m[app] = share
		}
	}

	return out, nil
}
