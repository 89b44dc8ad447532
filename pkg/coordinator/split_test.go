//go:build linux

package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova-systems/cachectl/pkg/types"
)

func TestSplit_EvenDivision(t *testing.T) {
	placement := map[types.AppId][]types.VmId{
		7: {1, 2, 3},
	}
	alloc := types.AllocationMap{
		7: {MemoryMb: 900, BandwidthMbps: 300},
	}

	perVM, err := Split(placement, alloc)
	require.NoError(t, err)
	require.Len(t, perVM, 3)

	for _, vm := range []types.VmId{1, 2, 3} {
		got, ok := perVM[vm][7]
		require.True(t, ok, "vm %d missing app 7", vm)
		assert.Equal(t, types.MemoryMb(300), got.MemoryMb)
		assert.Equal(t, types.BandwidthMbps(100), got.BandwidthMbps)
	}
}

func TestSplit_RemainderTruncates(t *testing.T) {
	placement := map[types.AppId][]types.VmId{
		7: {1, 2},
	}
	alloc := types.AllocationMap{
		7: {MemoryMb: 901, BandwidthMbps: 301},
	}

	perVM, err := Split(placement, alloc)
	require.NoError(t, err)

	for _, vm := range []types.VmId{1, 2} {
		got := perVM[vm][7]
		assert.Equal(t, types.MemoryMb(450), got.MemoryMb)
		assert.Equal(t, types.BandwidthMbps(150), got.BandwidthMbps)
	}
}

func TestSplit_Conservation(t *testing.T) {
	placement := map[types.AppId][]types.VmId{
		1: {10, 11, 12, 13, 14},
		2: {10},
		3: {11, 12},
	}
	alloc := types.AllocationMap{
		1: {MemoryMb: 1023, BandwidthMbps: 97},
		2: {MemoryMb: 4096, BandwidthMbps: 1000},
		3: {MemoryMb: 333, BandwidthMbps: 7},
	}

	perVM, err := Split(placement, alloc)
	require.NoError(t, err)

	for app, vms := range placement {
		n := uint64(len(vms))
		var memSum, bwSum uint64
		for _, vm := range vms {
			got, ok := perVM[vm][app]
			require.True(t, ok)
			memSum += uint64(got.MemoryMb)
			bwSum += uint64(got.BandwidthMbps)
		}
		in := alloc[app]
		assert.Equal(t, n*(uint64(in.MemoryMb)/n), memSum, "app %d memory", app)
		assert.Equal(t, n*(uint64(in.BandwidthMbps)/n), bwSum, "app %d bandwidth", app)
		assert.LessOrEqual(t, uint64(in.MemoryMb)-memSum, n-1, "app %d memory residual", app)
		assert.LessOrEqual(t, uint64(in.BandwidthMbps)-bwSum, n-1, "app %d bandwidth residual", app)
	}
}

func TestSplit_OnlyHostedTenantsPerVM(t *testing.T) {
	placement := map[types.AppId][]types.VmId{
		1: {10},
		2: {11},
	}
	alloc := types.AllocationMap{
		1: {MemoryMb: 100, BandwidthMbps: 10},
		2: {MemoryMb: 200, BandwidthMbps: 20},
	}

	perVM, err := Split(placement, alloc)
	require.NoError(t, err)

	assert.NotContains(t, perVM[10], types.AppId(2))
	assert.NotContains(t, perVM[11], types.AppId(1))
}

func TestSplit_UnplacedAppFails(t *testing.T) {
	alloc := types.AllocationMap{
		9: {MemoryMb: 100, BandwidthMbps: 10},
	}

	_, err := Split(map[types.AppId][]types.VmId{}, alloc)
	assert.Error(t, err)
}
