package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocationMap_JSONRoundtrip(t *testing.T) {
	in := AllocationMap{
		AppId(1): {MemoryMb: 300, BandwidthMbps: 100},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out AllocationMap
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestGlobalAllocation_Clone_IsIndependent(t *testing.T) {
	g := GlobalAllocation{
		PlacementMap: map[AppId][]VmId{1: {1, 2, 3}},
		VmIpMap:      map[VmId]string{1: "10.0.0.1"},
		Allocation:   AllocationMap{1: {MemoryMb: 900, BandwidthMbps: 300}},
	}
	clone := g.Clone()
	clone.PlacementMap[1][0] = 99
	clone.Allocation[1] = Alloc{MemoryMb: 1, BandwidthMbps: 1}

	assert.Equal(t, VmId(1), g.PlacementMap[1][0], "mutating the clone must not affect the original")
	assert.Equal(t, MemoryMb(900), g.Allocation[1].MemoryMb)
}

func TestUsageMap_Merge(t *testing.T) {
	u := UsageMap{
		1: {1: AppUsage{VmId: 1, AppId: 1, MemMb: 100}},
	}
	u.Merge(UsageMap{
		1: {2: AppUsage{VmId: 1, AppId: 2, MemMb: 200}},
		2: {1: AppUsage{VmId: 2, AppId: 1, MemMb: 50}},
	})
	assert.Len(t, u, 2)
	assert.Len(t, u[1], 2)
	assert.Equal(t, MemoryMb(200), u[1][2].MemMb)
	assert.Equal(t, MemoryMb(50), u[2][1].MemMb)
}

func TestInitConfig_Validate(t *testing.T) {
	base := InitConfig{
		IdPreloadMap:  []PreloadEntry{{Id: 1, DockerName: "cache-1"}},
		MemoryDevName: "/dev/nvme0n1",
		GlobalIp:      "10.0.0.1",
	}
	require.NoError(t, base.Validate())

	t.Run("empty preload map", func(t *testing.T) {
		c := base
		c.IdPreloadMap = nil
		assert.ErrorIs(t, c.Validate(), ErrConfigInvalid)
	})

	t.Run("duplicate app id", func(t *testing.T) {
		c := base
		c.IdPreloadMap = []PreloadEntry{
			{Id: 1, DockerName: "a"},
			{Id: 1, DockerName: "b"},
		}
		assert.ErrorIs(t, c.Validate(), ErrConfigInvalid)
	})
}

func TestPreloadEntry_ShouldLaunch_DefaultsTrue(t *testing.T) {
	assert.True(t, PreloadEntry{}.ShouldLaunch())
	no := false
	assert.False(t, PreloadEntry{Launch: &no}.ShouldLaunch())
}

func TestInitConfig_MrcEnabled_DefaultsTrue(t *testing.T) {
	assert.True(t, InitConfig{}.MrcEnabled())
	no := false
	assert.False(t, InitConfig{EnableMrc: &no}.MrcEnabled())
}

func TestInitConfig_CompulsorySplit_DefaultsFalse(t *testing.T) {
	assert.False(t, InitConfig{}.CompulsorySplitEnabled())
	yes := true
	assert.True(t, InitConfig{SeparateCompulsory: &yes}.CompulsorySplitEnabled())
}
