//go:build linux

package coordinator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova-systems/cachectl/pkg/spawn"
	"github.com/nova-systems/cachectl/pkg/types"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "empty placement map",
			cfg:     Config{VmIpMap: map[types.VmId]string{1: "a:1"}},
			wantErr: true,
		},
		{
			name: "placement entry with no VMs",
			cfg: Config{
				PlacementMap: map[types.AppId][]types.VmId{1: {}},
				VmIpMap:      map[types.VmId]string{},
			},
			wantErr: true,
		},
		{
			name: "placed VM missing from vm_ip_map",
			cfg: Config{
				PlacementMap: map[types.AppId][]types.VmId{1: {5}},
				VmIpMap:      map[types.VmId]string{},
			},
			wantErr: true,
		},
		{
			name: "valid",
			cfg: Config{
				PlacementMap: map[types.AppId][]types.VmId{1: {5}},
				VmIpMap:      map[types.VmId]string{5: "10.0.0.5:8090"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, types.ErrConfigInvalid)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCoordinator_HandleConfig_SplitsAndPushes(t *testing.T) {
	var mu sync.Mutex
	pushed := make(map[string]types.AllocationMap)
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var m types.AllocationMap
		require.NoError(t, json.Unmarshal(b, &m))
		mu.Lock()
		pushed[r.URL.Path] = m
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer agent.Close()

	addr := agent.URL[len("http://"):]
	cfg := Config{
		PlacementMap: map[types.AppId][]types.VmId{7: {1, 2, 3}},
		VmIpMap:      map[types.VmId]string{1: addr, 2: addr, 3: addr},
	}
	c := New(log.NewNopLogger(), cfg, &spawn.Stub{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/config", strings.NewReader(`{"7":{"memory_mb":900,"bandwidth_mbps":300}}`))
	rec := httptest.NewRecorder()
	c.handleConfig(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, pushed, "/config")
	assert.Equal(t, types.MemoryMb(300), pushed["/config"][7].MemoryMb)
	assert.Equal(t, types.BandwidthMbps(100), pushed["/config"][7].BandwidthMbps)

	assert.Equal(t, types.MemoryMb(900), c.Allocation()[7].MemoryMb)
}

func TestCoordinator_HandleConfig_UnplacedAppRejected(t *testing.T) {
	cfg := Config{
		PlacementMap: map[types.AppId][]types.VmId{1: {5}},
		VmIpMap:      map[types.VmId]string{5: "127.0.0.1:0"},
	}
	c := New(log.NewNopLogger(), cfg, &spawn.Stub{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/config", strings.NewReader(`{"99":{"memory_mb":100,"bandwidth_mbps":10}}`))
	rec := httptest.NewRecorder()
	c.handleConfig(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, c.Allocation(), "a rejected config must not partially update the stored allocation")
}

func TestCoordinator_HandleUsage_MergesReports(t *testing.T) {
	cfg := Config{
		PlacementMap: map[types.AppId][]types.VmId{1: {5}},
		VmIpMap:      map[types.VmId]string{5: "127.0.0.1:0"},
	}
	c := New(log.NewNopLogger(), cfg, &spawn.Stub{}, nil)

	post := func(body string) {
		req := httptest.NewRequest(http.MethodPost, "/usage", strings.NewReader(body))
		rec := httptest.NewRecorder()
		c.handleUsage(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	post(`{"usage":{"5":{"1":{"vm_id":5,"app_id":1,"mem_mb":256,"bw_mbps":10,"cache_mbps":0,"access_mem_ops_sec":0,"access_rate_ops_sec":0,"hit_rate_percent":0}}},"stats":{"1":100}}`)
	post(`{"usage":{"6":{"2":{"vm_id":6,"app_id":2,"mem_mb":512,"bw_mbps":20,"cache_mbps":0,"access_mem_ops_sec":0,"access_rate_ops_sec":0,"hit_rate_percent":0}}},"stats":{"2":200}}`)

	rec := httptest.NewRecorder()
	c.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got types.UsageMap
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, types.MemoryMb(256), got[5][1].MemMb)
	assert.Equal(t, types.MemoryMb(512), got[6][2].MemMb)
}

func TestCoordinator_HandleStatus_Deterministic(t *testing.T) {
	cfg := Config{
		PlacementMap: map[types.AppId][]types.VmId{1: {5}},
		VmIpMap:      map[types.VmId]string{5: "127.0.0.1:0"},
	}
	c := New(log.NewNopLogger(), cfg, &spawn.Stub{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/usage", strings.NewReader(
		`{"usage":{"2":{"11":{"vm_id":2,"app_id":11,"mem_mb":1,"bw_mbps":0,"cache_mbps":0,"access_mem_ops_sec":0,"access_rate_ops_sec":0,"hit_rate_percent":0}},"10":{"3":{"vm_id":10,"app_id":3,"mem_mb":2,"bw_mbps":0,"cache_mbps":0,"access_mem_ops_sec":0,"access_rate_ops_sec":0,"hit_rate_percent":0}}},"stats":{}}`))
	rec := httptest.NewRecorder()
	c.handleUsage(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	status := func() string {
		rec := httptest.NewRecorder()
		c.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		return rec.Body.String()
	}
	assert.Equal(t, status(), status())
}

func TestCoordinator_InitAndShutdown_OwnsBackends(t *testing.T) {
	stub := &spawn.Stub{}
	cfg := Config{
		PlacementMap:     map[types.AppId][]types.VmId{1: {5}},
		VmIpMap:          map[types.VmId]string{5: "127.0.0.1:0"},
		RunBackendCmdMap: map[types.AppId]string{1: "redis-server", 2: ""},
		IdPreloadMap:     map[types.VmId]string{5: "preload.sh", 6: "preload.sh"},
	}
	c := New(log.NewNopLogger(), cfg, stub, nil)

	c.Init(context.Background())

	calls := stub.Calls()
	var backends, preloads int
	for _, call := range calls {
		require.Equal(t, "sh", call.Name)
		switch call.Args[1] {
		case "redis-server":
			backends++
		case "preload.sh":
			preloads++
		}
	}
	assert.Equal(t, 1, backends, "empty backend commands are skipped")
	assert.Equal(t, 1, preloads, "duplicate preload commands run once")
	assert.Len(t, c.backends, 1)

	c.Shutdown()
	assert.Empty(t, c.backends)
}
