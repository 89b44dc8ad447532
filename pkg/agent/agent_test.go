//go:build linux

package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova-systems/cachectl/pkg/spawn"
	"github.com/nova-systems/cachectl/pkg/system/sampler"
	"github.com/nova-systems/cachectl/pkg/types"
)

func setupCgroupDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"memory.current":    strconv.FormatUint(256*1024*1024, 10),
		"memory.max":        "max",
		"memory.high":       "max",
		"memory.swap.max":   "max",
		"memory.swap.current": "0",
		"memory.stat":       "anon 104857600\nfile 100\n",
		"io.stat":           "0:0 rbytes=0 wbytes=0\n",
		"io.max":            "",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func testAgent(t *testing.T, coordinatorURL string) (*Agent, string) {
	t.Helper()
	dir := setupCgroupDir(t)

	launch := false
	cfg := types.InitConfig{
		IdPreloadMap: []types.PreloadEntry{
			{Id: 1, DockerName: "cache-1", CgroupMap: &dir, Launch: &launch},
		},
		MemoryDevName: "/dev/null", // resolvable via os.Stat on any platform
		GlobalIp:      coordinatorURL,
	}

	a, err := New(log.NewNopLogger(), cfg, &spawn.Stub{}, sampler.Stub{Addresses: []uint64{1, 1, 2}}, nil)
	require.NoError(t, err)
	return a, dir
}

func TestAgent_New_BuildsContainerBindings(t *testing.T) {
	a, _ := testAgent(t, "127.0.0.1:0")
	assert.Len(t, a.containers, 1)
	assert.Contains(t, a.containers, types.AppId(1))
}

func TestAgent_HandleConfig_AppliesEnforcers(t *testing.T) {
	a, dir := testAgent(t, "127.0.0.1:0")

	req := httptest.NewRequest(http.MethodPost, "/config", strings.NewReader(`{"1":{"memory_mb":512,"bandwidth_mbps":100}}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	a.handleConfig(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	b, err := os.ReadFile(filepath.Join(dir, "memory.max"))
	require.NoError(t, err)
	assert.Equal(t, "512M", string(b))
}

func TestAgent_ReportUsage_PostsToCoordinator(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	a, _ := testAgent(t, srv.URL[len("http://"):])
	a.cfg.GlobalIp = srv.URL[len("http://"):]

	require.NoError(t, a.reportUsage(context.Background()))
	assert.Contains(t, gotBody, `"1"`)
	assert.False(t, a.Ready(), "Ready is only flipped by the report loop, not a direct reportUsage call")
}

func TestAgent_Healthz_ReflectsReadiness(t *testing.T) {
	a, _ := testAgent(t, "127.0.0.1:0")

	rec := httptest.NewRecorder()
	a.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	a.ready.Store(true)
	rec = httptest.NewRecorder()
	a.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
