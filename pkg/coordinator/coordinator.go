//go:build linux

// Package coordinator implements the cluster-side half of the controller:
// it splits a global AllocationMap into per-VM sub-budgets, pushes each to
// the agent hosting it, and aggregates the agents' usage reports into a
// single cluster view.
package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"

	"github.com/nova-systems/cachectl/internal/metrics"
	"github.com/nova-systems/cachectl/pkg/spawn"
	"github.com/nova-systems/cachectl/pkg/transport"
	"github.com/nova-systems/cachectl/pkg/types"
)

// Coordinator owns the cluster state: tenant placement, the latest global
// allocation, and the merged usage view reported by the agents.
type Coordinator struct {
	logger  log.Logger
	cfg     Config
	spawner spawn.ProcessSpawner

	httpClient *http.Client
	metrics    *metrics.Coordinator

	mu    sync.Mutex
	alloc types.AllocationMap
	usage types.UsageMap
	stats types.AppStats

	backends []spawn.Handle
}

// New constructs a Coordinator from a validated Config. Backend processes
// and benchmark preloads are not started until Init.
func New(logger log.Logger, cfg Config, spawner spawn.ProcessSpawner, reg *metrics.Coordinator) *Coordinator {
	c := &Coordinator{
		logger:     logger,
		cfg:        cfg,
		spawner:    spawner,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		metrics:    reg,
		alloc:      make(types.AllocationMap),
		usage:      make(types.UsageMap),
		stats:      make(types.AppStats),
	}
	if reg != nil {
		reg.KnownApps.Set(float64(len(cfg.PlacementMap)))
	}
	return c
}

// Init launches the configured backend processes and runs each distinct
// benchmark-preload command once. Launch failures are logged and skipped;
// a missing backend surfaces later as that tenant's agent failing to
// resolve its cgroup, not as a coordinator crash.
func (c *Coordinator) Init(ctx context.Context) {
	for app, cmd := range c.cfg.RunBackendCmdMap {
		if cmd == "" {
			continue
		}
		level.Info(c.logger).Log("msg", "starting backend", "app_id", app)
		h, err := c.spawner.Start(ctx, "sh", "-c", cmd)
		if err != nil {
			level.Warn(c.logger).Log("msg", "backend launch failed", "app_id", app, "err", err)
			continue
		}
		c.backends = append(c.backends, h)
	}

	seen := make(map[string]struct{}, len(c.cfg.IdPreloadMap))
	for _, cmd := range c.cfg.IdPreloadMap {
		if cmd == "" {
			continue
		}
		if _, dup := seen[cmd]; dup {
			continue
		}
		seen[cmd] = struct{}{}
		if _, err := c.spawner.Run(ctx, "sh", "-c", cmd); err != nil {
			level.Warn(c.logger).Log("msg", "benchmark preload failed", "cmd", cmd, "err", err)
		}
	}
}

// Shutdown kills the backend processes started by Init. Safe to call more
// than once.
func (c *Coordinator) Shutdown() {
	for _, h := range c.backends {
		_ = h.Kill()
	}
	c.backends = nil
}

// Router builds the coordinator's HTTP surface: POST /config, POST /usage,
// GET /status.
func (c *Coordinator) Router() *mux.Router {
	r := transport.NewRouter(c.logger)
	r.HandleFunc("/config", c.handleConfig).Methods(http.MethodPost)
	r.HandleFunc("/usage", c.handleUsage).Methods(http.MethodPost)
	r.HandleFunc("/status", c.handleStatus).Methods(http.MethodGet)
	return r
}

// handleConfig serves POST /config: it splits the incoming global
// AllocationMap across the placement map and pushes each VM's share to its
// agent. Push failures are logged per VM and do not fail the request — the
// agents that were reached have already been reconfigured.
func (c *Coordinator) handleConfig(w http.ResponseWriter, r *http.Request) {
	var alloc types.AllocationMap
	if err := transport.DecodeJSON(r, &alloc); err != nil {
		transport.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	perVM, err := Split(c.cfg.PlacementMap, alloc)
	if err != nil {
		transport.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	c.mu.Lock()
	for id, target := range alloc {
		c.alloc[id] = target
	}
	c.mu.Unlock()

	ctx := r.Context()
	for vm, local := range perVM {
		c.pushConfig(ctx, vm, local)
	}

	transport.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (c *Coordinator) pushConfig(ctx context.Context, vm types.VmId, local types.AllocationMap) {
	vmLabel := fmt.Sprint(vm)
	if c.metrics != nil {
		c.metrics.ConfigPushesTotal.WithLabelValues(vmLabel).Inc()
	}

	ip, ok := c.cfg.VmIpMap[vm]
	if !ok {
		level.Warn(c.logger).Log("msg", "no agent address for vm", "vm_id", vm)
		if c.metrics != nil {
			c.metrics.ConfigPushErrors.WithLabelValues(vmLabel).Inc()
		}
		return
	}

	url := fmt.Sprintf("http://%s/config", ip)
	if err := transport.PostJSON(ctx, c.httpClient, url, local); err != nil {
		level.Warn(c.logger).Log("msg", "config push failed", "vm_id", vm, "err", err)
		if c.metrics != nil {
			c.metrics.ConfigPushErrors.WithLabelValues(vmLabel).Inc()
		}
	}
}

// handleUsage serves POST /usage: the reporting agent's UsageMap and
// AppStats are merged by key into the coordinator's view.
func (c *Coordinator) handleUsage(w http.ResponseWriter, r *http.Request) {
	var report types.UsageReport
	if err := transport.DecodeJSON(r, &report); err != nil {
		transport.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	c.mu.Lock()
	c.usage.Merge(report.Usage)
	for id, anon := range report.Stats {
		c.stats[id] = anon
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.UsageReportsTotal.Inc()
	}
	w.WriteHeader(http.StatusOK)
}

// handleStatus serves GET /status with the merged UsageMap. encoding/json
// emits map keys in sorted order, so two calls with no intervening POST
// /usage return byte-identical bodies.
func (c *Coordinator) handleStatus(w http.ResponseWriter, _ *http.Request) {
	c.mu.Lock()
	snapshot := make(types.UsageMap, len(c.usage))
	snapshot.Merge(c.usage)
	c.mu.Unlock()

	transport.WriteJSON(w, http.StatusOK, snapshot)
}

// Allocation returns a copy of the latest accepted global AllocationMap.
func (c *Coordinator) Allocation() types.AllocationMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(types.AllocationMap, len(c.alloc))
	for id, target := range c.alloc {
		out[id] = target
	}
	return out
}
