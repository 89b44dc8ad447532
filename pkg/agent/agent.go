//go:build linux

package agent

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"

	"github.com/nova-systems/cachectl/internal/metrics"
	"github.com/nova-systems/cachectl/pkg/enforcer"
	"github.com/nova-systems/cachectl/pkg/spawn"
	"github.com/nova-systems/cachectl/pkg/system/blkio"
	"github.com/nova-systems/cachectl/pkg/system/cgroup"
	"github.com/nova-systems/cachectl/pkg/system/perfmon"
	"github.com/nova-systems/cachectl/pkg/system/sampler"
	"github.com/nova-systems/cachectl/pkg/transport"
	"github.com/nova-systems/cachectl/pkg/types"
)

const (
	// reportInterval is the cadence of usage reports to the coordinator.
	reportInterval = time.Second

	// sampleWindow is the sampler's per-cycle collection window.
	sampleWindow = 10 * time.Second

	// sCacheDefault is the sampler decimation: accesses per recorded sample.
	sCacheDefault = 25
)

// Agent owns the set of managed containers for one VM: it drives the
// sampler/monitor/accountant/estimator pipeline, applies config updates via
// the enforcers, and reports usage to the coordinator.
type Agent struct {
	logger log.Logger

	cfg      types.InitConfig
	vmID     types.VmId
	memMajMin string

	spawner  spawn.ProcessSpawner
	resolver *cgroup.Resolver
	smp      sampler.Sampler

	containers map[types.AppId]*Container

	monMu   sync.Mutex
	monitor map[types.AppId]*perfmon.Monitor
	bio     map[types.AppId]*blkio.Accountant

	hist *historyTable

	allocMu sync.Mutex
	alloc   types.AllocationMap

	httpClient *http.Client

	metrics *metrics.Agent
	ready   atomic.Bool

	cancel context.CancelFunc
}

// New constructs an Agent from a validated InitConfig. It does not yet
// launch containers or start background loops — call Run for that.
func New(logger log.Logger, cfg types.InitConfig, spawner spawn.ProcessSpawner, smp sampler.Sampler, reg *metrics.Agent) (*Agent, error) {
	majMin, err := blkio.DeviceKey(cfg.MemoryDevName)
	if err != nil {
		level.Warn(logger).Log("msg", "could not resolve memory device major:minor, block-io accounting disabled", "dev", cfg.MemoryDevName, "err", err)
	}

	containers := make(map[types.AppId]*Container, len(cfg.IdPreloadMap))
	for _, e := range cfg.IdPreloadMap {
		containers[e.Id] = NewContainer(e)
	}

	a := &Agent{
		logger:     logger,
		cfg:        cfg,
		vmID:       cfg.EffectiveVmId(),
		memMajMin:  majMin,
		spawner:    spawner,
		resolver:   cgroup.NewResolver(spawner),
		smp:        smp,
		containers: containers,
		monitor:    make(map[types.AppId]*perfmon.Monitor),
		bio:        make(map[types.AppId]*blkio.Accountant),
		hist:       newHistoryTable(),
		alloc:      make(types.AllocationMap),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		metrics:    reg,
	}
	for id := range containers {
		a.monitor[id] = perfmon.New(spawner)
		if majMin != "" {
			a.bio[id] = blkio.New(majMin)
		}
	}
	return a, nil
}

// Run starts an optional init script, launches containers, resolves
// cgroups, starts one background sampler/estimator goroutine per
// container, and drives the report loop until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	defer cancel()

	if a.cfg.InitScript != nil && *a.cfg.InitScript != "" {
		if _, err := a.spawner.Run(ctx, "sh", "-c", *a.cfg.InitScript); err != nil {
			level.Warn(a.logger).Log("msg", "init script failed", "err", err)
		}
	}

	for _, c := range a.containers {
		if err := c.Launch(ctx, a.spawner); err != nil {
			level.Warn(a.logger).Log("msg", "container launch failed", "app_id", c.AppId, "err", err)
		}
	}

	for _, c := range a.containers {
		go a.runMonitorLoop(ctx, c)
	}
	if a.cfg.MrcEnabled() {
		for _, c := range a.containers {
			go a.runEstimationLoop(ctx, c)
		}
	}

	a.reportLoop(ctx)
	return nil
}

// Shutdown kills owned subprocesses and stops background loops. Safe to
// call more than once.
func (a *Agent) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.containers {
		c.Shutdown()
	}
}

// reportLoop ticks every reportInterval, posting a usage report to the
// coordinator. It returns when ctx is cancelled.
func (a *Agent) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.reportUsage(ctx); err != nil {
				level.Warn(a.logger).Log("msg", "report_usage failed", "err", err)
				if a.metrics != nil {
					a.metrics.ReportErrors.Inc()
				}
				continue
			}
			a.ready.Store(true)
			if a.metrics != nil {
				a.metrics.ReportsTotal.Inc()
			}
		}
	}
}

// runMonitorLoop drives one container's perf-counter monitor on its own
// goroutine: each pass blocks for the monitor's one-second "perf stat"
// window, so the report loop only ever reads the rolling averages.
func (a *Agent) runMonitorLoop(ctx context.Context, c *Container) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		h, err := a.cgroupHandle(ctx, c)
		if err != nil {
			a.sleepOrDone(ctx, reportInterval)
			continue
		}

		a.monMu.Lock()
		mon := a.monitor[c.AppId]
		a.monMu.Unlock()
		if mon == nil {
			return
		}
		if err := mon.Sample(ctx, h.Path); err != nil {
			// Parse failures skip this sample only; resume the cadence.
			a.sleepOrDone(ctx, reportInterval)
		}
	}
}

// Ready reports whether the agent has completed at least one successful
// report cycle — the gate behind GET /healthz.
func (a *Agent) Ready() bool { return a.ready.Load() }

// Router builds the agent's HTTP surface: POST /config and GET /healthz.
// GET /metrics is added by cmd/agent.
func (a *Agent) Router() *mux.Router {
	r := transport.NewRouter(a.logger)
	r.HandleFunc("/config", a.handleConfig).Methods(http.MethodPost)
	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	return r
}

func (a *Agent) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if !a.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// cgroupHandle resolves (and caches, via a.resolver) the cgroup.Handle for
// one container.
func (a *Agent) cgroupHandle(ctx context.Context, c *Container) (cgroup.Handle, error) {
	path, err := a.resolver.Resolve(ctx, c.Name, c.CgroupMap)
	if err != nil {
		return cgroup.Handle{}, fmt.Errorf("agent: resolve cgroup for %s: %w", c.Name, err)
	}
	return cgroup.NewHandle(path), nil
}

// applyAllocation runs the memory enforcer then the bandwidth enforcer for
// one tenant.
func (a *Agent) applyAllocation(ctx context.Context, id types.AppId, alloc types.Alloc) error {
	c, ok := a.containers[id]
	if !ok {
		return fmt.Errorf("agent: unknown app id %d", id)
	}
	h, err := a.cgroupHandle(ctx, c)
	if err != nil {
		return err
	}

	var mem enforcer.Memory
	if err := mem.Converge(ctx, h, uint64(alloc.MemoryMb)); err != nil {
		return fmt.Errorf("agent: memory enforce app %d: %w", id, err)
	}

	if a.memMajMin != "" {
		var bw enforcer.Bandwidth
		if err := bw.Set(h, a.memMajMin, uint64(alloc.BandwidthMbps)); err != nil {
			return fmt.Errorf("agent: bandwidth enforce app %d: %w", id, err)
		}
	}
	return nil
}

// randSeed derives a stable-per-tenant, varying-per-cycle seed for the
// estimator's tie-break shuffle. Seeds are derived, not drawn from a global
// source, so a logged (app, cycle) pair is enough to replay a fit.
func randSeed(id types.AppId, cycle uint64) int64 {
	return int64(uint64(id)*1000003 + cycle)
}
