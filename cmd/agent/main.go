//go:build linux

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nova-systems/cachectl/internal/metrics"
	"github.com/nova-systems/cachectl/pkg/agent"
	"github.com/nova-systems/cachectl/pkg/spawn"
	"github.com/nova-systems/cachectl/pkg/system/cgroup"
	"github.com/nova-systems/cachectl/pkg/system/sampler"
	"github.com/nova-systems/cachectl/pkg/transport"
	"github.com/nova-systems/cachectl/pkg/types"
)

func main() {
	var port int

	root := &cobra.Command{
		Use:   "agent CONFIG",
		Short: "Local cache-controller agent",
		Long: `The agent manages the containerized caches on one VM: it samples their
memory accesses and perf counters, estimates each tenant's miss-ratio curve,
enforces the memory and bandwidth ceilings pushed by the coordinator, and
reports usage back once per second.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], port)
		},
	}
	root.Flags().IntVarP(&port, "port", "p", 8090, "HTTP listen port for config updates")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, port int) error {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var cfg types.InitConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		level.Error(logger).Log("msg", "invalid config", "path", configPath, "err", err)
		return err
	}

	// The enforcers and accountants all speak the unified-hierarchy
	// pseudo-file dialect; refuse to start on a v1-only host.
	if v, detail, err := cgroup.Detect(); err != nil {
		level.Warn(logger).Log("msg", "cgroup detection failed", "err", err)
	} else if v != cgroup.V2 && v != cgroup.Hybrid {
		level.Error(logger).Log("msg", "unified cgroup hierarchy required", "detected", v, "detail", detail)
		return fmt.Errorf("unsupported cgroup setup: %s", v)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewAgent(reg)

	spawner := spawn.Exec{}
	a, err := agent.New(logger, cfg, spawner, sampler.Perf{Spawner: spawner}, m)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	if err := transport.AwaitFreePort(ctx, logger, port, 2*time.Second); err != nil {
		return err
	}

	r := a.Router()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("msg", "http server failed", "err", err)
		}
	}()

	level.Info(logger).Log("msg", "agent started", "vm_id", cfg.EffectiveVmId(), "port", port, "containers", len(cfg.IdPreloadMap))

	runErr := a.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	level.Info(logger).Log("msg", "agent stopped")
	return runErr
}

func newLogger(lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	var opt level.Option
	switch lvl {
	case "debug":
		opt = level.AllowDebug()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		opt = level.AllowInfo()
	}
	return level.NewFilter(logger, opt)
}
