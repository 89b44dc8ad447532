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
	"github.com/nova-systems/cachectl/pkg/coordinator"
	"github.com/nova-systems/cachectl/pkg/spawn"
	"github.com/nova-systems/cachectl/pkg/transport"
)

func main() {
	var port int

	root := &cobra.Command{
		Use:   "coordinator CONFIG",
		Short: "Cluster cache-allocation coordinator",
		Long: `The coordinator divides a global memory/bandwidth budget across the VMs
hosting each tenant, pushes the per-VM shares to the local agents, and
aggregates the agents' usage reports (including miss-ratio curves) into a
cluster-wide status view.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], port)
		},
	}
	root.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")

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
	var cfg coordinator.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		level.Error(logger).Log("msg", "invalid config", "path", configPath, "err", err)
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewCoordinator(reg)

	c := coordinator.New(logger, cfg, spawn.Exec{}, m)
	defer c.Shutdown()

	c.Init(ctx)

	if err := transport.AwaitFreePort(ctx, logger, port, 2*time.Second); err != nil {
		return err
	}

	r := c.Router()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("msg", "http server failed", "err", err)
		}
	}()

	level.Info(logger).Log("msg", "coordinator started", "port", port, "apps", len(cfg.PlacementMap), "vms", len(cfg.VmIpMap))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	level.Info(logger).Log("msg", "coordinator stopped")
	return nil
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
