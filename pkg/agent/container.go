//go:build linux

// Package agent implements the local cache-controller agent: it owns one
// Container binding per managed tenant, drives the sampler/monitor/
// accountant/estimator pipeline on a fixed cadence, serves a config-update
// endpoint, and posts usage reports to the coordinator.
package agent

import (
	"context"
	"fmt"

	"github.com/nova-systems/cachectl/pkg/spawn"
	"github.com/nova-systems/cachectl/pkg/types"
)

// Container is one managed tenant binding: which AppId it serves, the
// docker container name its cgroup is resolved from, and the optional
// launch script spawned at agent startup. The cgroup path itself is not
// stored here — it is resolved (and cached) lazily through the agent's
// shared cgroup.Resolver on first use.
type Container struct {
	AppId     types.AppId
	Name      string
	CgroupMap string // optional static cgroup path override from config
	Port      *types.Port

	launchCmd    string
	shouldLaunch bool

	proc spawn.Handle // owned subprocess, nil unless launched by this agent
}

// NewContainer builds a Container binding from one config preload entry.
func NewContainer(e types.PreloadEntry) *Container {
	c := &Container{
		AppId:        e.Id,
		Name:         e.DockerName,
		Port:         e.Port,
		launchCmd:    e.Script,
		shouldLaunch: e.ShouldLaunch(),
	}
	if e.CgroupMap != nil {
		c.CgroupMap = *e.CgroupMap
	}
	return c
}

// Launch spawns the container's cache process if the binding requests it
// and a launch command is configured. The resulting process is owned by
// the agent and killed on Shutdown.
func (c *Container) Launch(ctx context.Context, spawner spawn.ProcessSpawner) error {
	if !c.shouldLaunch || c.launchCmd == "" {
		return nil
	}
	h, err := spawner.Start(ctx, "sh", "-c", c.launchCmd)
	if err != nil {
		return fmt.Errorf("agent: launch container %s: %w", c.Name, err)
	}
	c.proc = h
	return nil
}

// Shutdown kills the owned subprocess, if any. Safe to call on a Container
// that was never launched.
func (c *Container) Shutdown() {
	if c.proc == nil {
		return
	}
	_ = c.proc.Kill()
}
