//go:build linux

package cgroup

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/nova-systems/cachectl/pkg/spawn"
)

// Resolver caches container-name -> cgroup path lookups. The first lookup
// for a container shells out to "docker inspect" for its cgroup path;
// subsequent lookups read the cache. A read-mostly sync.RWMutex guards the
// map itself; singleflight additionally coalesces concurrent first-time
// resolutions of the *same* container into a single subprocess call.
type Resolver struct {
	spawner spawn.ProcessSpawner

	mu    sync.RWMutex
	cache map[string]string // container name -> resolved cgroup path

	group singleflight.Group
}

// NewResolver builds a Resolver backed by the given ProcessSpawner.
func NewResolver(spawner spawn.ProcessSpawner) *Resolver {
	return &Resolver{spawner: spawner, cache: make(map[string]string)}
}

// Resolve returns the cgroup path for containerName, resolving and caching
// it via "docker inspect" on first use. If staticPath is non-empty it is
// used directly and cached without shelling out at all (the config file's
// optional cgroup_map override).
func (r *Resolver) Resolve(ctx context.Context, containerName, staticPath string) (string, error) {
	if staticPath != "" {
		r.mu.Lock()
		r.cache[containerName] = staticPath
		r.mu.Unlock()
		return staticPath, nil
	}

	r.mu.RLock()
	if p, ok := r.cache[containerName]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do(containerName, func() (any, error) {
		return r.resolveViaDocker(ctx, containerName)
	})
	if err != nil {
		return "", err
	}
	path := v.(string)

	r.mu.Lock()
	r.cache[containerName] = path
	r.mu.Unlock()

	return path, nil
}

// Invalidate drops a cached resolution, forcing the next Resolve to
// re-derive it. The agent itself never calls it; cached paths live for the
// Resolver's lifetime unless a caller invalidates them.
func (r *Resolver) Invalidate(containerName string) {
	r.mu.Lock()
	delete(r.cache, containerName)
	r.mu.Unlock()
}

// resolveViaDocker shells out to "docker inspect" for the container's
// id and assembles the absolute cgroup v2 path under /sys/fs/cgroup.
func (r *Resolver) resolveViaDocker(ctx context.Context, containerName string) (string, error) {
	out, err := r.spawner.Run(ctx, "docker", "inspect",
		"--format", "{{.Id}}", containerName)
	if err != nil {
		return "", fmt.Errorf("cgroup: docker inspect %s: %w", containerName, ErrCgroupUnavailable)
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", fmt.Errorf("cgroup: empty container id for %s: %w", containerName, ErrCgroupUnavailable)
	}
	return fmt.Sprintf("/sys/fs/cgroup/system.slice/docker-%s.scope", id), nil
}
