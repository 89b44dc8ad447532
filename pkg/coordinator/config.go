//go:build linux

package coordinator

import (
	"fmt"

	"github.com/nova-systems/cachectl/pkg/types"
)

// Config is the coordinator's startup config file, the sole CLI argument
// (a path to this JSON document).
type Config struct {
	// PlacementMap gives, per tenant, the ordered set of VMs hosting it.
	// Every AppId in an incoming AllocationMap must appear here.
	PlacementMap map[types.AppId][]types.VmId `json:"placement_map"`

	// VmIpMap gives the host:port of each VM's local agent.
	VmIpMap map[types.VmId]string `json:"vm_ip_map"`

	// IdPreloadMap names a benchmark-preload command per VM, run once at
	// startup; duplicate commands across VMs are run only once.
	IdPreloadMap map[types.VmId]string `json:"id_preload_map,omitempty"`

	// RunBackendCmdMap names a backend process to launch per tenant at
	// startup. Spawned processes are owned by the coordinator and killed on
	// shutdown.
	RunBackendCmdMap map[types.AppId]string `json:"run_backend_cmd_map,omitempty"`

	LogLevel string `json:"log_level,omitempty"`
}

// Validate checks the fields whose absence is fatal at startup.
func (c Config) Validate() error {
	if len(c.PlacementMap) == 0 {
		return fmt.Errorf("placement_map must not be empty: %w", types.ErrConfigInvalid)
	}
	for app, vms := range c.PlacementMap {
		if len(vms) == 0 {
			return fmt.Errorf("placement_map entry for app %d lists no VMs: %w", app, types.ErrConfigInvalid)
		}
		for _, vm := range vms {
			if _, ok := c.VmIpMap[vm]; !ok {
				return fmt.Errorf("vm %d in placement_map has no entry in vm_ip_map: %w", vm, types.ErrConfigInvalid)
			}
		}
	}
	return nil
}
