package types

// PreloadEntry describes one managed container in the local agent's config
// file: which tenant it serves, what docker name/cgroup it resolves to, and
// an optional one-shot launch/benchmark-preload script.
type PreloadEntry struct {
	Id         AppId   `json:"id"`
	Script     string  `json:"script,omitempty"`
	DockerName string  `json:"docker_name"`
	Launch     *bool   `json:"launch,omitempty"`
	CgroupMap  *string `json:"cgroup_map,omitempty"`
	Port       *Port   `json:"port,omitempty"`
}

// ShouldLaunch reports whether this entry's container should be spawned by
// the agent at startup (defaults to true, matching the original's implicit
// "launch unless told otherwise").
func (p PreloadEntry) ShouldLaunch() bool {
	return p.Launch == nil || *p.Launch
}

// InitConfig is the local agent's startup config file, the sole CLI
// argument (a path to this JSON document).
type InitConfig struct {
	IdPreloadMap   []PreloadEntry   `json:"id_preload_map"`
	IdBenchmarkMap map[AppId]string `json:"id_benchmark_map,omitempty"`
	MemoryDevName  string           `json:"memory_dev_name"`
	MemoryIp       string           `json:"memory_ip"`
	GlobalIp       string           `json:"global_ip"`
	InitScript     *string          `json:"init_script,omitempty"`
	EnableMrc      *bool            `json:"enable_mrc,omitempty"`
	VmId           *VmId            `json:"vm_id,omitempty"`
	LogLevel       string           `json:"log_level,omitempty"`

	// SeparateCompulsory asks the MRC estimator to split compulsory misses
	// out of the emitted curve. Off unless explicitly enabled.
	SeparateCompulsory *bool `json:"separate_compulsory,omitempty"`
}

// MrcEnabled reports the effective enable_mrc value (defaults to true).
func (c InitConfig) MrcEnabled() bool {
	return c.EnableMrc == nil || *c.EnableMrc
}

// CompulsorySplitEnabled reports the effective separate_compulsory value
// (defaults to false).
func (c InitConfig) CompulsorySplitEnabled() bool {
	return c.SeparateCompulsory != nil && *c.SeparateCompulsory
}

// EffectiveVmId returns VmId if set, else 0.
func (c InitConfig) EffectiveVmId() VmId {
	if c.VmId == nil {
		return 0
	}
	return *c.VmId
}

// Validate checks the fields ConfigInvalid treats as fatal at startup.
func (c InitConfig) Validate() error {
	if len(c.IdPreloadMap) == 0 {
		return errConfigInvalid("id_preload_map must not be empty")
	}
	if c.MemoryDevName == "" {
		return errConfigInvalid("memory_dev_name is required")
	}
	if c.GlobalIp == "" {
		return errConfigInvalid("global_ip is required")
	}
	seen := make(map[AppId]struct{}, len(c.IdPreloadMap))
	for _, e := range c.IdPreloadMap {
		if e.DockerName == "" {
			return errConfigInvalid("docker_name is required for app " + itoa64(uint64(e.Id)))
		}
		if _, dup := seen[e.Id]; dup {
			return errConfigInvalid("duplicate app id in id_preload_map: " + itoa64(uint64(e.Id)))
		}
		seen[e.Id] = struct{}{}
	}
	return nil
}
