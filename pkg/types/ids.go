package types

// AppId identifies a tenant application across the coordinator and agents.
type AppId uint64

// VmId identifies a single VM running a local agent.
type VmId uint64

// MemoryMb is a memory quantity expressed in megabytes.
type MemoryMb uint64

// BandwidthMbps is a bandwidth quantity expressed in megabits per second.
type BandwidthMbps uint64

// Port is a TCP port number.
type Port uint64
