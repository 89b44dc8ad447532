//go:build linux

// Package memacct converts raw cgroup memory pseudo-file reads into the two
// MB-denominated figures the rest of the controller consumes: total resident
// memory and anonymous-plus-swap memory.
package memacct

import (
	"fmt"

	"github.com/nova-systems/cachectl/pkg/system/cgroup"
)

const bytesPerMB = 1024 * 1024

// Usage is one accounting snapshot for a tenant's cgroup.
type Usage struct {
	CurrentMB uint64
	AnonMB    uint64
}

// Sample reads memory.current, memory.stat's anon line, and
// memory.swap.current and reduces them to whole megabytes.
func Sample(h cgroup.Handle) (Usage, error) {
	cur, err := h.MemoryCurrent()
	if err != nil {
		return Usage{}, fmt.Errorf("memacct: memory.current: %w", err)
	}

	anon, err := h.AnonBytes()
	if err != nil {
		return Usage{}, fmt.Errorf("memacct: anon: %w", err)
	}

	swap, err := h.MemorySwapCurrent()
	if err != nil {
		return Usage{}, fmt.Errorf("memacct: swap.current: %w", err)
	}

	return Usage{
		CurrentMB: cur / bytesPerMB,
		AnonMB:    (anon + swap) / bytesPerMB,
	}, nil
}
