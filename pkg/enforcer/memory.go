//go:build linux

// Package enforcer applies target memory and bandwidth ceilings to a
// tenant's cgroup.
package enforcer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nova-systems/cachectl/pkg/system/cgroup"
)

const (
	// evictionPressureRatio is the 10%-per-step decay factor used both to
	// compute the next gradual memory.max step and memory.high's floor.
	evictionPressureRatio = 0.9

	// evictionPressureMb is subtracted from memory.max to get memory.high's
	// alternate floor; the larger of the two floors is used.
	evictionPressureMb = 256

	iterMax = 5

	stepWait = 2 * time.Second

	// swapCeilingMb is the fixed 40 GiB swap ceiling; it is only ever
	// raised, never lowered.
	swapCeilingMb = 40 * 1024
)

// Memory gradually converges a cgroup's memory.max/memory.high toward a
// target.
type Memory struct{}

// Converge reads memory.current and steps memory.max/memory.high down by
// evictionPressureRatio per iteration (sleeping stepWait between steps)
// until the workload's actual usage has caught up with targetMb, then
// writes the target directly. The swap ceiling is raised to 40 GiB if it
// currently sits below that, and never shrunk.
func (Memory) Converge(ctx context.Context, h cgroup.Handle, targetMb uint64) error {
	currentBytes, err := h.MemoryCurrent()
	currentMb := currentBytes / (1024 * 1024)
	if err != nil {
		currentMb = 0
	}

	if targetMb < currentMb {
		for i := 0; i < iterMax; i++ {
			usedBytes, err := h.MemoryCurrent()
			if err != nil {
				break
			}
			current := usedBytes / (1024 * 1024)
			if current <= targetMb {
				break
			}

			next := nextStepMb(current)
			if next < targetMb {
				break
			}
			if err := writeStep(h, next); err != nil {
				return err
			}
			if !sleep(ctx, stepWait) {
				return ctx.Err()
			}
		}
	}

	if err := writeStep(h, targetMb); err != nil {
		return err
	}

	return raiseSwapCeiling(h)
}

// nextStepMb is one gradual-decrease step: 90% of the current usage,
// giving the in-container eviction policy time to catch up between writes.
func nextStepMb(currentMb uint64) uint64 {
	return uint64(float64(currentMb) * evictionPressureRatio)
}

func writeStep(h cgroup.Handle, mb uint64) error {
	if err := h.WriteMemoryMax(mb); err != nil {
		return err
	}
	high := mb - evictionPressureMb
	if mb <= evictionPressureMb {
		high = 0
	}
	if floor := uint64(float64(mb) * evictionPressureRatio); floor > high {
		high = floor
	}
	return h.WriteMemoryHigh(high)
}

func raiseSwapCeiling(h cgroup.Handle) error {
	// A ceiling of "max" is already unbounded; MemorySwapMax reports it as 0.
	if raw, err := os.ReadFile(filepath.Join(h.Path, "memory.swap.max")); err == nil && strings.TrimSpace(string(raw)) == "max" {
		return nil
	}
	currentBytes, err := h.MemorySwapMax()
	if err != nil {
		return err
	}
	currentMb := currentBytes / (1024 * 1024)
	if currentMb >= swapCeilingMb {
		return nil
	}
	return h.WriteMemorySwapMax(swapCeilingMb * 1024 * 1024)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
