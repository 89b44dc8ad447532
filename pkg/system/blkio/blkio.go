//go:build linux

// Package blkio turns successive io.stat byte-counter snapshots for a
// tenant's cgroup into an instantaneous read/write bandwidth estimate,
// delta-over-wallclock between Sample calls.
package blkio

import (
	"fmt"
	"time"

	"github.com/nova-systems/cachectl/pkg/system/cgroup"
	"github.com/nova-systems/cachectl/pkg/system/util"
)

// Accountant tracks the previous io.stat snapshot for one device so
// successive Sample calls can report a delta-based rate.
type Accountant struct {
	majMin string

	haveSample bool
	prevR      uint64
	prevW      uint64
	prevAt     time.Time
}

// New constructs an Accountant for the given "major:minor" block device.
func New(majMin string) *Accountant {
	return &Accountant{majMin: majMin}
}

// Usage is the bandwidth observed over the interval ending at the most
// recent Sample call.
type Usage struct {
	ReadMbps  float64
	WriteMbps float64
}

// Max returns the larger of the two directions, the single number the
// agent reports as "bw_mbps" and feeds to the MRC estimator's history.
func (u Usage) Max() float64 {
	if u.ReadMbps > u.WriteMbps {
		return u.ReadMbps
	}
	return u.WriteMbps
}

// Sample reads the current io.stat counters and returns the bandwidth, in
// megabits per second, observed since the previous call. The first call
// after construction returns a zero Usage (a delta requires two points);
// a non-advancing clock returns zero without updating the stored
// snapshot.
func (a *Accountant) Sample(h cgroup.Handle, now time.Time) (Usage, error) {
	r, w, err := h.IOStatBytes(a.majMin)
	if err != nil {
		return Usage{}, fmt.Errorf("blkio: %w", err)
	}

	if !a.haveSample {
		a.prevR, a.prevW, a.prevAt = r, w, now
		a.haveSample = true
		return Usage{}, nil
	}

	elapsed := now.Sub(a.prevAt).Seconds()
	if elapsed <= 0 {
		return Usage{}, nil
	}

	const mib = 1024 * 1024
	dr := util.DeltaU64(r, a.prevR)
	dw := util.DeltaU64(w, a.prevW)
	a.prevR, a.prevW, a.prevAt = r, w, now

	return Usage{
		ReadMbps:  float64(dr) * 8 / mib / elapsed,
		WriteMbps: float64(dw) * 8 / mib / elapsed,
	}, nil
}
