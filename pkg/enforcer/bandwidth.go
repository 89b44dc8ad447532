//go:build linux

package enforcer

import "github.com/nova-systems/cachectl/pkg/system/cgroup"

// mbpsToBytesPerSec converts a megabit-per-second target into bytes/sec:
// 1 Mbps = 1,000,000 bits/sec = 125,000 bytes/sec.
const mbpsToBytesPerSec = 125_000

// Bandwidth writes the cgroup's io.max bandwidth ceiling for a given block
// device.
type Bandwidth struct{}

// Set writes "{majMin} rbps={B} wbps={B}" to io.max, where B is
// targetMbps·125_000 bytes/sec. Idempotent; overwrites any previous rule.
func (Bandwidth) Set(h cgroup.Handle, majMin string, targetMbps uint64) error {
	bps := targetMbps * mbpsToBytesPerSec
	return h.WriteIOMax(majMin, bps, bps)
}
