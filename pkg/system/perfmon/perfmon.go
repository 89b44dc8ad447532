//go:build linux

// Package perfmon reads the four aggregate perf counters a tenant's cgroup
// produces once per second (L3 misses, L3 references, major page faults,
// memory-load ops retired) and maintains a short ring-buffered average for
// each.
package perfmon

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nova-systems/cachectl/pkg/spawn"
	"github.com/nova-systems/cachectl/pkg/system/util"
)

// historyLength is the depth of each counter's averaging ring.
const historyLength = 16

// Counters is one second's worth of raw counter reads for a container.
type Counters struct {
	L3Misses   uint64
	L3Refs     uint64
	MajorFault uint64
	MemOps     uint64
}

// Monitor samples "perf stat" over a cgroup and keeps a 16-sample ring per
// counter so callers can read a smoothed average.
type Monitor struct {
	spawner spawn.ProcessSpawner

	l3Miss, l3Ref, majFault, memOps *util.Ring
}

// New constructs a Monitor with empty history rings.
func New(spawner spawn.ProcessSpawner) *Monitor {
	return &Monitor{
		spawner:  spawner,
		l3Miss:   util.NewRing(historyLength),
		l3Ref:    util.NewRing(historyLength),
		majFault: util.NewRing(historyLength),
		memOps:   util.NewRing(historyLength),
	}
}

// Sample reads one second of counters for cgroupPath via "perf stat" and
// appends them to the rolling history. On a parse failure the sample is
// skipped (the ring is left untouched) but the caller's cadence is
// unaffected.
func (m *Monitor) Sample(ctx context.Context, cgroupPath string) error {
	out, err := m.spawner.Run(ctx, "perf", "stat",
		"-e", "cache-misses,cache-references,major-faults,mem-loads",
		"-G", cgroupPath,
		"--", "sleep", "1",
	)
	if err != nil {
		return fmt.Errorf("perfmon: perf stat: %w", err)
	}

	c, err := parseCounters(out)
	if err != nil {
		return err
	}

	m.l3Miss.Push(float64(c.L3Misses))
	m.l3Ref.Push(float64(c.L3Refs))
	m.majFault.Push(float64(c.MajorFault))
	m.memOps.Push(float64(c.MemOps))
	return nil
}

// Averages returns the arithmetic mean of each counter over the current
// ring contents.
func (m *Monitor) Averages() Counters {
	return Counters{
		L3Misses:   uint64(m.l3Miss.Mean()),
		L3Refs:     uint64(m.l3Ref.Mean()),
		MajorFault: uint64(m.majFault.Mean()),
		MemOps:     uint64(m.memOps.Mean()),
	}
}

// parseCounters parses "perf stat" plain-text output, matching the
// "<value> <event-name>" line shape perf emits per counter.
func parseCounters(out []byte) (Counters, error) {
	var c Counters
	found := 0
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		raw := strings.ReplaceAll(fields[0], ",", "")
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			continue
		}
		switch fields[1] {
		case "cache-misses":
			c.L3Misses = v
			found++
		case "cache-references":
			c.L3Refs = v
			found++
		case "major-faults":
			c.MajorFault = v
			found++
		case "mem-loads":
			c.MemOps = v
			found++
		}
	}
	if found == 0 {
		return Counters{}, fmt.Errorf("perfmon: no recognizable counters in perf stat output")
	}
	return c, nil
}
