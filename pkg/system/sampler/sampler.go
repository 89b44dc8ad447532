//go:build linux

// Package sampler acquires a batch of hardware-sampled memory-access
// addresses for one container's cgroup. The production implementation
// shells out to "perf record"/"perf script" through the
// spawn.ProcessSpawner capability; Stub is an in-process fake for tests.
package sampler

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nova-systems/cachectl/pkg/spawn"
)

// ErrUnavailable means the hardware precise-event sampling facility could
// not be engaged (permission denied, cgroup not found, facility busy).
// Callers skip estimation for this cycle and keep the previous MRC.
var ErrUnavailable = errors.New("sampler: unavailable")

// kernelPageBoundary is 0xFFFF_8000_0000_0000 / PAGE_SIZE: addresses at or
// above this page number are kernel-space and filtered out.
const kernelPageBoundary = 0xFFFF800000000000 / 4096

// samplerGrace bounds how much longer than the requested window the
// underlying "perf" subprocess is allowed to run before it is killed.
const samplerGrace = 5 * time.Second

// Sampler collects a multiset of page-quantized virtual addresses observed
// to have caused an L3-miss load during window, scoped to cgroupPath.
type Sampler interface {
	Sample(ctx context.Context, cgroupPath string, window time.Duration, decimation int) ([]uint64, error)
}

// Perf shells out to "perf record -e mem-loads -c <decimation> -G
// <cgroup> -o <file> -- sleep <window>" followed by "perf script -i
// <file>" to decode the recorded addresses. The two invocations are
// separate subprocesses, so the sample data travels through a temp file
// rather than a pipe. Every call is wrapped in a hard per-invocation
// timeout so a hung perf process cannot block its caller forever.
type Perf struct {
	Spawner spawn.ProcessSpawner
}

func (p Perf) Sample(ctx context.Context, cgroupPath string, window time.Duration, decimation int) ([]uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, window+samplerGrace)
	defer cancel()

	data, err := os.CreateTemp("", "perf-sample-*.data")
	if err != nil {
		return nil, fmt.Errorf("perf data file: %w: %w", err, ErrUnavailable)
	}
	dataPath := data.Name()
	_ = data.Close()
	defer func() { _ = os.Remove(dataPath) }()

	secs := fmt.Sprintf("%.3f", window.Seconds())
	if _, err := p.Spawner.Run(ctx, "perf", "record",
		"-e", "mem-loads",
		"-c", strconv.Itoa(decimation),
		"-G", cgroupPath,
		"-o", dataPath,
		"--", "sleep", secs,
	); err != nil {
		return nil, fmt.Errorf("perf record: %w: %w", err, ErrUnavailable)
	}

	decoded, err := p.Spawner.Run(ctx, "perf", "script", "-i", dataPath)
	if err != nil {
		return nil, fmt.Errorf("perf script: %w: %w", err, ErrUnavailable)
	}

	addrs := parseAddresses(decoded)
	if len(addrs) == 0 {
		return nil, ErrUnavailable
	}
	return addrs, nil
}

// parseAddresses extracts the trailing hex address field from each "perf
// script" output line and quantizes it to page granularity, dropping
// kernel-space addresses.
func parseAddresses(out []byte) []uint64 {
	var addrs []uint64
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		raw := fields[len(fields)-1]
		raw = strings.TrimPrefix(raw, "0x")
		v, err := strconv.ParseUint(raw, 16, 64)
		if err != nil {
			continue
		}
		page := v / 4096
		if page >= kernelPageBoundary {
			continue
		}
		addrs = append(addrs, page)
	}
	return addrs
}

// Stub is an in-process Sampler for tests, returning a pre-seeded address
// multiset instead of invoking "perf".
type Stub struct {
	Addresses []uint64
	Err       error
}

func (s Stub) Sample(_ context.Context, _ string, _ time.Duration, _ int) ([]uint64, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Addresses) == 0 {
		return nil, ErrUnavailable
	}
	out := make([]uint64, len(s.Addresses))
	copy(out, s.Addresses)
	return out, nil
}
