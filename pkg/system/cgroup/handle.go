//go:build linux

package cgroup

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Handle wraps a resolved cgroup v2 subtree path and exposes read/write
// helpers for the pseudo-files this controller touches: memory.max,
// memory.high, memory.swap.max, memory.current, memory.stat, io.max,
// io.stat.
type Handle struct {
	Path string
}

// NewHandle wraps an already-resolved cgroup directory path.
func NewHandle(path string) Handle { return Handle{Path: path} }

func (h Handle) file(name string) string { return filepath.Join(h.Path, name) }

// readUint64 reads a cgroup pseudo-file expected to hold a single integer
// (memory.current, memory.swap.current, memory.max, memory.swap.max). The
// literal string "max" (an unbounded ceiling) is reported as ErrParse to the
// caller so gradual-enforcement logic never silently treats "unbounded" as 0.
func (h Handle) readUint64(name string) (uint64, error) {
	b, err := os.ReadFile(h.file(name))
	if err != nil {
		return 0, fmt.Errorf("cgroup: read %s: %w", name, ErrCgroupUnavailable)
	}
	s := strings.TrimSpace(string(b))
	if s == "max" {
		return 0, fmt.Errorf("%s is unbounded (\"max\"): %w", name, ErrParse)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cgroup: parse %s=%q: %w", name, s, ErrParse)
	}
	return v, nil
}

func (h Handle) writeString(name, value string) error {
	if err := os.WriteFile(h.file(name), []byte(value), 0o644); err != nil {
		return fmt.Errorf("cgroup: write %s: %w", name, ErrCgroupUnavailable)
	}
	return nil
}

// MemoryCurrent returns memory.current in bytes.
func (h Handle) MemoryCurrent() (uint64, error) { return h.readUint64("memory.current") }

// MemorySwapCurrent returns memory.swap.current in bytes.
func (h Handle) MemorySwapCurrent() (uint64, error) { return h.readUint64("memory.swap.current") }

// MemorySwapMax returns memory.swap.max in bytes, or 0 if it reads as "max"
// (unbounded). A caller that must tell "unbounded" from a zero ceiling reads
// the file itself.
func (h Handle) MemorySwapMax() (uint64, error) {
	v, err := h.readUint64("memory.swap.max")
	if err != nil && strings.Contains(err.Error(), "unbounded") {
		return 0, nil
	}
	return v, err
}

// WriteMemoryMax writes memory.max as "<mb>M".
func (h Handle) WriteMemoryMax(mb uint64) error {
	return h.writeString("memory.max", fmt.Sprintf("%dM", mb))
}

// WriteMemoryHigh writes memory.high as "<mb>M".
func (h Handle) WriteMemoryHigh(mb uint64) error {
	return h.writeString("memory.high", fmt.Sprintf("%dM", mb))
}

// WriteMemorySwapMax writes memory.swap.max in bytes.
func (h Handle) WriteMemorySwapMax(bytes uint64) error {
	return h.writeString("memory.swap.max", strconv.FormatUint(bytes, 10))
}

// AnonBytes reads memory.stat's "anon" line, the resident anonymous
// (non-file-backed) memory, in bytes.
func (h Handle) AnonBytes() (uint64, error) {
	return h.statField("memory.stat", "anon")
}

func (h Handle) statField(file, key string) (uint64, error) {
	f, err := os.Open(h.file(file))
	if err != nil {
		return 0, fmt.Errorf("cgroup: open %s: %w", file, ErrCgroupUnavailable)
	}
	defer func() { _ = f.Close() }()

	prefix := key + " "
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return 0, fmt.Errorf("cgroup: malformed %s line %q: %w", file, key, ErrParse)
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cgroup: parse %s %s: %w", file, key, ErrParse)
		}
		return v, nil
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("cgroup: scan %s: %w", file, ErrParse)
	}
	return 0, fmt.Errorf("cgroup: %s not found in %s: %w", key, file, ErrParse)
}

// IOStatBytes returns (rbytes, wbytes) from the io.stat line matching the
// given "major:minor" device key.
func (h Handle) IOStatBytes(majMin string) (rbytes, wbytes uint64, err error) {
	f, err := os.Open(h.file("io.stat"))
	if err != nil {
		return 0, 0, fmt.Errorf("cgroup: open io.stat: %w", ErrCgroupUnavailable)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || fields[0] != majMin {
			continue
		}
		for _, kv := range fields[1:] {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				continue
			}
			v, perr := strconv.ParseUint(parts[1], 10, 64)
			if perr != nil {
				continue
			}
			switch parts[0] {
			case "rbytes":
				rbytes = v
			case "wbytes":
				wbytes = v
			}
		}
		return rbytes, wbytes, nil
	}
	if err := sc.Err(); err != nil {
		return 0, 0, fmt.Errorf("cgroup: scan io.stat: %w", ErrParse)
	}
	// Device not yet active on this cgroup (no I/O has occurred): zero, not an error.
	return 0, 0, nil
}

// WriteIOMax writes the "{maj:min} rbps={b} wbps={b}" rule to io.max.
// Idempotent; overwrites any previous rule for the device.
func (h Handle) WriteIOMax(majMin string, rbps, wbps uint64) error {
	rule := fmt.Sprintf("%s rbps=%d wbps=%d", majMin, rbps, wbps)
	return h.writeString("io.max", rule)
}
