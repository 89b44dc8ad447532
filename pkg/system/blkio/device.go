//go:build linux

package blkio

import (
	"fmt"
	"os"
	"syscall"
)

// DeviceKey stats devPath (e.g. "/dev/nvme0n1") and returns its
// "major:minor" string, the key io.stat and io.max index block devices by.
// Reproduces the kernel's gnu_dev_major/minor bit layout.
func DeviceKey(devPath string) (string, error) {
	fi, err := os.Stat(devPath)
	if err != nil {
		return "", fmt.Errorf("blkio: stat %s: %w", devPath, err)
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return "", fmt.Errorf("blkio: %s: no raw device info available", devPath)
	}
	major, minor := majorMinor(uint64(st.Rdev))
	return fmt.Sprintf("%d:%d", major, minor), nil
}

// majorMinor decodes a Linux dev_t per the kernel's gnu_dev_major/minor
// macros (glibc <sys/sysmacros.h>).
func majorMinor(rdev uint64) (major, minor uint32) {
	major = uint32((rdev >> 8) & 0xfff)
	major |= uint32((rdev >> 32) & 0xfffff000)
	minor = uint32(rdev & 0xff)
	minor |= uint32((rdev >> 12) & 0xffffff00)
	return major, minor
}
