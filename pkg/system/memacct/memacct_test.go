//go:build linux

package memacct

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova-systems/cachectl/pkg/system/cgroup"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestSample_ComputesCurrentAndAnonMB(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "memory.current", "104857600\n")       // 100 MiB
	writeFile(t, dir, "memory.stat", "anon 52428800\nfile 0\n") // 50 MiB
	writeFile(t, dir, "memory.swap.current", "10485760\n")   // 10 MiB

	u, err := Sample(cgroup.NewHandle(dir))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), u.CurrentMB)
	assert.Equal(t, uint64(60), u.AnonMB)
}

func TestSample_PropagatesMissingMemoryCurrent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "memory.stat", "anon 0\n")
	writeFile(t, dir, "memory.swap.current", "0\n")

	_, err := Sample(cgroup.NewHandle(dir))
	assert.Error(t, err)
}

func TestSample_PropagatesMissingAnonLine(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "memory.current", "0\n")
	writeFile(t, dir, "memory.stat", "file 0\n")
	writeFile(t, dir, "memory.swap.current", "0\n")

	_, err := Sample(cgroup.NewHandle(dir))
	assert.Error(t, err)
}

func TestSample_ZeroUsage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "memory.current", "0\n")
	writeFile(t, dir, "memory.stat", "anon 0\n")
	writeFile(t, dir, "memory.swap.current", "0\n")

	u, err := Sample(cgroup.NewHandle(dir))
	require.NoError(t, err)
	assert.Zero(t, u.CurrentMB)
	assert.Zero(t, u.AnonMB)
}
