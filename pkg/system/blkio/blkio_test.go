//go:build linux

package blkio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova-systems/cachectl/pkg/system/cgroup"
)

func writeIOStat(t *testing.T, dir, majMin string, rbytes, wbytes uint64) {
	t.Helper()
	content := majMin + " rbytes=" + itoa(rbytes) + " wbytes=" + itoa(wbytes) + " rios=0 wios=0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "io.stat"), []byte(content), 0o644))
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func TestAccountant_FirstSampleIsZero(t *testing.T) {
	dir := t.TempDir()
	writeIOStat(t, dir, "8:0", 1024*1024, 0)
	h := cgroup.NewHandle(dir)

	a := New("8:0")
	u, err := a.Sample(h, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Zero(t, u.ReadMbps)
	assert.Zero(t, u.WriteMbps)
}

func TestAccountant_ComputesRateFromDelta(t *testing.T) {
	dir := t.TempDir()
	writeIOStat(t, dir, "8:0", 0, 0)
	h := cgroup.NewHandle(dir)
	a := New("8:0")

	t0 := time.Unix(0, 0)
	_, err := a.Sample(h, t0)
	require.NoError(t, err)

	writeIOStat(t, dir, "8:0", 10*1024*1024, 5*1024*1024)
	u, err := a.Sample(h, t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.InDelta(t, 40.0, u.ReadMbps, 0.001)
	assert.InDelta(t, 20.0, u.WriteMbps, 0.001)
	assert.Equal(t, 40.0, u.Max())
}

func TestAccountant_CounterResetYieldsZeroNotNegative(t *testing.T) {
	dir := t.TempDir()
	writeIOStat(t, dir, "8:0", 100, 100)
	h := cgroup.NewHandle(dir)
	a := New("8:0")

	t0 := time.Unix(0, 0)
	_, err := a.Sample(h, t0)
	require.NoError(t, err)

	writeIOStat(t, dir, "8:0", 10, 10)
	u, err := a.Sample(h, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, u.ReadMbps)
	assert.Zero(t, u.WriteMbps)
}

func TestAccountant_NonAdvancingClockIsZero(t *testing.T) {
	dir := t.TempDir()
	writeIOStat(t, dir, "8:0", 0, 0)
	h := cgroup.NewHandle(dir)
	a := New("8:0")

	t0 := time.Unix(0, 0)
	_, err := a.Sample(h, t0)
	require.NoError(t, err)

	writeIOStat(t, dir, "8:0", 1024*1024, 0)
	u, err := a.Sample(h, t0)
	require.NoError(t, err)
	assert.Zero(t, u.ReadMbps)
}

func TestAccountant_DeviceAbsentFromIOStatIsZeroNotError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "io.stat"), []byte(""), 0o644))
	h := cgroup.NewHandle(dir)
	a := New("8:0")

	u, err := a.Sample(h, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Zero(t, u.Max())
}
