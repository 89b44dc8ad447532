package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMA_FirstSampleSetsState(t *testing.T) {
	e := NewEMA(0.5)
	out := e.Next(10)
	assert.Equal(t, 10.0, out, "first output should equal first input")
	out2 := e.Next(20)
	assert.InDelta(t, 15.0, out2, 1e-9, "EMA(0.5) of 10 then 20 should be 15")
}

func TestEMA_AlphaOne_NoSmoothing(t *testing.T) {
	e := NewEMA(1.0)
	assert.Equal(t, 10.0, e.Next(10))
	assert.Equal(t, 20.0, e.Next(20))
	assert.Equal(t, 5.0, e.Next(5))
}

func TestDeltaU64(t *testing.T) {
	assert.Equal(t, uint64(10), DeltaU64(110, 100))
	assert.Equal(t, uint64(0), DeltaU64(100, 100))
	assert.Equal(t, uint64(0), DeltaU64(99, 100))
}

func TestSafeDiv(t *testing.T) {
	require.InDelta(t, 2.5, SafeDiv(5, 2), 1e-12)
	assert.Equal(t, 0.0, SafeDiv(123, 0))
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-1e9))
	assert.Equal(t, 1.0, Clamp01(42))
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
}

func TestRing_WrapsAndMeans(t *testing.T) {
	r := NewRing(3)
	assert.False(t, r.Full())
	r.Push(1)
	r.Push(2)
	r.Push(3)
	assert.True(t, r.Full())
	assert.Equal(t, []float64{1, 2, 3}, r.Values())
	assert.InDelta(t, 2.0, r.Mean(), 1e-12)

	r.Push(4) // evicts 1
	assert.Equal(t, []float64{2, 3, 4}, r.Values())
	assert.InDelta(t, 3.0, r.Mean(), 1e-12)
}
