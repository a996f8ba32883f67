package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocBytesIsZeroedAndContiguous(t *testing.T) {
	a := New()
	buf := a.AllocBytes(16)
	require.Len(t, buf, 16)
	for _, b := range buf {
		require.Zero(t, b)
	}
	buf[0] = 0xFF
	require.Equal(t, byte(0xFF), buf[0])
}

func TestAllocBytesGrowsAcrossBlocks(t *testing.T) {
	a := New()
	first := a.AllocBytes(minBlockSize - 8)
	second := a.AllocBytes(64)
	require.Len(t, first, minBlockSize-8)
	require.Len(t, second, 64)
	require.GreaterOrEqual(t, len(a.blocks), 2)
}

func TestAllocBytesZeroLength(t *testing.T) {
	a := New()
	require.Nil(t, a.AllocBytes(0))
}

func TestDupStringCopiesContent(t *testing.T) {
	a := New()
	src := "hello"
	dup := a.DupString(src)
	require.Equal(t, src, dup)
}

func TestDupStringEmpty(t *testing.T) {
	a := New()
	require.Equal(t, "", a.DupString(""))
}

func TestAllocGeneric(t *testing.T) {
	type node struct{ X, Y int }
	a := New()
	n := Alloc[node](a)
	require.Equal(t, &node{}, n)
	n.X = 7
	require.Equal(t, 7, n.X)
}

func TestOutOfMemoryIsFatal(t *testing.T) {
	a := NewWithBudget(8)
	require.Panics(t, func() {
		a.AllocBytes(9)
	})
}

func TestBudgetAllowsExactFit(t *testing.T) {
	a := NewWithBudget(8)
	require.NotPanics(t, func() {
		a.AllocBytes(8)
	})
}

func TestStatsReportsUsage(t *testing.T) {
	a := New()
	a.AllocBytes(10)
	a.AllocBytes(20)
	stats := a.Stats()
	require.Equal(t, 30, stats.Used)
	require.GreaterOrEqual(t, stats.Cap, 30)
	require.Equal(t, 1, stats.Blocks)
}

func TestDestroyReleasesBlocks(t *testing.T) {
	a := New()
	a.AllocBytes(10)
	a.Destroy()
	require.Equal(t, Stats{}, a.Stats())
}
