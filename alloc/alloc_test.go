package alloc_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/brkheap/allocator/alloc"
	"github.com/brkheap/allocator/internal/block"
	"github.com/brkheap/allocator/internal/config"
)

const testThreshold = 4096

func newTestAllocator(t *testing.T) *alloc.Allocator {
	t.Helper()
	return alloc.New(
		config.WithMmapThreshold(testThreshold),
		config.WithReserveSpan(16<<20),
	)
}

// Scenario 1: allocate(100) on a fresh process splits the preallocated
// block so the returned payload is exactly align8(100), with a trailing
// FREE tail of size threshold - slotSize(100) - H.
func TestAllocateOnFreshArenaPreallocatesAndSplits(t *testing.T) {
	al := newTestAllocator(t)
	p := al.Allocate(100)
	require.NotNil(t, p)

	b := block.FromPayload(p)
	require.Equal(t, block.Align8(100), b.Size())
	require.Equal(t, block.Alloc, b.Status())

	tail := b.Next()
	require.NotNil(t, tail)
	require.Equal(t, block.Free, tail.Status())
	require.Equal(t, testThreshold-block.SlotSize(100)-block.Stride, tail.Size())
}

// Scenario 2: a request whose aligned total align8(n)+H meets the threshold
// goes via an independent mapping; head/tail stay empty and release unmaps it.
func TestAllocateAtThresholdGoesToMapping(t *testing.T) {
	al := newTestAllocator(t)
	n := testThreshold - block.Stride
	p := al.Allocate(n)
	require.NotNil(t, p)

	b := block.FromPayload(p)
	require.Equal(t, block.Mapped, b.Status())
	require.Nil(t, b.Next())

	al.Release(p) // must not panic; exercises the munmap path
}

// Scenario 3: coalesce and reuse. Three same-size allocations, release the
// first two, then request a size too large for either freed block alone;
// best-fit serves it from their merged region ahead of the larger residual
// FREE tail.
func TestAllocateReusesCoalescedRegion(t *testing.T) {
	al := newTestAllocator(t)
	p1 := al.Allocate(64)
	p2 := al.Allocate(64)
	p3 := al.Allocate(64)
	require.NotNil(t, p3)

	al.Release(p1)
	al.Release(p2)

	q := al.Allocate(64 + block.Stride + 16) // too big for p1 or p2 alone
	require.Equal(t, p1, q)
}

// Scenario 4: last-block expansion reuses a released tail in place instead
// of provisioning a new block. p1 consumes the preallocated block's residual
// FREE tail exactly (no remainder to split off), so p1 stays the arena's
// tail; releasing and re-requesting more than its current size (while
// staying below threshold - H) must expand it in place rather than relocate.
func TestAllocateExpandsReleasedTail(t *testing.T) {
	al := newTestAllocator(t)

	p0 := al.Allocate(64)
	residual := block.FromPayload(p0).Next()
	require.NotNil(t, residual)
	require.Equal(t, block.Free, residual.Status())
	residualSize := residual.Size()

	p1 := al.Allocate(residualSize) // exact fit: binds residual without splitting
	require.Same(t, residual, block.FromPayload(p1))

	al.Release(p1)

	q := al.Allocate(residualSize + 64)
	require.Equal(t, p1, q)

	b := block.FromPayload(q)
	require.Equal(t, block.Align8(residualSize+64), b.Size())
	require.Equal(t, block.Alloc, b.Status())
}

// L3: zero_allocate contents are all zero.
func TestZeroAllocateContentsAreZero(t *testing.T) {
	al := newTestAllocator(t)
	p := al.ZeroAllocate(8, 16)
	require.NotNil(t, p)

	buf := unsafe.Slice((*byte)(p), 8*16)
	for i, bt := range buf {
		require.Equalf(t, byte(0), bt, "byte %d not zero", i)
	}
}

// P1: every payload returned is 8-byte aligned.
func TestAllocatePayloadsAreEightByteAligned(t *testing.T) {
	al := newTestAllocator(t)
	for _, n := range []int{1, 7, 9, 64, 999, 5000} {
		p := al.Allocate(n)
		require.Zero(t, uintptr(p)%8, "n=%d", n)
	}
}

// L1: release marks a heap block FREE at the status level.
func TestReleaseMarksHeapBlockFree(t *testing.T) {
	al := newTestAllocator(t)
	p := al.Allocate(64)
	al.Release(p)
	require.Equal(t, block.Free, block.FromPayload(p).Status())
}

func TestAllocateNonPositiveReturnsNil(t *testing.T) {
	al := newTestAllocator(t)
	require.Nil(t, al.Allocate(0))
	require.Nil(t, al.Allocate(-1))
}

func TestReleaseNilIsNoop(t *testing.T) {
	al := newTestAllocator(t)
	al.Release(nil) // must not panic
}

func TestStatsCountsAllocFreeAndMappedBlocks(t *testing.T) {
	al := newTestAllocator(t)

	p1 := al.Allocate(64)
	p2 := al.Allocate(testThreshold + 100) // routes to an independent mapping
	al.Release(p1)

	s := al.Stats()
	require.Equal(t, 2, s.FreeBlocks) // the released block plus the preallocation's residual tail
	require.Equal(t, 1, s.MappedBlocks)
	require.Equal(t, block.Align8(testThreshold+100), s.MappedBytes)
	require.Zero(t, s.AllocBlocks) // both heap blocks (p1's and the residual tail) are FREE

	al.Release(p2)
	s = al.Stats()
	require.Zero(t, s.MappedBlocks)
	require.Zero(t, s.MappedBytes)
}
