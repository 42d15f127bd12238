package wasmhost

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brkheap/allocator/alloc"
)

func TestHandleRoundTripThroughStack(t *testing.T) {
	h := New(alloc.New())
	ctx := context.Background()

	allocStack := []uint64{64}
	h.hostAllocate(ctx, allocStack)
	handle := uint32(allocStack[0])
	require.NotZero(t, handle)

	resizeStack := []uint64{uint64(handle), 256}
	h.hostResize(ctx, resizeStack)
	newHandle := uint32(resizeStack[0])
	require.NotZero(t, newHandle)

	releaseStack := []uint64{uint64(newHandle)}
	h.hostRelease(ctx, releaseStack)

	require.Empty(t, h.ptrs)
}

func TestHostAllocateZeroSizeYieldsNilHandle(t *testing.T) {
	h := New(alloc.New())
	stack := []uint64{0}
	h.hostAllocate(context.Background(), stack)
	require.Zero(t, stack[0])
}

func TestReleaseUnknownHandleIsNoop(t *testing.T) {
	h := New(alloc.New())
	stack := []uint64{999}
	h.hostRelease(context.Background(), stack) // must not panic
}
