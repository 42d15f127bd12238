// Package alloc is the allocator's public surface: Allocate, ZeroAllocate,
// Resize, and Release. The public surface trades in opaque unsafe.Pointer
// payload handles, never *block.Header; header/payload conversion lives in
// internal/block and list manipulation in internal/arena.
package alloc

import (
	"unsafe"

	"github.com/brkheap/allocator/internal/allocerr"
	"github.com/brkheap/allocator/internal/arena"
	"github.com/brkheap/allocator/internal/block"
	"github.com/brkheap/allocator/internal/config"
	"github.com/brkheap/allocator/internal/sysmem"
)

// Allocator is a single-threaded memory allocator over a private heap
// arena. Its zero value is not ready for use; construct with New, since the
// arena needs a config before it can reserve a heap.
type Allocator struct {
	cfg   *config.Config
	arena *arena.Arena

	// mappedBlocks/mappedBytes track independently-mapped blocks, which
	// Stats needs but which never join the arena's head/tail list.
	mappedBlocks int
	mappedBytes  int
}

// Stats is a read-only snapshot of block counts and live-byte totals,
// split between the heap list and independently-mapped blocks.
type Stats struct {
	AllocBlocks int
	AllocBytes  int
	FreeBlocks  int
	FreeBytes   int

	MappedBlocks int
	MappedBytes  int
}

// New builds an Allocator with the given config overrides applied on top
// of the defaults (131072-byte mmap threshold, 8-byte grain).
func New(opts ...config.Option) *Allocator {
	cfg := config.DefaultConfig(opts...)
	return &Allocator{
		cfg:   cfg,
		arena: arena.New(cfg),
	}
}

// defaultAllocator is the process-wide singleton bound to a single arena,
// built at package initialization; its heap reservation is made on first
// heap-bound use. Package-level Allocate/ZeroAllocate/Resize/
// Release operate on it; Allocator itself remains independently
// constructible so tests can exercise multiple isolated arenas.
var defaultAllocator = New()

// Allocate returns a pointer to at least n bytes, 8-byte aligned, with
// indeterminate contents; nil iff n <= 0.
func Allocate(n int) unsafe.Pointer { return defaultAllocator.Allocate(n) }

// ZeroAllocate returns a pointer to at least k*n zeroed bytes, or nil if
// k*n <= 0, using the OS page size as its threshold instead of the mmap
// threshold.
func ZeroAllocate(k, n int) unsafe.Pointer { return defaultAllocator.ZeroAllocate(k, n) }

// Resize changes the capacity of the block at p to n bytes, returning p or
// a relocated pointer.
func Resize(p unsafe.Pointer, n int) unsafe.Pointer { return defaultAllocator.Resize(p, n) }

// Release invalidates p. A no-op on nil.
func Release(p unsafe.Pointer) { defaultAllocator.Release(p) }

// Stats reports a point-in-time snapshot of the process-wide singleton's
// block counts and live-byte totals.
func Stats() Stats { return defaultAllocator.Stats() }

// Allocate is the receiver form of the package-level Allocate, usable
// against an independently-constructed Allocator.
func (al *Allocator) Allocate(n int) unsafe.Pointer {
	return al.allocateWithThreshold(n, al.cfg.MmapThreshold)
}

// ZeroAllocate is the receiver form of the package-level ZeroAllocate.
func (al *Allocator) ZeroAllocate(k, n int) unsafe.Pointer {
	total := k * n
	p := al.allocateWithThreshold(total, sysmem.PageSize())
	if p == nil {
		return nil
	}
	zero(p, total)
	return p
}

// allocateWithThreshold implements the threshold-parameterized
// allocate(n, T) front-end: best-fit reuse, last-block expansion,
// preallocation, then primitive provisioning, in that order.
func (al *Allocator) allocateWithThreshold(n, threshold int) unsafe.Pointer {
	if n <= 0 {
		return nil
	}
	a := al.arena

	// Step 2: best-fit search against the existing heap list.
	if a.Head() != nil && block.Align8(n) < threshold {
		a.Coalesce()
		if winner, ok := a.BestFit(n); ok {
			winner.SetStatus(block.Alloc)
			return winner.Payload()
		}
	}

	// Step 3: last-block expansion.
	if tail := a.Tail(); tail != nil && tail.Status() == block.Free &&
		tail.Size() < block.Align8(n) && block.Align8(n) < threshold-block.Stride {
		a.ExpandTail(n)
		return a.Tail().Payload()
	}

	// Step 4: preallocation on a fresh arena, split down to the request.
	if a.Head() == nil && block.Align8(n) < threshold-block.Stride {
		big := a.Preallocate()
		if big.Size() > block.SlotSize(n) {
			a.Split(big, n)
		}
		return big.Payload()
	}

	// Step 5: primitive provisioning, heap or mapped.
	b := a.CreateBlock(n, threshold-block.Stride)
	if b.Status() == block.Alloc {
		a.Append(b)
	} else {
		al.mappedBlocks++
		al.mappedBytes += b.Size()
	}
	return b.Payload()
}

// Stats is the receiver form of the package-level Stats. It walks the
// heap list once, counting ALLOC and FREE blocks and summing their
// payload bytes, and adds the mapped-block counters tracked alongside it;
// the result is consulted by no allocation decision.
func (al *Allocator) Stats() Stats {
	var s Stats
	for b := al.arena.Head(); b != nil; b = b.Next() {
		switch b.Status() {
		case block.Alloc:
			s.AllocBlocks++
			s.AllocBytes += b.Size()
		case block.Free:
			s.FreeBlocks++
			s.FreeBytes += b.Size()
		}
	}
	s.MappedBlocks = al.mappedBlocks
	s.MappedBytes = al.mappedBytes
	return s
}

// Release is the receiver form of the package-level Release.
func (al *Allocator) Release(p unsafe.Pointer) {
	if p == nil {
		return
	}
	b := block.FromPayload(p)
	switch b.Status() {
	case block.Alloc:
		b.SetStatus(block.Free)
	case block.Mapped:
		size := b.Size()
		if err := sysmem.Munmap(b.Addr(), size+block.Stride); err != nil {
			allocerr.Fatal(allocerr.Wrap("munmap", allocerr.KindExhausted, size+block.Stride, err))
		}
		al.mappedBlocks--
		al.mappedBytes -= size
	}
}

func zero(p unsafe.Pointer, n int) {
	if n <= 0 {
		return
	}
	buf := unsafe.Slice((*byte)(p), n)
	for i := range buf {
		buf[i] = 0
	}
}

func copyBytes(dst, src unsafe.Pointer, n int) {
	if n <= 0 {
		return
	}
	copy(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src), n))
}
