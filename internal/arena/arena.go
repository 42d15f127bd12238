// Package arena implements the allocator's heap arena: the process-wide
// head/tail block list, primitive provisioning (create_block,
// preallocation), and the free-list operations (coalesce, best-fit split,
// last-block expansion). Package alloc builds the four public operations on
// top of it.
package arena

import (
	"sync"

	"github.com/brkheap/allocator/internal/allocerr"
	"github.com/brkheap/allocator/internal/block"
	"github.com/brkheap/allocator/internal/config"
	"github.com/brkheap/allocator/internal/sysmem"
)

// Arena is the process-wide singleton holding the head and tail of the
// sbrk-backed block list. Construct with New: a zero Arena has no config
// and panics on its first heap-bound request. The brk reservation is
// created lazily on the first heap-bound request.
type Arena struct {
	cfg *config.Config

	mu   sync.Mutex // serializes brk reservation
	brk  *sysmem.Brk
	head *block.Header
	tail *block.Header
}

// New builds an Arena for the given config. Thread-safety is explicitly a
// non-goal for allocator entries; the mutex here guards only the one-time
// brk reservation, not concurrent allocate/release calls.
func New(cfg *config.Config) *Arena {
	return &Arena{cfg: cfg}
}

// Head returns the first block of the heap list, or nil before
// preallocation.
func (a *Arena) Head() *block.Header { return a.head }

// Tail returns the last block of the heap list, or nil before
// preallocation.
func (a *Arena) Tail() *block.Header { return a.tail }

func (a *Arena) ensureBrk() *sysmem.Brk {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.brk == nil {
		b, err := sysmem.NewBrk(a.cfg.ReserveSpan)
		if err != nil {
			allocerr.Fatal(allocerr.Wrap("reserve_heap", allocerr.KindExhausted, a.cfg.ReserveSpan, err))
		}
		a.brk = b
	}
	return a.brk
}

// CreateBlock produces a fresh block of payload capacity align8(n),
// choosing heap extension or independent mapping by comparing align8(n)
// against the caller-supplied threshold T. A failure of either primitive is
// fatal; create_block never returns an error to its caller.
func (a *Arena) CreateBlock(n, threshold int) *block.Header {
	size := block.Align8(n)
	if size < threshold {
		return a.createHeapBlock(size)
	}
	return a.createMappedBlock(size)
}

func (a *Arena) createHeapBlock(size int) *block.Header {
	total := size + block.Stride
	addr, err := a.ensureBrk().Extend(total)
	if err != nil {
		allocerr.Fatal(allocerr.Wrap("heap_extend", allocerr.KindExhausted, total, err))
	}
	h := block.At(addr)
	h.SetSize(size)
	h.SetStatus(block.Alloc)
	h.SetNext(nil)
	return h
}

func (a *Arena) createMappedBlock(size int) *block.Header {
	total := size + block.Stride
	addr, err := sysmem.MmapAnon(total)
	if err != nil {
		allocerr.Fatal(allocerr.Wrap("mmap_anon", allocerr.KindExhausted, total, err))
	}
	h := block.At(addr)
	h.SetSize(size)
	h.SetStatus(block.Mapped)
	h.SetNext(nil)
	return h
}

// Preallocate reserves a single heap block sized so its total footprint
// (payload plus header) equals exactly the configured mmap threshold, and
// installs it as both head and tail. Callers must only invoke this when the
// arena is empty (Head() == nil).
func (a *Arena) Preallocate() *block.Header {
	payload := a.cfg.MmapThreshold - block.Stride
	h := a.CreateBlock(payload, a.cfg.MmapThreshold+1) // always routes through the heap path
	a.head = h
	a.tail = h
	return h
}

// Append links a freshly-provisioned heap block as the new tail, wiring it
// onto the previous tail's next pointer. b must be a heap (Alloc) block;
// mapped blocks are never linked into the list.
func (a *Arena) Append(b *block.Header) {
	if a.head == nil {
		a.head = b
		a.tail = b
		return
	}
	a.tail.SetNext(b)
	a.tail = b
}

// RecomputeTail walks from head to find the last block and updates tail.
// Used after coalescing removes blocks from the chain.
func (a *Arena) RecomputeTail() {
	if a.head == nil {
		a.tail = nil
		return
	}
	b := a.head
	for b.Next() != nil {
		b = b.Next()
	}
	a.tail = b
}
