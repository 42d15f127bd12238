package arena

import (
	"github.com/brkheap/allocator/internal/allocerr"
	"github.com/brkheap/allocator/internal/block"
)

// Coalesce walks the heap list once, merging every run of adjacent FREE
// blocks into a single FREE block, so that no two adjacent heap blocks are
// ever both left FREE. It recomputes tail afterward. Coalesce is a pure
// interior operation: it never changes an ALLOC block's size or status.
func (a *Arena) Coalesce() {
	b := a.head
	for b != nil {
		for {
			next := b.Next()
			if next == nil || b.Status() != block.Free || next.Status() != block.Free {
				break
			}
			// Absorb next into b: next's own header becomes reclaimed
			// payload, so b grows by next's size plus one header stride.
			b.SetSize(b.Size() + block.Stride + next.Size())
			b.SetNext(next.Next())
			// Continue scanning from the same block so runs of three or
			// more fuse within this single pass.
		}
		b = b.Next()
	}
	a.RecomputeTail()
}

// BestFit scans the (already-coalesced) list once and returns the FREE
// block whose size is the smallest value >= n, ties broken by earlier
// list position. If the winner has room for a
// non-degenerate trailing header plus at least one aligned payload byte
// beyond the request, it is split before being returned. The returned
// block's status is left FREE; callers flip it to ALLOC.
func (a *Arena) BestFit(n int) (*block.Header, bool) {
	need := block.Align8(n)
	var best *block.Header
	for b := a.head; b != nil; b = b.Next() {
		if b.Status() != block.Free || b.Size() < need {
			continue
		}
		if best == nil || b.Size() < best.Size() {
			best = b
		}
	}
	if best == nil {
		return nil, false
	}
	if best.Size() > block.SlotSize(n) {
		a.Split(best, n)
	}
	return best, true
}

// Split carves block b down to exactly align8(n) payload bytes and links
// the remainder as a new FREE successor. Callers must
// only split a block with size >= SlotSize(n) (checked by BestFit).
func (a *Arena) Split(b *block.Header, n int) {
	slot := block.SlotSize(n)
	successorAddr := b.Addr() + uintptr(slot)
	successor := block.At(successorAddr)
	successor.SetSize(block.Align8(b.Size() - slot))
	successor.SetStatus(block.Free)
	successor.SetNext(b.Next())

	b.SetSize(block.Align8(n))
	b.SetNext(successor)

	if b == a.tail {
		a.tail = successor
	}
}

// ExpandTail grows the tail block's program-break footprint in place to
// align8(n) payload bytes and marks it ALLOC, the only operation that
// increases a heap block's size without relocation.
// Callers (package alloc's allocate and resize) are responsible for
// checking the threshold and FREE/undersized guards before calling this;
// ExpandTail itself only performs the unconditional grow-and-flip.
func (a *Arena) ExpandTail(n int) {
	size := block.Align8(n)
	delta := size - a.tail.Size()
	grown := block.Align8(delta)
	if _, err := a.ensureBrk().Extend(grown); err != nil {
		allocerr.Fatal(allocerr.Wrap("heap_extend", allocerr.KindExhausted, grown, err))
	}
	a.tail.SetSize(size)
	a.tail.SetStatus(block.Alloc)
}

// CoalesceForward repeatedly absorbs the block immediately following b
// into b, stopping when any of: b already has a
// total footprint >= newTotal; the next block is absent or non-free; or
// absorbing the next block would grow b's footprint to meet or exceed
// mmapThreshold. Used only by package alloc's resize path, where b is the
// caller's own block (which may be the arena's head).
func (a *Arena) CoalesceForward(b *block.Header, newTotal, mmapThreshold int) {
	for {
		if b.Size()+block.Stride >= newTotal {
			return
		}
		next := b.Next()
		if next == nil || next.Status() != block.Free {
			return
		}
		mergedSize := b.Size() + block.Stride + next.Size()
		if mergedSize+block.Stride >= mmapThreshold {
			return
		}
		b.SetSize(mergedSize)
		b.SetNext(next.Next())
		if next == a.tail {
			a.tail = b
		}
	}
}
