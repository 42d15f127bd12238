package alloc

import (
	"unsafe"

	"github.com/brkheap/allocator/internal/block"
)

// Resize is the receiver form of the package-level Resize, implementing
// the combined grow/coalesce/split/relocate policy.
func (al *Allocator) Resize(p unsafe.Pointer, n int) unsafe.Pointer {
	if p == nil {
		return al.Allocate(n)
	}
	if n == 0 {
		al.Release(p)
		return nil
	}

	b := block.FromPayload(p)
	if b.Status() == block.Free {
		return nil // resizing an already-released block is an error, surfaced as nil
	}

	a := al.arena
	threshold := al.cfg.MmapThreshold
	newTotal := block.SlotSize(n)
	oldTotal := b.Size() + block.Stride

	// 1. Grow-in-place at tail.
	if b == a.Tail() && oldTotal < newTotal && block.Align8(n) < threshold-block.Stride {
		a.ExpandTail(n)
		return p
	}

	// 2. Coalesce forward with the immediately-following FREE run.
	if oldTotal < newTotal && newTotal < threshold {
		a.CoalesceForward(b, newTotal, threshold)
		oldTotal = b.Size() + block.Stride
	}

	// 3. Exact fit.
	if oldTotal == newTotal {
		return p
	}

	// 4. Shrink with split.
	if oldTotal > newTotal+block.Stride {
		if b.Status() == block.Mapped {
			newP := al.Allocate(n)
			copyBytes(newP, p, block.Align8(n))
			al.Release(p)
			return newP
		}
		a.Split(b, n)
		return p
	}

	// 5. Shrink without split: surplus wasted internally.
	if oldTotal > newTotal {
		return p
	}

	// 6. Relocate.
	newP := al.Allocate(n)
	copyBytes(newP, p, b.Size())
	if newP != p {
		al.Release(p)
	}
	return newP
}
