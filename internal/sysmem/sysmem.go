// Package sysmem is the allocator's primitive syscall surface: heap
// extension, anonymous mapping, unmapping, and page size. These are treated
// as external collaborators elsewhere in the allocator; this package is
// their only implementation.
package sysmem

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Sentinel is the zero-value pointer returned by the primitive functions on
// failure, always together with a non-nil error; callers check the error.
const Sentinel uintptr = 0

// Brk emulates a process program break. A real brk(2) call from Go is
// avoided because nothing keeps the Go runtime's own mappings from landing
// next to a moved break, so instead this reserves one large PROT_NONE span
// up front, moves a byte-granular break through it, and grows a committed
// prefix by mprotect-ing more pages PROT_READ|PROT_WRITE as the break
// crosses into them. Its zero value is not usable; construct with NewBrk.
type Brk struct {
	mu        sync.Mutex
	base      uintptr
	span      int
	brk       int
	committed int
	pageSize  int
}

// NewBrk reserves a span-byte PROT_NONE address range to grow the
// emulated break within. span is rounded up to a whole number of pages.
func NewBrk(span int) (*Brk, error) {
	ps := PageSize()
	span = roundUp(span, ps)
	data, err := unix.Mmap(-1, 0, span, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("sysmem: reserve %d bytes: %w", span, err)
	}
	return &Brk{
		base:     uintptr(unsafe.Pointer(&data[0])),
		span:     span,
		pageSize: ps,
	}, nil
}

// Extend moves the break forward by exactly delta bytes and returns the
// address of the old break, the start of the newly-extended region, so
// successive calls hand out adjacent ranges. Pages are committed as the
// break crosses into them. delta must be positive; Extend never shrinks.
func (b *Brk) Extend(delta int) (uintptr, error) {
	if delta <= 0 {
		return Sentinel, fmt.Errorf("sysmem: non-positive extend %d", delta)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	newBrk := b.brk + delta
	if newBrk > b.span {
		return Sentinel, fmt.Errorf("sysmem: heap reservation exhausted (span=%d, want=%d)", b.span, newBrk)
	}

	if newBrk > b.committed {
		newCommitted := roundUp(newBrk, b.pageSize)
		grown := bytesAt(b.base, b.span)[b.committed:newCommitted]
		if err := unix.Mprotect(grown, unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return Sentinel, fmt.Errorf("sysmem: commit %d..%d: %w", b.committed, newCommitted, err)
		}
		b.committed = newCommitted
	}

	old := b.base + uintptr(b.brk)
	b.brk = newBrk
	return old, nil
}

// Close releases the reservation. Heap memory is never returned to the OS
// during normal operation; this exists for test cleanup.
func (b *Brk) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.base == 0 {
		return nil
	}
	err := unix.Munmap(bytesAt(b.base, b.span))
	b.base = 0
	return err
}

// MmapAnon requests an anonymous, private, read/write mapping of n bytes.
// n is rounded up to a whole number of pages by the kernel; callers that
// need the exact requested length should track it themselves (internal/block
// does, via the header's size field).
func MmapAnon(n int) (uintptr, error) {
	if n <= 0 {
		return Sentinel, fmt.Errorf("sysmem: non-positive mmap length %d", n)
	}
	data, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return Sentinel, fmt.Errorf("sysmem: mmap %d bytes: %w", n, err)
	}
	return uintptr(unsafe.Pointer(&data[0])), nil
}

// Munmap releases a mapping previously returned by MmapAnon.
func Munmap(ptr uintptr, n int) error {
	if ptr == Sentinel || n <= 0 {
		return nil
	}
	return unix.Munmap(bytesAt(ptr, n))
}

// PageSize reports the OS page size. It is used as the zero_allocate
// threshold.
func PageSize() int {
	return unix.Getpagesize()
}

func roundUp(n, m int) int {
	if m <= 0 {
		return n
	}
	return (n + m - 1) &^ (m - 1)
}

// bytesAt views the n bytes starting at ptr as a []byte, for handing to
// unix.Mprotect/unix.Munmap which take []byte rather than raw addresses.
func bytesAt(ptr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)
}
