// Package wasmhost exposes the allocator's four operations as wazero host
// functions, so a WASM guest module can drive a native, process-wide heap
// instead of its own linear-memory bump allocator: one
// wazero.HostModuleBuilder, one exported function per allocator op, each
// wired via NewFunctionBuilder().WithGoFunction(...).Export(name).
//
// A guest's own linear memory and the host's native heap are different
// address spaces, so handles, not raw pointers, cross the boundary.
package wasmhost

import (
	"context"
	"sync"
	"unsafe"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/brkheap/allocator/alloc"
)

// ModuleName is the versioned import namespace guest modules bind these
// functions under.
const ModuleName = "alloc_host_v1"

// Host bridges one alloc.Allocator to a table of opaque handles a guest
// module can pass across the WASM boundary in place of native pointers.
type Host struct {
	al *alloc.Allocator

	mu     sync.Mutex
	ptrs   map[uint32]uintptr
	nextID uint32
}

// New builds a Host over al. A nil al uses a freshly constructed
// allocator via alloc.New(), one host struct per wired-up Runtime.
func New(al *alloc.Allocator) *Host {
	if al == nil {
		al = alloc.New()
	}
	return &Host{
		al:   al,
		ptrs: make(map[uint32]uintptr),
	}
}

// Instantiate registers the host module against r.
func (h *Host) Instantiate(ctx context.Context, r wazero.Runtime) error {
	builder := r.NewHostModuleBuilder(ModuleName)

	builder.NewFunctionBuilder().
		WithGoFunction(api.GoFunc(h.hostAllocate), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("host_allocate")

	builder.NewFunctionBuilder().
		WithGoFunction(api.GoFunc(h.hostZeroAllocate), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("host_zalloc")

	builder.NewFunctionBuilder().
		WithGoFunction(api.GoFunc(h.hostResize), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("host_resize")

	builder.NewFunctionBuilder().
		WithGoFunction(api.GoFunc(h.hostRelease), []api.ValueType{api.ValueTypeI32}, []api.ValueType{}).
		Export("host_release")

	_, err := builder.Instantiate(ctx)
	return err
}

// hostAllocate backs host_allocate(size) -> handle. A zero return means the
// request was rejected (size <= 0); the guest never sees a native pointer.
func (h *Host) hostAllocate(ctx context.Context, stack []uint64) {
	n := int(int32(uint32(stack[0])))
	p := h.al.Allocate(n)
	stack[0] = uint64(h.register(p))
}

// hostZeroAllocate backs host_zalloc(k, n) -> handle.
func (h *Host) hostZeroAllocate(ctx context.Context, stack []uint64) {
	k := int(int32(uint32(stack[0])))
	n := int(int32(uint32(stack[1])))
	p := h.al.ZeroAllocate(k, n)
	stack[0] = uint64(h.register(p))
}

// hostResize backs host_resize(handle, n) -> handle. The result is always a
// freshly registered handle (zero when Resize returns nil), whether or not
// the allocator relocated the block; the input handle is invalidated.
func (h *Host) hostResize(ctx context.Context, stack []uint64) {
	handle := uint32(stack[0])
	n := int(int32(uint32(stack[1])))

	p := h.release(handle)
	q := h.al.Resize(p, n)
	stack[0] = uint64(h.register(q))
}

// hostRelease backs host_release(handle).
func (h *Host) hostRelease(ctx context.Context, stack []uint64) {
	handle := uint32(stack[0])
	p := h.release(handle)
	h.al.Release(p)
}

func (h *Host) register(p unsafe.Pointer) uint32 {
	if p == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.ptrs[id] = uintptr(p)
	return id
}

// release looks a handle up and forgets it, returning the pointer it named
// (or nil for the reserved zero handle).
func (h *Host) release(handle uint32) unsafe.Pointer {
	if handle == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	addr, ok := h.ptrs[handle]
	if !ok {
		return nil
	}
	delete(h.ptrs, handle)
	return unsafe.Pointer(addr)
}
