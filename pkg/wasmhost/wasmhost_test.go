package wasmhost_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	"github.com/brkheap/allocator/alloc"
	"github.com/brkheap/allocator/pkg/wasmhost"
)

func TestHostModuleInstantiates(t *testing.T) {
	h := wasmhost.New(alloc.New())
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	require.NoError(t, h.Instantiate(ctx, r))
}

func TestNewDefaultsToFreshAllocator(t *testing.T) {
	h := wasmhost.New(nil)
	require.NotNil(t, h)
}
