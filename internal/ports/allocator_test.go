package ports

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"burrow/internal/registry"
)

func snapshotWith(t *testing.T, ports ...int) *registry.Snapshot {
	t.Helper()
	store := registry.NewStore(filepath.Join(t.TempDir(), "registry.yml"))
	for i, port := range ports {
		require.NoError(t, store.Add(registry.Entry{Name: fmt.Sprintf("svc%d", i), Port: port}))
	}
	snap, err := store.Load()
	require.NoError(t, err)
	return snap
}

func TestAllocateWithinRange(t *testing.T) {
	alloc := NewAllocator(8100, 8999)
	snap := snapshotWith(t)

	for i := 0; i < 50; i++ {
		port, err := alloc.Allocate(snap)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, port, 8100)
		assert.LessOrEqual(t, port, 8999)
	}
}

func TestAllocateSkipsHeldPorts(t *testing.T) {
	alloc := NewAllocator(9000, 9002)
	snap := snapshotWith(t, 9000, 9001)

	port, err := alloc.Allocate(snap)
	require.NoError(t, err)
	assert.Equal(t, 9002, port)
}

func TestAllocateIgnoresOutOfRangePorts(t *testing.T) {
	alloc := NewAllocator(8100, 8101)
	snap := snapshotWith(t, 9000, 9001)

	port, err := alloc.Allocate(snap)
	require.NoError(t, err)
	assert.Contains(t, []int{8100, 8101}, port, "explicit ports outside the range must not count against it")
}

func TestAllocateExhaustedRange(t *testing.T) {
	alloc := NewAllocator(9000, 9002)
	snap := snapshotWith(t, 9000, 9001, 9002)

	_, err := alloc.Allocate(snap)
	assert.ErrorIs(t, err, ErrPortSpaceExhausted)
}

func TestAllocateSinglePortRange(t *testing.T) {
	alloc := NewAllocator(9100, 9100)
	snap := snapshotWith(t)

	port, err := alloc.Allocate(snap)
	require.NoError(t, err)
	assert.Equal(t, 9100, port)
}
