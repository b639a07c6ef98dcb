package heap

import (
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/heapalloc/brk"
	"github.com/vkngwrapper/arsenal/heapalloc/brk/mocks"
	"github.com/vkngwrapper/arsenal/heapalloc/memutils"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func readyHeap(t *testing.T, limit int, options CreateOptions) (*brk.Arena, *Heap) {
	if options.Alignment == 0 {
		options.Alignment = 8
	}

	arena, err := brk.NewArena(limit, nil)
	require.NoError(t, err)

	heap, err := New(testLogger(), arena, options)
	require.NoError(t, err)

	return arena, heap
}

func readyMockHeap(t *testing.T) (*mocks.MockExtender, *Heap) {
	ctrl := gomock.NewController(t)

	extender := mocks.NewMockExtender(ctrl)
	extender.EXPECT().Break().Return(0)

	heap, err := New(testLogger(), extender, CreateOptions{Alignment: 8})
	require.NoError(t, err)

	return extender, heap
}

func requireValid(t *testing.T, heap *Heap) {
	t.Helper()
	require.NoError(t, heap.Validate())
}

func fill(data []byte, value byte) {
	for i := range data {
		data[i] = value
	}
}

func requireFilled(t *testing.T, data []byte, value byte) {
	t.Helper()
	for i, b := range data {
		if b != value {
			require.Failf(t, "unexpected payload contents", "byte %d is 0x%02x, expected 0x%02x", i, b, value)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	arena, err := brk.NewArena(1024, nil)
	require.NoError(t, err)

	heap, err := New(testLogger(), arena, CreateOptions{})
	require.NoError(t, err)

	require.Equal(t, DefaultAlignment, heap.Alignment())
	require.Equal(t, DefaultMinSplitPayload, heap.minSplitPayload)
	require.True(t, heap.mutex.UseMutex)
	require.Equal(t, 0, heap.Break())
	requireValid(t, heap)
}

func TestNewExternallySynchronized(t *testing.T) {
	_, heap := readyHeap(t, 1024, CreateOptions{Flags: CreateExternallySynchronized})
	require.False(t, heap.mutex.UseMutex)

	p, err := heap.Allocate(8)
	require.NoError(t, err)
	heap.Deallocate(p)
	requireValid(t, heap)
}

func TestNewInvalidOptions(t *testing.T) {
	arena, err := brk.NewArena(1024, nil)
	require.NoError(t, err)

	_, err = New(testLogger(), arena, CreateOptions{Alignment: 12})
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))

	_, err = New(testLogger(), arena, CreateOptions{Alignment: 64})
	require.Error(t, err)

	_, err = New(testLogger(), arena, CreateOptions{MinSplitPayload: -1})
	require.Error(t, err)

	_, err = New(nil, arena, CreateOptions{})
	require.Error(t, err)

	_, err = New(testLogger(), nil, CreateOptions{})
	require.Error(t, err)

	_, err = arena.Extend(64)
	require.NoError(t, err)

	_, err = New(testLogger(), arena, CreateOptions{})
	require.Error(t, err, "a heap cannot adopt an extender that was already extended")
}

func TestCreateFlagsString(t *testing.T) {
	require.Equal(t, "None", CreateFlags(0).String())
	require.Equal(t, "CreateExternallySynchronized", CreateExternallySynchronized.String())
	require.Equal(t, "CreateExternallySynchronized|Unknown", (CreateExternallySynchronized | 4).String())
}

func TestPointer(t *testing.T) {
	require.True(t, Nil.IsNil())
	require.Equal(t, 0, Nil.Offset())

	_, heap := readyHeap(t, 1024, CreateOptions{})
	p, err := heap.Allocate(1)
	require.NoError(t, err)

	require.False(t, p.IsNil())
	require.Equal(t, 32, p.Offset())
	require.Equal(t, 0, p.chunk())
}

func TestBytes(t *testing.T) {
	_, heap := readyHeap(t, 1024, CreateOptions{})

	p, err := heap.Allocate(10)
	require.NoError(t, err)

	data := heap.Bytes(p)
	require.Len(t, data, 10)
	require.Equal(t, 16, cap(data))
	require.Equal(t, 16, heap.UsableSize(p))

	require.Nil(t, heap.Bytes(Nil))
	require.Equal(t, 0, heap.UsableSize(Nil))
}

func TestBytesUnknownPointerPanics(t *testing.T) {
	_, heap := readyHeap(t, 1024, CreateOptions{})

	_, err := heap.Allocate(64)
	require.NoError(t, err)

	require.Panics(t, func() {
		heap.Bytes(Pointer{offset: 40})
	})
	require.Panics(t, func() {
		heap.UsableSize(Pointer{offset: 4096})
	})
}

func TestValidateDetectsCorruptHeader(t *testing.T) {
	_, heap := readyHeap(t, 1024, CreateOptions{})

	p, err := heap.Allocate(64)
	require.NoError(t, err)
	_, err = heap.Allocate(64)
	require.NoError(t, err)
	requireValid(t, heap)

	// Clobber the size field of the first header
	mem := heap.directory.Memory()
	fill(mem[p.chunk():p.chunk()+8], 0xFF)

	require.Error(t, heap.Validate())
}

func TestValidateDetectsUntrackedAllocation(t *testing.T) {
	_, heap := readyHeap(t, 1024, CreateOptions{})

	p, err := heap.Allocate(64)
	require.NoError(t, err)

	heap.live.Delete(p)
	require.Error(t, heap.Validate())

	heap.live.Put(p, 128)
	require.Error(t, heap.Validate(), "a request larger than the chunk is inconsistent")

	heap.live.Put(p, 64)
	requireValid(t, heap)
}

func TestDestroy(t *testing.T) {
	_, heap := readyHeap(t, 1024, CreateOptions{})

	p, err := heap.Allocate(64)
	require.NoError(t, err)
	heap.Deallocate(p)

	require.NoError(t, heap.Destroy())
}

func TestDestroyReportsUnreleasedAllocations(t *testing.T) {
	_, heap := readyHeap(t, 1024, CreateOptions{})

	_, err := heap.Allocate(64)
	require.NoError(t, err)
	_, err = heap.Allocate(16)
	require.NoError(t, err)

	err = heap.Destroy()
	require.Error(t, err)
	require.Contains(t, err.Error(), "2 allocations were not freed")
	require.Equal(t, 0, heap.live.Count())
}

func TestDestroyClosesExtender(t *testing.T) {
	mapped, err := brk.NewMapped(1<<20, nil)
	if errors.Is(err, brk.ErrUnsupported) {
		t.Skip("mapped extenders are not supported on this platform")
	}
	require.NoError(t, err)

	heap, err := New(testLogger(), mapped, CreateOptions{})
	require.NoError(t, err)

	p, err := heap.Allocate(5000)
	require.NoError(t, err)
	fill(heap.Bytes(p), 0x42)
	heap.Deallocate(p)
	requireValid(t, heap)

	require.NoError(t, heap.Destroy())

	_, err = mapped.Extend(8)
	require.Error(t, err, "the mapping should have been closed")
}
