// Package heap implements a first-fit heap allocator. A Heap partitions the contiguous space handed
// out by a brk.Extender into chunks, each preceded by an in-band header, and satisfies requests from
// the lowest-addressed free chunk that is large enough. Free chunks are split when the remainder is
// worth keeping and merged with free neighbors as soon as they are released, so no two free chunks
// are ever adjacent.
package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/arsenal/heapalloc/brk"
	"github.com/vkngwrapper/arsenal/heapalloc/internal/utils"
	"github.com/vkngwrapper/arsenal/heapalloc/memutils"
	"github.com/vkngwrapper/arsenal/heapalloc/memutils/metadata"
	"golang.org/x/exp/slog"
)

// Pointer identifies an allocation made by a Heap. It records the offset of the first payload byte
// from the base of the heap. The zero value is Nil.
type Pointer struct {
	offset int
}

// Nil is the pointer that refers to no allocation
var Nil Pointer

func (p Pointer) IsNil() bool {
	return p.offset == 0
}

// Offset returns the offset of the allocation's first byte from the base of the heap
func (p Pointer) Offset() int {
	return p.offset
}

func (p Pointer) chunk() int {
	return p.offset - metadata.HeaderSize
}

func pointerTo(chunk int) Pointer {
	return Pointer{offset: chunk + metadata.HeaderSize}
}

// Heap is a first-fit allocator over the space provided by a brk.Extender. The chunk directory, the
// set of live allocations, and the break are guarded by a single mutex unless the heap was created
// with CreateExternallySynchronized.
type Heap struct {
	logger   *slog.Logger
	extender brk.Extender

	mutex           utils.OptionalMutex
	createFlags     CreateFlags
	alignment       uint
	minSplitPayload int
	callbacks       *extendCallbacks

	directory *metadata.ChunkDirectory
	brk       int
	// live maps every pointer handed out and not yet released to the size the caller asked for
	live *swiss.Map[Pointer, int]
}

var _ memutils.Validatable = &Heap{}

// Alignment returns the alignment of every chunk and payload relative to the base of the heap
func (h *Heap) Alignment() uint {
	return h.alignment
}

// Break returns the heap's current break: the number of bytes it has obtained from its extender
func (h *Heap) Break() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.brk
}

// Bytes returns the payload of an allocation. The slice's length is the size that was requested
// and its capacity is the allocation's usable size. It remains valid until the allocation is
// released or reallocated.
func (h *Heap) Bytes(p Pointer) []byte {
	if p.IsNil() {
		return nil
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	_, header := h.ownedChunk(p, "Bytes")
	requested, _ := h.live.Get(p)

	mem := h.directory.Memory()
	return mem[p.offset : p.offset+requested : p.offset+header.Size]
}

// UsableSize returns the number of payload bytes available to an allocation, which is at least the
// size that was requested
func (h *Heap) UsableSize(p Pointer) int {
	if p.IsNil() {
		return 0
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	_, header := h.ownedChunk(p, "UsableSize")
	return header.Size
}

// ownedChunk recovers the chunk behind a pointer received from a caller. Pointers that this heap
// never returned, that were already released, or whose header has been overwritten are fatal.
func (h *Heap) ownedChunk(p Pointer, operation string) (int, metadata.Header) {
	offset := p.chunk()

	if _, live := h.live.Get(p); !live {
		header, err := h.directory.CheckedHeader(offset)
		if err == nil && header.State == metadata.StateFree {
			panic(errors.AssertionFailedf("Heap::%s: pointer %d has already been released", operation, p.offset))
		}
		panic(errors.AssertionFailedf("Heap::%s: pointer %d was not returned by this heap", operation, p.offset))
	}

	header, err := h.directory.CheckedHeader(offset)
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "Heap::%s: header of pointer %d is corrupt", operation, p.offset))
	}
	if header.State != metadata.StateAllocated {
		panic(errors.AssertionFailedf("Heap::%s: pointer %d is live, but its chunk is %s", operation, p.offset, header.State))
	}

	return offset, header
}

// Validate performs internal consistency checks on the heap: the chunk directory must partition
// [0, break) and every live allocation must be an allocated chunk large enough for its request.
// It walks every chunk, so it should only be used for diagnostics.
func (h *Heap) Validate() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.validate()
}

func (h *Heap) validate() error {
	err := h.directory.Validate()
	if err != nil {
		return err
	}

	if h.directory.Extent() != h.brk {
		return errors.Newf("the heap break is %d, but the chunk directory covers %d bytes", h.brk, h.directory.Extent())
	}

	if h.live.Count() != h.directory.AllocationCount() {
		return errors.Newf("the heap has %d live allocations, but %d chunks are allocated", h.live.Count(), h.directory.AllocationCount())
	}

	h.live.Iter(func(p Pointer, requested int) (stop bool) {
		header, headerErr := h.directory.CheckedHeader(p.chunk())
		if headerErr != nil {
			err = errors.Wrapf(headerErr, "live allocation %d", p.offset)
			return true
		}
		if header.State != metadata.StateAllocated {
			err = errors.Newf("live allocation %d refers to a chunk that is %s", p.offset, header.State)
			return true
		}
		if requested <= 0 || requested > header.Size {
			err = errors.Newf("live allocation %d requested %d bytes, but its chunk holds %d", p.offset, requested, header.Size)
			return true
		}
		return false
	})

	return err
}
