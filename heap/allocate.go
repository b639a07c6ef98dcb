package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/heapalloc/memutils"
	"github.com/vkngwrapper/arsenal/heapalloc/memutils/metadata"
	"golang.org/x/exp/slog"
)

// Allocate reserves at least size bytes and returns a pointer to them. The payload is aligned to the
// heap's alignment and its contents are unspecified.
//
// A size of zero or less returns memutils.ErrInvalidSize, and a size that overflows once aligned
// returns memutils.ErrOverflow; in both cases the heap is unchanged. If no free chunk fits and the
// extender cannot provide more space, the returned error is marked with memutils.ErrOutOfMemory.
func (h *Heap) Allocate(size int) (Pointer, error) {
	h.logger.Debug("Heap::Allocate", slog.Int("Size", size))

	aligned, err := h.alignRequest(size)
	if err != nil {
		return Nil, err
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.allocate(size, aligned)
}

// ZeroAllocate reserves space for count elements of size bytes each and zeroes it. If count*size
// overflows, memutils.ErrOverflow is returned without touching the heap.
func (h *Heap) ZeroAllocate(count, size int) (Pointer, error) {
	h.logger.Debug("Heap::ZeroAllocate", slog.Int("Count", count), slog.Int("Size", size))

	if count < 0 || size < 0 {
		return Nil, errors.Wrapf(memutils.ErrInvalidSize, "%d elements of %d bytes", count, size)
	}

	total, err := memutils.CheckedMul(count, size)
	if err != nil {
		return Nil, err
	}

	aligned, err := h.alignRequest(total)
	if err != nil {
		return Nil, err
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	p, err := h.allocate(total, aligned)
	if err != nil {
		return Nil, err
	}

	clear(h.directory.Payload(p.chunk()))
	return p, nil
}

func (h *Heap) alignRequest(size int) (int, error) {
	if size <= 0 {
		return 0, errors.Wrapf(memutils.ErrInvalidSize, "requested %d bytes", size)
	}

	return memutils.CheckedAlignUp(size, h.alignment, metadata.HeaderSize)
}

func (h *Heap) allocate(requested, size int) (Pointer, error) {
	offset, err := h.allocateChunk(size)
	if err != nil {
		h.logger.Debug("  Heap::allocate FAILED", slog.Int("Size", size), slog.Any("error", err))
		return Nil, err
	}

	p := pointerTo(offset)
	h.live.Put(p, requested)

	memutils.DebugValidate(h.directory)
	return p, nil
}

func (h *Heap) allocateChunk(size int) (int, error) {
	offset, found := h.directory.FindFirstFit(size)
	if !found {
		return h.extend(size)
	}

	h.split(offset, size)
	h.directory.MarkAllocated(offset, metadata.ProvenanceReused)

	return offset, nil
}

// split shrinks the chunk at offset to size and turns the bytes it gave up into a new free chunk
// immediately after it, if the remainder could hold at least minSplitPayload bytes
func (h *Heap) split(offset, size int) (int, bool) {
	header := h.directory.Header(offset)
	remainder := header.Size - size - metadata.HeaderSize
	if remainder < h.minSplitPayload {
		return metadata.NoChunk, false
	}

	remainderOffset := offset + metadata.HeaderSize + size
	h.directory.SetSize(offset, size)
	h.directory.InsertAfter(offset, remainderOffset, remainder)

	return remainderOffset, true
}

// extend grows the heap by exactly one chunk of the given payload size and appends it, allocated,
// to the directory
func (h *Heap) extend(size int) (int, error) {
	delta := metadata.HeaderSize + size

	prevBreak, err := h.extender.Extend(delta)
	if err != nil {
		return metadata.NoChunk, errors.Mark(errors.Wrapf(err, "could not extend the heap by %d bytes", delta), memutils.ErrOutOfMemory)
	}

	if prevBreak != h.brk {
		panic(errors.AssertionFailedf("the heap break is %d, but the extender moved the break from %d", h.brk, prevBreak))
	}
	if prevBreak%int(h.alignment) != 0 {
		panic(errors.AssertionFailedf("the extender returned break %d, which is not aligned to %d", prevBreak, h.alignment))
	}

	h.brk = prevBreak + delta

	memory := h.extender.Memory()
	if len(memory) < h.brk {
		panic(errors.AssertionFailedf("the heap break is %d, but the extender only provides %d bytes", h.brk, len(memory)))
	}

	h.directory.SetMemory(memory[:h.brk])
	h.directory.Append(prevBreak, size, metadata.ProvenanceFresh)
	h.callbacks.Extend(prevBreak, h.brk)

	h.logger.Debug("  Heap::extend", slog.Int("PrevBreak", prevBreak), slog.Int("Break", h.brk))

	return prevBreak, nil
}
