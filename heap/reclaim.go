package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/heapalloc/memutils"
	"github.com/vkngwrapper/arsenal/heapalloc/memutils/metadata"
	"golang.org/x/exp/slog"
)

// Deallocate releases an allocation so that its space can be reused. The freed chunk is merged with
// any free neighbor. Deallocating Nil does nothing; deallocating a pointer this heap did not return,
// or one that was already released, panics.
func (h *Heap) Deallocate(p Pointer) {
	h.logger.Debug("Heap::Deallocate", slog.Int("Pointer", p.offset))

	if p.IsNil() {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	offset, _ := h.ownedChunk(p, "Deallocate")
	h.release(p, offset)
}

// Reallocate resizes an allocation to size bytes and returns its new pointer, which may be p itself.
// The contents are preserved up to the smaller of the old and new sizes.
//
// Reallocating Nil is equivalent to Allocate. A size of zero or less returns memutils.ErrInvalidSize
// and leaves p untouched. If the allocation must move and the heap cannot be extended, the error is
// marked with memutils.ErrOutOfMemory and p remains valid.
func (h *Heap) Reallocate(p Pointer, size int) (Pointer, error) {
	h.logger.Debug("Heap::Reallocate", slog.Int("Pointer", p.offset), slog.Int("Size", size))

	if p.IsNil() {
		return h.Allocate(size)
	}

	aligned, err := h.alignRequest(size)
	if err != nil {
		return Nil, err
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	offset, header := h.ownedChunk(p, "Reallocate")

	if header.Size >= aligned {
		h.shrink(offset, aligned)
		h.live.Put(p, size)

		memutils.DebugValidate(h.directory)
		return p, nil
	}

	if h.growInPlace(offset, header, aligned) {
		h.live.Put(p, size)

		memutils.DebugValidate(h.directory)
		return p, nil
	}

	moved, err := h.allocate(size, aligned)
	if err != nil {
		return Nil, errors.Wrapf(err, "could not move allocation %d to a chunk of %d bytes", p.offset, aligned)
	}

	copy(h.directory.Payload(moved.chunk()), h.directory.Payload(offset))
	h.release(p, offset)

	h.logger.Debug("  Heap::Reallocate moved", slog.Int("From", p.offset), slog.Int("To", moved.offset))
	return moved, nil
}

func (h *Heap) release(p Pointer, offset int) {
	h.live.Delete(p)
	h.directory.MarkFree(offset)
	memutils.DebugFillFreed(h.directory.Payload(offset))
	h.coalesce(offset)

	memutils.DebugValidate(h.directory)
}

// coalesce merges the free chunk at offset with whichever of its neighbors are free, and returns
// the offset of the merged chunk
func (h *Heap) coalesce(offset int) int {
	header := h.directory.Header(offset)
	prevFree := header.Prev != metadata.NoChunk && h.directory.Header(header.Prev).State == metadata.StateFree
	nextFree := header.Next != metadata.NoChunk && h.directory.Header(header.Next).State == metadata.StateFree

	switch {
	case prevFree && nextFree:
		h.directory.AbsorbNext(header.Prev)
		h.directory.AbsorbNext(header.Prev)
		return header.Prev
	case prevFree:
		h.directory.AbsorbNext(header.Prev)
		return header.Prev
	case nextFree:
		h.directory.AbsorbNext(offset)
		return offset
	}

	return offset
}

// shrink trims an allocated chunk to size, returning the excess to the heap when it is large enough
// to be split off
func (h *Heap) shrink(offset, size int) {
	remainder, split := h.split(offset, size)
	if split {
		h.coalesce(remainder)
	}
}

// growInPlace extends an allocated chunk into its successor when the successor is free and the two
// together can hold size bytes
func (h *Heap) growInPlace(offset int, header metadata.Header, size int) bool {
	if header.Next == metadata.NoChunk {
		return false
	}

	next := h.directory.Header(header.Next)
	if next.State != metadata.StateFree || header.Size+metadata.HeaderSize+next.Size < size {
		return false
	}

	h.directory.AbsorbNext(offset)
	h.shrink(offset, size)
	return true
}
