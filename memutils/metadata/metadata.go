package metadata

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/arsenal/heapalloc/memutils"
)

// ChunkDirectory is the address-ordered, doubly-linked list of chunk headers that partitions a heap.
// The list is stored in-band: every link is a header offset written into the heap memory itself, and
// the directory only keeps the list ends and a few counters.
//
// The directory is the sole owner of chunk lifetime. Chunks are created by Append (fresh heap space)
// and InsertAfter (split remainders), and destroyed only by Remove/AbsorbNext when a neighbor absorbs
// them. The directory is not synchronized; consumers must guard it together with the heap break.
type ChunkDirectory struct {
	mem       []byte
	alignment uint

	head       int
	tail       int
	chunkCount int
	freeCount  int
	freeBytes  int
}

var _ memutils.Validatable = &ChunkDirectory{}

// NewChunkDirectory creates an empty directory. alignment is the granularity every chunk size must
// be a multiple of, and must itself be a power of two that divides HeaderSize.
func NewChunkDirectory(alignment uint) *ChunkDirectory {
	memutils.DebugCheckPow2(alignment, "alignment")

	return &ChunkDirectory{
		alignment: alignment,
		head:      NoChunk,
		tail:      NoChunk,
	}
}

// SetMemory informs the directory of the current heap memory, [0, break). It must be called after
// every heap extension and before the new space is appended. The heap never shrinks, so mem must be
// at least as long as the previous memory.
func (d *ChunkDirectory) SetMemory(mem []byte) {
	if len(mem) < len(d.mem) {
		panic(fmt.Sprintf("heap memory shrank from %d to %d bytes", len(d.mem), len(mem)))
	}
	d.mem = mem
}

// Memory returns the heap memory the directory is currently partitioning
func (d *ChunkDirectory) Memory() []byte { return d.mem }

// Extent returns the number of heap bytes covered by chunks (headers included)
func (d *ChunkDirectory) Extent() int { return len(d.mem) }

func (d *ChunkDirectory) Alignment() uint { return d.alignment }

func (d *ChunkDirectory) IsEmpty() bool { return d.chunkCount == 0 }

// Head returns the header offset of the lowest-addressed chunk, or NoChunk
func (d *ChunkDirectory) Head() int { return d.head }

// Tail returns the header offset of the highest-addressed chunk, or NoChunk
func (d *ChunkDirectory) Tail() int { return d.tail }

func (d *ChunkDirectory) ChunkCount() int { return d.chunkCount }

func (d *ChunkDirectory) FreeChunkCount() int { return d.freeCount }

func (d *ChunkDirectory) AllocationCount() int { return d.chunkCount - d.freeCount }

// SumFreeSize returns the total payload bytes held by free chunks
func (d *ChunkDirectory) SumFreeSize() int { return d.freeBytes }

// Header decodes the header at offset. The offset must be the start of a live chunk.
func (d *ChunkDirectory) Header(offset int) Header {
	return readHeader(d.mem, offset)
}

// CheckedHeader decodes the header at offset after verifying that a header could exist there. It is
// used to diagnose pointers received from outside the allocator before they are trusted.
func (d *ChunkDirectory) CheckedHeader(offset int) (Header, error) {
	if offset < 0 || offset > len(d.mem)-HeaderSize {
		return Header{}, errors.Errorf("header offset %d is outside of the heap extent [0, %d)", offset, len(d.mem))
	}
	if offset%int(d.alignment) != 0 {
		return Header{}, errors.Errorf("header offset %d is not aligned to %d", offset, d.alignment)
	}

	header := readHeader(d.mem, offset)
	if header.State != StateAllocated && header.State != StateFree {
		return header, errors.Errorf("chunk at offset %d has corrupt state %d", offset, uint32(header.State))
	}
	if !sizeInRange(header.Size) || offset+HeaderSize+header.Size > len(d.mem) {
		return header, errors.Errorf("chunk at offset %d has corrupt size %d", offset, header.Size)
	}

	return header, nil
}

// Payload returns the payload region of the chunk at offset, capped at its usable size
func (d *ChunkDirectory) Payload(offset int) []byte {
	size := readHeader(d.mem, offset).Size
	start := offset + HeaderSize
	return d.mem[start : start+size : start+size]
}

// FindFirstFit scans the directory from the head in address order and returns the first free chunk
// whose size is at least minSize. The scan is linear in the number of chunks, which dominates
// allocation cost once the heap is fragmented.
func (d *ChunkDirectory) FindFirstFit(minSize int) (int, bool) {
	for offset := d.head; offset != NoChunk; {
		header := readHeader(d.mem, offset)
		if header.State == StateFree && header.Size >= minSize {
			return offset, true
		}
		offset = header.Next
	}

	return NoChunk, false
}

// Append installs a freshly extended, allocated chunk at the tail of the directory.
//
// Before: tail.next == NoChunk, and [offset, offset+HeaderSize+size) is the newly extended space at
// the end of the memory. After: tail.next == offset, chunk.prev == old tail, tail == offset.
func (d *ChunkDirectory) Append(offset, size int, provenance Provenance) {
	expected := 0
	if d.tail != NoChunk {
		expected = Chunk{Offset: d.tail, Size: readHeader(d.mem, d.tail).Size}.End()
	}
	if offset != expected {
		panic(fmt.Sprintf("appended chunk at offset %d does not start at the end of the directory (%d)", offset, expected))
	}
	if offset+HeaderSize+size != len(d.mem) {
		panic(fmt.Sprintf("appended chunk at offset %d with size %d does not end at the heap extent %d", offset, size, len(d.mem)))
	}

	writeHeader(d.mem, offset, Header{
		Size:       size,
		Prev:       d.tail,
		Next:       NoChunk,
		State:      StateAllocated,
		Provenance: debugProvenance(provenance),
	})

	if d.tail != NoChunk {
		putNext(d.mem, d.tail, offset)
	} else {
		d.head = offset
	}
	d.tail = offset
	d.chunkCount++
}

// InsertAfter writes a new free chunk header at newOffset and splices it into the directory
// immediately after the chunk at offset. The chunk at offset must already have been shrunk so
// that it ends exactly at newOffset.
//
// Before: offset.next == n. After: offset.next == newOffset, newOffset.prev == offset,
// newOffset.next == n, and n.prev == newOffset (or tail == newOffset when n is NoChunk).
func (d *ChunkDirectory) InsertAfter(offset, newOffset, size int) {
	header := readHeader(d.mem, offset)
	if (Chunk{Offset: offset, Size: header.Size}).End() != newOffset {
		panic(fmt.Sprintf("chunk at offset %d does not end at the inserted chunk's offset %d", offset, newOffset))
	}

	writeHeader(d.mem, newOffset, Header{
		Size:       size,
		Prev:       offset,
		Next:       header.Next,
		State:      StateFree,
		Provenance: debugProvenance(ProvenanceSplit),
	})

	if header.Next != NoChunk {
		putPrev(d.mem, header.Next, newOffset)
	} else {
		d.tail = newOffset
	}
	putNext(d.mem, offset, newOffset)

	d.chunkCount++
	d.freeCount++
	d.freeBytes += size
}

// Remove excises a free chunk whose bytes have been absorbed by a neighbor. Its header state is
// cleared so that any stale pointer into it is recognized as corrupt.
//
// Before: p.next == offset, offset.next == n. After: p.next == n, n.prev == p, with head and tail
// updated when offset was at either end.
func (d *ChunkDirectory) Remove(offset int) {
	header := readHeader(d.mem, offset)
	if header.State != StateFree {
		panic(fmt.Sprintf("cannot remove chunk at offset %d: it is not free", offset))
	}

	if header.Prev != NoChunk {
		putNext(d.mem, header.Prev, header.Next)
	} else {
		d.head = header.Next
	}

	if header.Next != NoChunk {
		putPrev(d.mem, header.Next, header.Prev)
	} else {
		d.tail = header.Prev
	}

	putState(d.mem, offset, StateInvalid, ProvenanceNone)

	d.chunkCount--
	d.freeCount--
	d.freeBytes -= header.Size
}

// AbsorbNext merges the free chunk following offset into it: the chunk's size grows by the
// neighbor's header and payload, and the neighbor is removed from the directory.
func (d *ChunkDirectory) AbsorbNext(offset int) {
	header := readHeader(d.mem, offset)
	if header.Next == NoChunk {
		panic(fmt.Sprintf("chunk at offset %d has no next chunk to absorb", offset))
	}

	next := readHeader(d.mem, header.Next)
	if next.State != StateFree {
		panic(fmt.Sprintf("chunk at offset %d cannot absorb chunk at offset %d: it is not free", offset, header.Next))
	}
	if (Chunk{Offset: offset, Size: header.Size}).End() != header.Next {
		panic(fmt.Sprintf("chunk at offset %d is not physically adjacent to chunk at offset %d", offset, header.Next))
	}

	d.Remove(header.Next)
	d.SetSize(offset, header.Size+HeaderSize+next.Size)
}

// SetSize rewrites the payload size of the chunk at offset
func (d *ChunkDirectory) SetSize(offset, size int) {
	header := readHeader(d.mem, offset)
	if header.State == StateFree {
		d.freeBytes += size - header.Size
	}

	putSize(d.mem, offset, size)
}

// MarkFree flips an allocated chunk to free
func (d *ChunkDirectory) MarkFree(offset int) {
	header := readHeader(d.mem, offset)
	if header.State != StateAllocated {
		panic(fmt.Sprintf("chunk at offset %d is %s, expected it to be allocated", offset, header.State))
	}

	putState(d.mem, offset, StateFree, ProvenanceNone)
	d.freeCount++
	d.freeBytes += header.Size
}

// MarkAllocated flips a free chunk to allocated
func (d *ChunkDirectory) MarkAllocated(offset int, provenance Provenance) {
	header := readHeader(d.mem, offset)
	if header.State != StateFree {
		panic(fmt.Sprintf("chunk at offset %d is %s, expected it to be free", offset, header.State))
	}

	putState(d.mem, offset, StateAllocated, debugProvenance(provenance))
	d.freeCount--
	d.freeBytes -= header.Size
}

func debugProvenance(provenance Provenance) Provenance {
	if !memutils.ProvenanceTagging {
		return ProvenanceNone
	}
	return provenance
}

// Validate performs internal consistency checks on the directory: the chunks must be linked in both
// directions, be contiguous, partition the memory exactly, have valid states and aligned sizes, never
// leave two free chunks adjacent, and agree with the directory's counters. It walks every chunk, so
// it should only be used for diagnostics.
func (d *ChunkDirectory) Validate() error {
	if d.chunkCount == 0 {
		if d.head != NoChunk || d.tail != NoChunk {
			return errors.New("directory has no chunks but has a head or tail")
		}
		if len(d.mem) != 0 {
			return errors.Errorf("directory has no chunks but the heap extent is %d bytes", len(d.mem))
		}
		return nil
	}

	if d.head != 0 {
		return errors.Errorf("the first chunk should have an offset of 0, but instead it has an offset of %d", d.head)
	}

	var count, freeCount, freeBytes int
	expectedOffset := 0
	prev := NoChunk
	prevFree := false

	for offset := d.head; offset != NoChunk; {
		if count >= d.chunkCount {
			return errors.Errorf("walked more chunks than the %d the directory contains", d.chunkCount)
		}
		if offset != expectedOffset {
			return errors.Errorf("chunk at offset %d does not start where the previous chunk ends (%d)", offset, expectedOffset)
		}
		if offset+HeaderSize > len(d.mem) {
			return errors.Errorf("chunk at offset %d has a header that runs past the heap extent %d", offset, len(d.mem))
		}

		header := readHeader(d.mem, offset)
		if header.Prev != prev {
			return errors.Errorf("chunk at offset %d lists %d as its previous chunk, but the reverse reference is %d", offset, header.Prev, prev)
		}
		if !sizeInRange(header.Size) || header.Size%int(d.alignment) != 0 {
			return errors.Errorf("chunk at offset %d has invalid size %d", offset, header.Size)
		}

		switch header.State {
		case StateFree:
			if prevFree {
				return errors.Errorf("chunk at offset %d is free and so is the chunk before it", offset)
			}
			freeCount++
			freeBytes += header.Size
		case StateAllocated:
		default:
			return errors.Errorf("chunk at offset %d has corrupt state %d", offset, uint32(header.State))
		}

		count++
		prev = offset
		prevFree = header.State == StateFree
		expectedOffset = offset + HeaderSize + header.Size
		offset = header.Next
	}

	if prev != d.tail {
		return errors.Errorf("the last chunk is at offset %d, but the directory tail is %d", prev, d.tail)
	}

	if expectedOffset != len(d.mem) {
		return errors.Errorf("the heap extent is %d bytes, but the chunks only added up to %d", len(d.mem), expectedOffset)
	}

	if count != d.chunkCount {
		return errors.Errorf("the chunk count of the directory is %d, but %d chunks were linked", d.chunkCount, count)
	}

	if freeCount != d.freeCount {
		return errors.Errorf("the free chunk count of the directory is %d, but there were %d free chunks", d.freeCount, freeCount)
	}

	if freeBytes != d.freeBytes {
		return errors.Errorf("the free size of the directory is %d, but the free chunks only added up to %d", d.freeBytes, freeBytes)
	}

	return nil
}

// VisitAllChunks calls the provided callback once for each chunk in address order. Iteration stops at
// the first error, which is returned.
func (d *ChunkDirectory) VisitAllChunks(handleChunk func(chunk Chunk) error) error {
	for offset := d.head; offset != NoChunk; {
		header := readHeader(d.mem, offset)
		err := handleChunk(Chunk{
			Offset:     offset,
			Size:       header.Size,
			State:      header.State,
			Provenance: header.Provenance,
		})
		if err != nil {
			return err
		}

		offset = header.Next
	}

	return nil
}

// AddStatistics sums this directory's statistics into the provided memutils.Statistics object
func (d *ChunkDirectory) AddStatistics(stats *memutils.Statistics) {
	stats.ChunkCount += d.chunkCount
	stats.AllocationCount += d.AllocationCount()
	stats.ChunkBytes += len(d.mem)
	stats.AllocationBytes += len(d.mem) - d.chunkCount*HeaderSize - d.freeBytes
}

// AddDetailedStatistics sums this directory's statistics into the provided memutils.DetailedStatistics
// object, walking every chunk to collect size ranges
func (d *ChunkDirectory) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.ChunkCount += d.chunkCount
	stats.ChunkBytes += len(d.mem)

	_ = d.VisitAllChunks(func(chunk Chunk) error {
		if chunk.IsFree() {
			stats.AddUnusedRange(chunk.Size)
		} else {
			stats.AddAllocation(chunk.Size)
		}
		return nil
	})
}

// BlockJsonData populates a json object with summary information about this directory
func (d *ChunkDirectory) BlockJsonData(json *jwriter.ObjectState) {
	json.Name("TotalBytes").Int(len(d.mem))
	json.Name("HeaderBytes").Int(d.chunkCount * HeaderSize)
	json.Name("UnusedBytes").Int(d.freeBytes)
	json.Name("Allocations").Int(d.AllocationCount())
	json.Name("UnusedRanges").Int(d.freeCount)
}
