package metadata

import (
	"encoding/binary"
	"math"
)

// Chunk header layout. Every chunk in a heap begins with a header of exactly HeaderSize bytes,
// and the payload handed to callers begins immediately after it.
const (
	HeaderSize = 32

	headerSizeOffset       = 0
	headerPrevOffset       = 8
	headerNextOffset       = 16
	headerStateOffset      = 24
	headerProvenanceOffset = 28
)

// NoChunk is the link value used by the first chunk's prev and the last chunk's next
const NoChunk int = -1

// ChunkState is the always-present allocation state stored in every chunk header. The zero value
// is deliberately invalid so that zeroed or overwritten headers are recognized as corrupt.
type ChunkState uint32

const (
	StateInvalid ChunkState = iota
	StateAllocated
	StateFree
)

var chunkStateMapping = map[ChunkState]string{
	StateInvalid:   "Invalid",
	StateAllocated: "Allocated",
	StateFree:      "Free",
}

func (s ChunkState) String() string {
	str, ok := chunkStateMapping[s]
	if !ok {
		return "Corrupt"
	}
	return str
}

// Provenance is a diagnostic tag recording how a chunk came to be handed out. It is only written
// when memutils.ProvenanceTagging is enabled and is never used to make allocation decisions.
type Provenance uint32

const (
	ProvenanceNone Provenance = iota
	// ProvenanceFresh indicates that the chunk was carved from newly extended heap space
	ProvenanceFresh
	// ProvenanceReused indicates that the chunk was handed out from an existing free chunk
	ProvenanceReused
	// ProvenanceSplit indicates that the chunk is the free remainder of a split
	ProvenanceSplit
)

var provenanceMapping = map[Provenance]string{
	ProvenanceNone:   "None",
	ProvenanceFresh:  "Fresh",
	ProvenanceReused: "Reused",
	ProvenanceSplit:  "Split",
}

func (p Provenance) String() string {
	return provenanceMapping[p]
}

// Header is a decoded chunk header
type Header struct {
	Size       int
	Prev       int
	Next       int
	State      ChunkState
	Provenance Provenance
}

func readHeader(mem []byte, offset int) Header {
	h := mem[offset : offset+HeaderSize]
	return Header{
		Size:       int(binary.LittleEndian.Uint64(h[headerSizeOffset:])),
		Prev:       int(int64(binary.LittleEndian.Uint64(h[headerPrevOffset:]))),
		Next:       int(int64(binary.LittleEndian.Uint64(h[headerNextOffset:]))),
		State:      ChunkState(binary.LittleEndian.Uint32(h[headerStateOffset:])),
		Provenance: Provenance(binary.LittleEndian.Uint32(h[headerProvenanceOffset:])),
	}
}

func writeHeader(mem []byte, offset int, header Header) {
	h := mem[offset : offset+HeaderSize]
	binary.LittleEndian.PutUint64(h[headerSizeOffset:], uint64(header.Size))
	binary.LittleEndian.PutUint64(h[headerPrevOffset:], uint64(int64(header.Prev)))
	binary.LittleEndian.PutUint64(h[headerNextOffset:], uint64(int64(header.Next)))
	binary.LittleEndian.PutUint32(h[headerStateOffset:], uint32(header.State))
	binary.LittleEndian.PutUint32(h[headerProvenanceOffset:], uint32(header.Provenance))
}

func putSize(mem []byte, offset, size int) {
	binary.LittleEndian.PutUint64(mem[offset+headerSizeOffset:], uint64(size))
}

func putPrev(mem []byte, offset, prev int) {
	binary.LittleEndian.PutUint64(mem[offset+headerPrevOffset:], uint64(int64(prev)))
}

func putNext(mem []byte, offset, next int) {
	binary.LittleEndian.PutUint64(mem[offset+headerNextOffset:], uint64(int64(next)))
}

func putState(mem []byte, offset int, state ChunkState, provenance Provenance) {
	binary.LittleEndian.PutUint32(mem[offset+headerStateOffset:], uint32(state))
	binary.LittleEndian.PutUint32(mem[offset+headerProvenanceOffset:], uint32(provenance))
}

// sizeInRange guards against headers whose size field was overwritten with a value that would
// overflow offset arithmetic
func sizeInRange(size int) bool {
	return size > 0 && size <= math.MaxInt-2*HeaderSize
}
