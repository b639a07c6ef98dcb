package metadata

// Chunk is a read-only view of a single chunk header, passed to ChunkDirectory.VisitAllChunks
type Chunk struct {
	// Offset is the offset of the chunk header from the heap base
	Offset int
	// Size is the usable payload size, which excludes the header
	Size       int
	State      ChunkState
	Provenance Provenance
}

// PayloadOffset is the offset of the first payload byte from the heap base
func (c Chunk) PayloadOffset() int {
	return c.Offset + HeaderSize
}

// End is the offset of the first byte after the chunk's payload
func (c Chunk) End() int {
	return c.Offset + HeaderSize + c.Size
}

func (c Chunk) IsFree() bool {
	return c.State == StateFree
}
