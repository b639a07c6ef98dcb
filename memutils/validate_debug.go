//go:build debug_mem_utils

package memutils

import "encoding/binary"

const (
	// ProvenanceTagging is true when chunk headers should record whether a chunk was freshly carved
	// from the heap extent or reused from a free chunk. It is only enabled by the debug_mem_utils build tag.
	ProvenanceTagging bool = true
	// freedMagicValue is a 4-byte pattern written across the payload of freed chunks so that reads
	// through dangling pointers are easy to spot
	freedMagicValue uint32 = 0x7F84E666
)

// DebugFillFreed writes an easy-to-identify marker across a freed payload.
// This method no-ops unless the debug_mem_utils build tag is present.
func DebugFillFreed(payload []byte) {
	for len(payload) >= 4 {
		binary.LittleEndian.PutUint32(payload, freedMagicValue)
		payload = payload[4:]
	}
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_mem_utils build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
	err := CheckPow2[T](value, name)
	if err != nil {
		panic(err)
	}
}
