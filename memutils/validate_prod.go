//go:build !debug_mem_utils

package memutils

const (
	// ProvenanceTagging is true when chunk headers should record whether a chunk was freshly carved
	// from the heap extent or reused from a free chunk. It is only enabled by the debug_mem_utils build tag.
	ProvenanceTagging bool = false
)

// DebugFillFreed writes an easy-to-identify marker across a freed payload.
// This method no-ops unless the debug_mem_utils build tag is present.
func DebugFillFreed(payload []byte) {
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_mem_utils build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
}
