//go:generate mockgen -package mocks -destination mocks/extender.go github.com/vkngwrapper/arsenal/heapalloc/brk Extender

// Package brk provides heap extenders: sources of contiguous address space that grow by moving a
// break, in the manner of sbrk(2). A heap asks its extender for more space whenever no existing free
// chunk can satisfy a request.
package brk

import "github.com/pkg/errors"

var (
	// ErrLimitExceeded is returned by Extend when the requested growth would move the break past the
	// extender's reservation
	ErrLimitExceeded = errors.New("heap break would exceed the reserved address range")
	// ErrInvalidDelta is returned by Extend when it receives a negative delta. Extenders never shrink.
	ErrInvalidDelta = errors.New("heap break can only be extended by a positive number of bytes")
	// ErrUnsupported is returned when an extender is not available on the current platform
	ErrUnsupported = errors.New("heap extender is not supported on this platform")
)

// Extender is the heap's view of the operating system's break-adjustment primitive.
//
// The backing memory never moves: the slice returned by Memory after an extension shares its
// first bytes with every slice returned before it.
type Extender interface {
	// Extend atomically grows the break by delta bytes and returns the previous break. No two calls
	// ever observe the same previous break. On failure the break is unchanged.
	Extend(delta int) (int, error)
	// Break returns the current break, which is also the length of Memory
	Break() int
	// Memory returns the usable region [0, Break())
	Memory() []byte
}

// ExtendFunc is an optional callback invoked after a successful extension with the previous and
// new break
type ExtendFunc func(prevBreak, newBreak int)
