package memutils

import "github.com/pkg/errors"

var (
	// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
	PowerOfTwoError error = errors.New("number must be a power of two")

	// ErrInvalidSize is returned when a caller requests an allocation of zero or negative size. It is
	// always returned before the heap is mutated.
	ErrInvalidSize error = errors.New("allocation size must be greater than zero")

	// ErrOverflow is returned when computing the size of a request overflows the size type, such as
	// count*size in a zero-initialized allocation. It is always returned before the heap is mutated.
	ErrOverflow error = errors.New("allocation size overflows")

	// ErrOutOfMemory is returned when the heap could not be extended to satisfy a request. The
	// error returned by the heap extender is retained as the cause.
	ErrOutOfMemory error = errors.New("out of memory")
)
