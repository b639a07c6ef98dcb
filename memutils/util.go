package memutils

import (
	"math"
	"math/bits"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer
}

func CheckPow2[T Number](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

// CheckedAlignUp behaves like AlignUp but reports ErrOverflow instead of wrapping when value is too
// close to math.MaxInt. reserve is a number of bytes that must also fit above the aligned value, such as
// the size of a header placed in front of the allocation.
func CheckedAlignUp(value int, alignment uint, reserve int) (int, error) {
	if value < 0 || reserve < 0 {
		return 0, cerrors.Wrapf(ErrOverflow, "negative operand %d, %d", value, reserve)
	}
	if value > math.MaxInt-int(alignment)-reserve {
		return 0, cerrors.Wrapf(ErrOverflow, "%d bytes aligned to %d with %d reserved bytes", value, alignment, reserve)
	}

	return AlignUp(value, alignment), nil
}

// CheckedMul multiplies two non-negative values and reports ErrOverflow if the product does not
// fit in an int.
func CheckedMul(count, size int) (int, error) {
	if count < 0 || size < 0 {
		return 0, cerrors.Wrapf(ErrOverflow, "negative operand %d * %d", count, size)
	}

	hi, lo := bits.Mul64(uint64(count), uint64(size))
	if hi != 0 || lo > math.MaxInt {
		return 0, cerrors.Wrapf(ErrOverflow, "%d * %d", count, size)
	}

	return int(lo), nil
}
