package brk

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Arena is an Extender backed by a single in-process reservation. The full limit is allocated up
// front so that the break can advance without moving memory; Go hands large allocations whole,
// page-aligned spans, so the base of the arena is suitably aligned for any heap alignment up to
// the page size.
type Arena struct {
	reservation []byte
	brk         int64
	onExtend    ExtendFunc
}

var _ Extender = &Arena{}

// NewArena reserves limit bytes for a heap. onExtend may be nil.
func NewArena(limit int, onExtend ExtendFunc) (*Arena, error) {
	if limit <= 0 {
		return nil, errors.Newf("arena limit must be positive, but was %d", limit)
	}

	return &Arena{
		reservation: make([]byte, limit),
		onExtend:    onExtend,
	}, nil
}

// Extend advances the break with a compare-and-swap so that concurrent callers never observe the
// same previous break
func (a *Arena) Extend(delta int) (int, error) {
	if delta < 0 {
		return -1, errors.Wrapf(ErrInvalidDelta, "delta %d", delta)
	}

	for {
		current := atomic.LoadInt64(&a.brk)
		limit := int64(len(a.reservation))

		if int64(delta) > limit || current > limit-int64(delta) {
			return -1, errors.Wrapf(ErrLimitExceeded, "extending break %d by %d bytes with a limit of %d", current, delta, limit)
		}

		target := current + int64(delta)

		if atomic.CompareAndSwapInt64(&a.brk, current, target) {
			if a.onExtend != nil {
				a.onExtend(int(current), int(target))
			}
			return int(current), nil
		}
	}
}

func (a *Arena) Break() int {
	return int(atomic.LoadInt64(&a.brk))
}

func (a *Arena) Memory() []byte {
	brk := a.Break()
	return a.reservation[:brk:brk]
}

// Limit returns the size of the reservation
func (a *Arena) Limit() int {
	return len(a.reservation)
}
