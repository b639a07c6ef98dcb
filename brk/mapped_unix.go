//go:build linux || darwin

package brk

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/heapalloc/memutils"
	"golang.org/x/sys/unix"
)

// Mapped is an Extender backed by an anonymous memory mapping. The whole limit is reserved as
// inaccessible address space when the extender is created, and pages are committed read/write
// as the break crosses into them, so the heap only touches memory it has actually extended into.
type Mapped struct {
	mutex       sync.Mutex
	reservation []byte
	pageSize    int
	committed   int
	brk         int
	onExtend    ExtendFunc
}

var _ Extender = &Mapped{}

// NewMapped reserves limit bytes of address space, rounded up to the page size. onExtend may be nil.
func NewMapped(limit int, onExtend ExtendFunc) (*Mapped, error) {
	if limit <= 0 {
		return nil, errors.Newf("mapped limit must be positive, but was %d", limit)
	}

	pageSize := unix.Getpagesize()
	limit = memutils.AlignUp(limit, uint(pageSize))

	reservation, err := unix.Mmap(-1, 0, limit, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_NORESERVE)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reserve %d bytes of address space", limit)
	}

	return &Mapped{
		reservation: reservation,
		pageSize:    pageSize,
		onExtend:    onExtend,
	}, nil
}

// Extend advances the break, committing any pages it crosses into. The commit and the break
// update happen under one lock so no two callers observe the same previous break.
func (m *Mapped) Extend(delta int) (int, error) {
	if delta < 0 {
		return -1, errors.Wrapf(ErrInvalidDelta, "delta %d", delta)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.reservation == nil {
		return -1, errors.New("mapped extender has been closed")
	}

	target := m.brk + delta
	if delta > len(m.reservation) || target > len(m.reservation) {
		return -1, errors.Wrapf(ErrLimitExceeded, "extending break %d by %d bytes with a limit of %d", m.brk, delta, len(m.reservation))
	}

	commitEnd := memutils.AlignUp(target, uint(m.pageSize))
	if commitEnd > m.committed {
		err := unix.Mprotect(m.reservation[m.committed:commitEnd], unix.PROT_READ|unix.PROT_WRITE)
		if err != nil {
			return -1, errors.Wrapf(err, "failed to commit pages [%d, %d)", m.committed, commitEnd)
		}
		m.committed = commitEnd
	}

	prev := m.brk
	m.brk = target

	if m.onExtend != nil {
		m.onExtend(prev, target)
	}

	return prev, nil
}

func (m *Mapped) Break() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.brk
}

func (m *Mapped) Memory() []byte {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.reservation[:m.brk:m.brk]
}

// Committed returns the number of bytes that are currently readable and writable. It is always
// the break rounded up to the page size.
func (m *Mapped) Committed() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.committed
}

// Close releases the reservation. Any slice previously returned by Memory becomes invalid.
func (m *Mapped) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.reservation == nil {
		return nil
	}

	err := unix.Munmap(m.reservation)
	if err != nil {
		return errors.Wrap(err, "failed to release the heap reservation")
	}

	m.reservation = nil
	m.brk = 0
	m.committed = 0
	return nil
}
