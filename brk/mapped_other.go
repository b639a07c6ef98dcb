//go:build !linux && !darwin

package brk

// Mapped is unavailable on this platform; use Arena instead
type Mapped struct {
	Extender
}

// NewMapped always returns ErrUnsupported on this platform
func NewMapped(limit int, onExtend ExtendFunc) (*Mapped, error) {
	return nil, ErrUnsupported
}

func (m *Mapped) Committed() int { return 0 }

func (m *Mapped) Close() error { return nil }
