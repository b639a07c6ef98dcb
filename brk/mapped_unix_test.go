//go:build linux || darwin

package brk_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/heapalloc/brk"
	"golang.org/x/sys/unix"
)

func TestMappedCommitsPagesOnDemand(t *testing.T) {
	pageSize := unix.Getpagesize()

	mapped, err := brk.NewMapped(16*pageSize, nil)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, mapped.Close())
	}()

	require.Equal(t, 0, mapped.Committed())

	prev, err := mapped.Extend(100)
	require.NoError(t, err)
	require.Equal(t, 0, prev)
	require.Equal(t, pageSize, mapped.Committed())

	memory := mapped.Memory()
	require.Len(t, memory, 100)
	for i := range memory {
		memory[i] = byte(i)
	}

	prev, err = mapped.Extend(2 * pageSize)
	require.NoError(t, err)
	require.Equal(t, 100, prev)
	require.Equal(t, 3*pageSize, mapped.Committed())

	memory = mapped.Memory()
	require.Equal(t, byte(99), memory[99])
	memory[len(memory)-1] = 0xFF
}

func TestMappedLimit(t *testing.T) {
	pageSize := unix.Getpagesize()

	var calls int
	mapped, err := brk.NewMapped(pageSize, func(prevBreak, newBreak int) {
		calls++
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, mapped.Close())
	}()

	_, err = mapped.Extend(pageSize + 1)
	require.True(t, errors.Is(err, brk.ErrLimitExceeded))
	require.Equal(t, 0, mapped.Break())
	require.Equal(t, 0, calls)

	_, err = mapped.Extend(pageSize)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestMappedClose(t *testing.T) {
	mapped, err := brk.NewMapped(4096, nil)
	require.NoError(t, err)

	require.NoError(t, mapped.Close())
	require.NoError(t, mapped.Close())

	_, err = mapped.Extend(8)
	require.Error(t, err)
}
