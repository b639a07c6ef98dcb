package brk_test

import (
	"math"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/heapalloc/brk"
)

func TestArenaExtend(t *testing.T) {
	var extensions [][2]int
	arena, err := brk.NewArena(4096, func(prevBreak, newBreak int) {
		extensions = append(extensions, [2]int{prevBreak, newBreak})
	})
	require.NoError(t, err)

	require.Equal(t, 0, arena.Break())
	require.Empty(t, arena.Memory())

	prev, err := arena.Extend(100)
	require.NoError(t, err)
	require.Equal(t, 0, prev)
	require.Equal(t, 100, arena.Break())
	require.Len(t, arena.Memory(), 100)

	prev, err = arena.Extend(28)
	require.NoError(t, err)
	require.Equal(t, 100, prev)
	require.Equal(t, 128, arena.Break())

	require.Equal(t, [][2]int{{0, 100}, {100, 128}}, extensions)
}

func TestArenaMemoryDoesNotMove(t *testing.T) {
	arena, err := brk.NewArena(4096, nil)
	require.NoError(t, err)

	_, err = arena.Extend(64)
	require.NoError(t, err)

	first := arena.Memory()
	first[10] = 0xAB

	_, err = arena.Extend(1024)
	require.NoError(t, err)

	second := arena.Memory()
	require.Equal(t, byte(0xAB), second[10])
	require.Same(t, &first[0], &second[0])
}

func TestArenaLimit(t *testing.T) {
	arena, err := brk.NewArena(256, nil)
	require.NoError(t, err)
	require.Equal(t, 256, arena.Limit())

	_, err = arena.Extend(200)
	require.NoError(t, err)

	_, err = arena.Extend(57)
	require.Error(t, err)
	require.True(t, errors.Is(err, brk.ErrLimitExceeded))
	require.Equal(t, 200, arena.Break(), "a failed extension leaves the break unchanged")

	prev, err := arena.Extend(56)
	require.NoError(t, err)
	require.Equal(t, 200, prev)
}

func TestArenaInvalid(t *testing.T) {
	_, err := brk.NewArena(0, nil)
	require.Error(t, err)

	arena, err := brk.NewArena(64, nil)
	require.NoError(t, err)

	_, err = arena.Extend(-1)
	require.True(t, errors.Is(err, brk.ErrInvalidDelta))
}

func TestArenaConcurrentExtendsNeverShareABreak(t *testing.T) {
	const workers = 8
	const perWorker = 200

	arena, err := brk.NewArena(workers*perWorker*16, nil)
	require.NoError(t, err)

	results := make([][]int, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				prev, err := arena.Extend(16)
				if err != nil {
					return
				}
				results[w] = append(results[w], prev)
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, prevs := range results {
		for _, prev := range prevs {
			require.False(t, seen[prev], "break %d was observed twice", prev)
			seen[prev] = true
		}
	}
	require.Len(t, seen, workers*perWorker)
	require.Equal(t, workers*perWorker*16, arena.Break())
}

func TestArenaHugeDeltaDoesNotWrapBreak(t *testing.T) {
	arena, err := brk.NewArena(4096, nil)
	require.NoError(t, err)

	_, err = arena.Extend(136)
	require.NoError(t, err)

	for _, delta := range []int{math.MaxInt, math.MaxInt - 64, math.MaxInt - 4096} {
		prev, err := arena.Extend(delta)
		require.True(t, errors.Is(err, brk.ErrLimitExceeded), "delta %d", delta)
		require.Equal(t, -1, prev)
	}

	require.Equal(t, 136, arena.Break())
	require.Len(t, arena.Memory(), 136)
}
