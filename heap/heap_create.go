package heap

import (
	"math/bits"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/arsenal/heapalloc/brk"
	"github.com/vkngwrapper/arsenal/heapalloc/memutils"
	"github.com/vkngwrapper/arsenal/heapalloc/memutils/metadata"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific heap behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = map[CreateFlags]string{}

func (f CreateFlags) Register(str string) {
	createFlagsMapping[f] = str
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for remaining := uint32(f); remaining != 0; remaining &= remaining - 1 {
		flag := CreateFlags(1 << bits.TrailingZeros32(remaining))
		str, ok := createFlagsMapping[flag]
		if !ok {
			str = "Unknown"
		}
		names = append(names, str)
	}

	return strings.Join(names, "|")
}

const (
	// CreateExternallySynchronized ensures that the heap will not be synchronized internally. The
	// consumer must guarantee that it is used from only one goroutine at a time or is synchronized by
	// some other mechanism, but performance may improve because the internal mutex is not used.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
}

const (
	// DefaultMinSplitPayload is the value used as CreateOptions.MinSplitPayload when none is provided.
	// A free chunk is only split when the remainder could hold at least this many payload bytes.
	DefaultMinSplitPayload int = 16
	// liveSetInitialCapacity is the number of live allocations the heap can track before its
	// allocation set first grows
	liveSetInitialCapacity uint32 = 64
)

// DefaultAlignment is the value used as CreateOptions.Alignment when none is provided. It is the
// size of a pointer on the current platform.
var DefaultAlignment = uint(unsafe.Sizeof(uintptr(0)))

// CreateOptions contains optional settings when creating a heap
type CreateOptions struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags CreateFlags
	// Alignment is the alignment, relative to the base of the heap, of every chunk header and
	// payload. It must be a power of two that divides metadata.HeaderSize. Leave it at 0 to use
	// DefaultAlignment.
	Alignment uint
	// MinSplitPayload is the smallest payload a free remainder may have for a chunk to be split.
	// Leave it at 0 to use DefaultMinSplitPayload.
	MinSplitPayload int

	// ExtendCallbacks is an optional set of callbacks that will be executed whenever the heap moves
	// its break
	ExtendCallbacks *ExtendCallbackOptions
}

// New creates a new Heap that carves its chunks from the space provided by extender. The heap must
// be the extender's only consumer, and the extender must not have been extended before.
//
// logger - The logger that heap operations will be reported to
//
// extender - The source of heap space
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, extender brk.Extender, options CreateOptions) (*Heap, error) {
	if logger == nil {
		return nil, errors.New("heap.New requires a logger")
	}
	if extender == nil {
		return nil, errors.New("heap.New requires an extender")
	}

	alignment := options.Alignment
	if alignment == 0 {
		alignment = DefaultAlignment
	}

	err := memutils.CheckPow2(alignment, "heap.CreateOptions.Alignment")
	if err != nil {
		return nil, err
	}
	if metadata.HeaderSize%int(alignment) != 0 {
		return nil, errors.Newf("heap.CreateOptions.Alignment is %d, but it must divide the chunk header size %d", alignment, metadata.HeaderSize)
	}

	minSplitPayload := options.MinSplitPayload
	if minSplitPayload == 0 {
		minSplitPayload = DefaultMinSplitPayload
	} else if minSplitPayload < 0 {
		return nil, errors.Newf("heap.CreateOptions.MinSplitPayload must not be negative, but was %d", minSplitPayload)
	}

	if extender.Break() != 0 {
		return nil, errors.Newf("the heap extender has already been extended to %d bytes", extender.Break())
	}

	heap := &Heap{
		logger:          logger,
		extender:        extender,
		createFlags:     options.Flags,
		alignment:       alignment,
		minSplitPayload: minSplitPayload,
		directory:       metadata.NewChunkDirectory(alignment),
		live:            swiss.NewMap[Pointer, int](liveSetInitialCapacity),
	}
	heap.mutex.UseMutex = options.Flags&CreateExternallySynchronized == 0
	heap.callbacks = &extendCallbacks{
		Callbacks: options.ExtendCallbacks,
		Heap:      heap,
	}

	logger.Debug("Heap::New",
		slog.String("Flags", options.Flags.String()),
		slog.Int("Alignment", int(alignment)),
		slog.Int("MinSplitPayload", minSplitPayload),
	)

	return heap, nil
}
