package heap

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/heapalloc/memutils"
	"github.com/vkngwrapper/arsenal/heapalloc/memutils/metadata"
	"golang.org/x/exp/slog"
)

// CalculateStatistics populates stats with a summary of every chunk in the heap. ChunkBytes is the
// current break, and the allocation and unused range figures exclude chunk headers.
func (h *Heap) CalculateStatistics(stats *memutils.DetailedStatistics) {
	h.logger.Debug("Heap::CalculateStatistics")

	h.mutex.Lock()
	defer h.mutex.Unlock()

	stats.Clear()
	h.addDetailedStatistics(stats)
}

// addDetailedStatistics sums the directory's chunks into stats, which may already hold totals
func (h *Heap) addDetailedStatistics(stats *memutils.DetailedStatistics) {
	var heapStats memutils.DetailedStatistics
	heapStats.Clear()
	h.directory.AddDetailedStatistics(&heapStats)

	stats.AddDetailedStatistics(&heapStats)
}

// BuildStatsString returns a json string describing the heap. When detailedMap is true, every chunk
// is listed in address order.
func (h *Heap) BuildStatsString(detailedMap bool) string {
	h.logger.Debug("Heap::BuildStatsString")

	h.mutex.Lock()
	defer h.mutex.Unlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	h.addDetailedStatistics(&stats)

	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("Flags").String(h.createFlags.String())
	obj.Name("Alignment").Int(int(h.alignment))
	obj.Name("Break").Int(h.brk)

	totalObj := obj.Name("Total").Object()
	printStatistics(&totalObj, &stats)
	totalObj.End()

	if detailedMap {
		heapObj := obj.Name("Heap").Object()
		h.directory.BlockJsonData(&heapObj)
		h.printDetailedMapChunks(&heapObj)
		heapObj.End()
	}

	obj.End()

	return string(writer.Bytes())
}

func printStatistics(json *jwriter.ObjectState, stats *memutils.DetailedStatistics) {
	json.Name("ChunkCount").Int(stats.ChunkCount)
	json.Name("AllocationCount").Int(stats.AllocationCount)
	json.Name("UnusedRangeCount").Int(stats.UnusedRangeCount)
	json.Name("ChunkBytes").Int(stats.ChunkBytes)
	json.Name("AllocationBytes").Int(stats.AllocationBytes)
	json.Name("UnusedBytes").Int(stats.UnusedRangeBytes)

	if stats.AllocationCount > 0 {
		json.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		json.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}

	if stats.UnusedRangeCount > 0 {
		json.Name("UnusedRangeSizeMin").Int(stats.UnusedRangeSizeMin)
		json.Name("UnusedRangeSizeMax").Int(stats.UnusedRangeSizeMax)
	}
}

func (h *Heap) printDetailedMapChunks(json *jwriter.ObjectState) {
	arrayState := json.Name("Chunks").Array()
	defer arrayState.End()

	_ = h.directory.VisitAllChunks(func(chunk metadata.Chunk) error {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").Int(chunk.Offset)
		obj.Name("Type").String(chunk.State.String())
		obj.Name("Size").Int(chunk.Size)

		if !chunk.IsFree() {
			requested, _ := h.live.Get(pointerTo(chunk.Offset))
			obj.Name("RequestedSize").Int(requested)
		}
		if memutils.ProvenanceTagging {
			obj.Name("Provenance").String(chunk.Provenance.String())
		}

		return nil
	})
}

// Destroy tears down the heap. Every allocation that is still live is logged, and an error is
// returned if there were any. If the extender implements io.Closer, it is closed. The heap must not
// be used afterward.
func (h *Heap) Destroy() error {
	h.logger.Debug("Heap::Destroy")

	h.mutex.Lock()
	defer h.mutex.Unlock()

	var err error
	if h.live.Count() > 0 {
		h.live.Iter(func(p Pointer, requested int) (stop bool) {
			h.logUnreleasedMemory(p, requested)
			return false
		})

		err = errors.Newf("%d allocations were not freed before the destruction of this heap", h.live.Count())
	}

	if closer, ok := h.extender.(io.Closer); ok {
		closeErr := closer.Close()
		if closeErr != nil {
			err = errors.CombineErrors(err, errors.Wrap(closeErr, "could not close the heap extender"))
		}
	}

	h.live = swiss.NewMap[Pointer, int](liveSetInitialCapacity)
	return err
}

func (h *Heap) logUnreleasedMemory(p Pointer, requested int) {
	header := h.directory.Header(p.chunk())

	h.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
		slog.Int("offset", p.offset),
		slog.Int("requestedSize", requested),
		slog.Int("size", header.Size),
	)
}
