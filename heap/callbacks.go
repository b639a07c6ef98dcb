package heap

// ExtendHeapCallback is called after the heap successfully moves its break from prevBreak to
// newBreak. It runs while the heap is locked, so it must not call back into the heap.
type ExtendHeapCallback func(
	heap *Heap,
	prevBreak int,
	newBreak int,
	userData interface{},
)

type ExtendCallbackOptions struct {
	Extend   ExtendHeapCallback
	UserData interface{}
}

type extendCallbacks struct {
	Callbacks *ExtendCallbackOptions
	Heap      *Heap
}

func (c *extendCallbacks) Extend(prevBreak, newBreak int) {
	if c.Callbacks != nil && c.Callbacks.Extend != nil {
		c.Callbacks.Extend(c.Heap, prevBreak, newBreak, c.Callbacks.UserData)
	}
}
