package vclock

import "github.com/signalsfoundry/vtsim/timectrl"

// event is a single scheduled dispatch. Tie-breaking within equal timestamps
// is by seq, assigned monotonically at schedule time, giving FIFO delivery
// order within a tick as required by the clock's ordering invariant.
type event struct {
	at        int64
	seq       uint64
	target    timectrl.Dispatchable
	message   any
	cancelled bool
	index     int // position in the heap, maintained by container/heap
}

// eventHeap is a min-heap on (at, seq), grounded on the mclock.Simulated
// timer-heap pattern from the reference pack (container/heap.Interface over
// a slice of pointers, each tracking its own heap index for O(log n) Remove).
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	e := x.(*event)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
