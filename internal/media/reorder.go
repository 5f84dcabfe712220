package media

import (
	"container/heap"

	"github.com/1ureka/loopcall/internal/protocol"
	"github.com/1ureka/loopcall/internal/util"
)

// defaultReorderWindow is how many out-of-order frames are held back before
// the missing ones are declared lost.
const defaultReorderWindow = 16

// Reorder puts the frames of a single track back in sequence order. Unlike a
// reliable-stream reassembler it gives up on a gap once more than window
// frames are waiting behind it. It is goroutine-local (owned by one render
// loop) and needs no locking.
type Reorder struct {
	window      int
	started     bool
	expectedSeq uint32
	buffer      frameHeap
	lost        int
}

// NewReorder creates a reorder buffer. The first frame fed sets the starting
// sequence number, since frames sent before the receiver was ready never
// arrive.
func NewReorder(window int) *Reorder {
	if window <= 0 {
		window = defaultReorderWindow
	}
	return &Reorder{window: window}
}

// Lost returns the number of frames skipped so far.
func (r *Reorder) Lost() int { return r.lost }

// Feed processes an incoming frame and returns all frames that can now be
// delivered in sequence order. Returns nil if no frames are ready.
func (r *Reorder) Feed(f *protocol.Frame) []*protocol.Frame {
	if !r.started {
		r.started = true
		r.expectedSeq = f.SeqNum
	}

	if f.SeqNum < r.expectedSeq {
		util.LogDebug("received frame with old SeqNum %d (expected %d), ignoring", f.SeqNum, r.expectedSeq)
		return nil
	}

	var result []*protocol.Frame

	if f.SeqNum > r.expectedSeq {
		heap.Push(&r.buffer, f)
		if r.buffer.Len() <= r.window {
			return nil
		}
		// Too far behind: skip the gap up to the oldest buffered frame.
		skipped := r.buffer[0].SeqNum - r.expectedSeq
		r.lost += int(skipped)
		util.Stats.AddLost(int(skipped))
		r.expectedSeq = r.buffer[0].SeqNum
	} else {
		result = append(result, f)
		r.expectedSeq++
	}

	for r.buffer.Len() > 0 && r.buffer[0].SeqNum <= r.expectedSeq {
		next := heap.Pop(&r.buffer).(*protocol.Frame)
		if next.SeqNum < r.expectedSeq {
			continue // duplicate
		}
		result = append(result, next)
		r.expectedSeq++
	}

	return result
}

// ---------------------------------------------------------------------------
// frameHeap implements a min-heap sorted by SeqNum.
// ---------------------------------------------------------------------------

type frameHeap []*protocol.Frame

func (h frameHeap) Len() int            { return len(h) }
func (h frameHeap) Less(i, j int) bool  { return h[i].SeqNum < h[j].SeqNum }
func (h frameHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *frameHeap) Push(x interface{}) { *h = append(*h, x.(*protocol.Frame)) }

func (h *frameHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[:n-1]
	return item
}
