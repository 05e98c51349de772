package marking

import (
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// TaskQueue: the queue primitive consumed by the rest of the package
// ---------------------------------------------------------------------------

// A TaskQueue is a single-owner task queue with steal support. Push and
// PopLocal may only be called by the owning worker; Steal may be called by
// any worker. IsEmpty and Size are safe from any worker and Size never
// under-reports: a task whose Push has returned is counted until it is
// popped or stolen. Clear assumes external quiescence.
type TaskQueue interface {
	// Push enqueues t. It always succeeds, spilling to an unbounded
	// overflow store when the bounded ring is full.
	Push(t Task) bool
	// PopLocal dequeues a task from the owner end.
	PopLocal() (Task, bool)
	// Steal dequeues a task from the opposite end on behalf of another
	// worker.
	Steal() (Task, bool)
	IsEmpty() bool
	Size() int
	Clear()
}

// ---------------------------------------------------------------------------
// OverflowQueue: bounded ring + owner-private overflow stack
// ---------------------------------------------------------------------------

// OverflowQueue implements TaskQueue as a fixed-capacity ring buffer with an
// unbounded overflow stack. The owner pushes and pops at the bottom end
// (LIFO, for depth-first locality); thieves steal at the top end (FIFO, so
// they take the oldest and usually largest work). Ring slots hold the
// word-sized task encoding so owner and thieves can race on the last
// element with a single CAS on the top index.
//
// The overflow stack is touched only by the owner and needs no
// synchronization; its length is mirrored in an atomic counter so Size stays
// sound for the termination protocol's aggregate count.
type OverflowQueue struct {
	_      CacheLinePad
	top    atomic.Int64
	_      CacheLinePad
	bottom atomic.Int64
	_      CacheLinePad

	ring []atomic.Uint64
	mask int64

	overflow    []Task
	overflowLen atomic.Int64

	stolen    atomic.Uint64
	overflows atomic.Uint64
}

// DefaultQueueCapacity is the default ring capacity, in tasks.
const DefaultQueueCapacity = 1 << 12

// NewOverflowQueue creates a queue whose ring holds capacity tasks, rounded
// up to a power of two. A capacity <= 0 selects DefaultQueueCapacity.
func NewOverflowQueue(capacity int) *OverflowQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &OverflowQueue{
		ring: make([]atomic.Uint64, n),
		mask: int64(n) - 1,
	}
}

// Push enqueues t at the owner end, spilling to the overflow stack when the
// ring is full. Always returns true. Owner only.
func (q *OverflowQueue) Push(t Task) bool {
	b := q.bottom.Load()
	top := q.top.Load()
	if b-top >= int64(len(q.ring)) {
		q.pushOverflow(t)
		return true
	}
	q.ring[b&q.mask].Store(t.bits())
	q.bottom.Store(b + 1)
	return true
}

// PopLocal dequeues from the owner end, falling back to the overflow stack
// when the ring is empty. Owner only.
func (q *OverflowQueue) PopLocal() (Task, bool) {
	b := q.bottom.Load() - 1
	q.bottom.Store(b)
	top := q.top.Load()
	if b < top {
		q.bottom.Store(top)
		return q.popOverflow()
	}
	t := taskFromBits(q.ring[b&q.mask].Load())
	if b > top {
		return t, true
	}
	// Last ring element: race with thieves for it.
	won := q.top.CompareAndSwap(top, top+1)
	q.bottom.Store(top + 1)
	if !won {
		return q.popOverflow()
	}
	return t, true
}

// Steal dequeues from the top end on behalf of another worker. It retries
// while it loses CAS races against other thieves and the owner, and reports
// empty once nothing is left in the ring. The overflow stack is
// owner-private and never stolen from.
func (q *OverflowQueue) Steal() (Task, bool) {
	for {
		top := q.top.Load()
		b := q.bottom.Load()
		if b <= top {
			var zero Task
			return zero, false
		}
		t := taskFromBits(q.ring[top&q.mask].Load())
		if q.top.CompareAndSwap(top, top+1) {
			q.stolen.Add(1)
			return t, true
		}
	}
}

// IsEmpty reports whether both the ring and the overflow stack are empty.
func (q *OverflowQueue) IsEmpty() bool {
	return q.Size() == 0
}

// Size returns the number of pending tasks. Concurrent operations can make
// the result stale, but a task is never missing from it between a completed
// Push and the pop or steal that removes it.
func (q *OverflowQueue) Size() int {
	b := q.bottom.Load()
	top := q.top.Load()
	n := b - top
	if n < 0 {
		n = 0
	}
	return int(n) + int(q.overflowLen.Load())
}

// Clear discards all pending tasks. Callers must ensure no concurrent
// operations; it is used when a phase is cancelled and its work abandoned.
func (q *OverflowQueue) Clear() {
	q.bottom.Store(q.top.Load())
	q.overflow = q.overflow[:0]
	q.overflowLen.Store(0)
}

// Stolen returns the number of tasks removed by thieves.
func (q *OverflowQueue) Stolen() uint64 { return q.stolen.Load() }

// Overflows returns the number of pushes absorbed by the overflow stack.
func (q *OverflowQueue) Overflows() uint64 { return q.overflows.Load() }

func (q *OverflowQueue) pushOverflow(t Task) {
	q.overflow = append(q.overflow, t)
	q.overflowLen.Add(1)
	q.overflows.Add(1)
}

func (q *OverflowQueue) popOverflow() (Task, bool) {
	n := len(q.overflow)
	if n == 0 {
		var zero Task
		return zero, false
	}
	t := q.overflow[n-1]
	q.overflow = q.overflow[:n-1]
	q.overflowLen.Add(-1)
	return t, true
}
