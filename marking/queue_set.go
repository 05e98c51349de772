package marking

import (
	"fmt"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// QueueSet: claimable aggregate of per-worker queues
// ---------------------------------------------------------------------------

// QueueSet is a fixed-length ordered set of buffered queues with an atomic
// claim cursor. At the start of a phase each worker claims one queue;
// ClaimNext hands out each index exactly once per claiming epoch, without
// locks, under arbitrary interleaving. The aggregate queries feed the
// termination protocol.
//
// Reserve must complete before any ClaimNext of the same epoch; running the
// two concurrently is undefined. ClearClaimed starts a new epoch.
type QueueSet struct {
	queues  []*BufferedQueue
	claimed atomic.Int32

	reserved int32
}

// NewQueueSet creates n buffered queues, each over its own OverflowQueue
// with the given ring capacity (<= 0 selects DefaultQueueCapacity).
func NewQueueSet(n, capacity int) *QueueSet {
	if n <= 0 {
		panic(fmt.Sprintf("marking: queue set size out of range: %d", n))
	}
	s := &QueueSet{queues: make([]*BufferedQueue, n)}
	for i := range s.queues {
		s.queues[i] = NewBufferedQueue(NewOverflowQueue(capacity))
	}
	return s
}

// Size returns the number of queues in the set.
func (s *QueueSet) Size() int {
	return len(s.queues)
}

// Queue returns the queue at index i.
func (s *QueueSet) Queue(i int) *BufferedQueue {
	return s.queues[i]
}

// Reserve excludes the first n queues from claiming for the current epoch;
// they keep a fixed, non-parallel assignment. Must be called before any
// ClaimNext in the epoch.
func (s *QueueSet) Reserve(n int) {
	if taskChecks && n > len(s.queues) {
		panic(fmt.Sprintf("marking: reserving %d of %d queues", n, len(s.queues)))
	}
	s.claimed.Store(int32(n))
	s.reserved = int32(n)
}

// ClaimNext atomically claims the next unclaimed queue and returns it with
// its index. Once every queue has been claimed it returns (nil, -1);
// exhaustion is a normal outcome, not an error. Concurrent callers never
// receive the same queue.
func (s *QueueSet) ClaimNext() (*BufferedQueue, int) {
	size := int32(len(s.queues))
	if s.claimed.Load() >= size {
		return nil, -1
	}
	index := s.claimed.Add(1)
	if index <= size {
		if taskChecks && index-1 < s.reserved {
			panic(fmt.Sprintf("marking: claimed reserved queue %d (reserved %d)", index-1, s.reserved))
		}
		return s.queues[index-1], int(index - 1)
	}
	return nil, -1
}

// Reserved returns the number of queues excluded from claiming in the
// current epoch.
func (s *QueueSet) Reserved() int {
	return int(s.reserved)
}

// ClearClaimed resets the claim cursor, starting a new claiming epoch. Used
// between successive phases that reuse the same queue set.
func (s *QueueSet) ClearClaimed() {
	s.claimed.Store(0)
	s.reserved = 0
}

// Tasks returns the aggregate pending-task count across the shared
// structures of all queues. Buffered slots are worker-private and excluded;
// a worker holding only a buffered task is not idle and will consume it
// before offering termination. The count never misses a task whose Push has
// completed, which is the soundness property termination detection rests on.
func (s *QueueSet) Tasks() int {
	n := 0
	for _, q := range s.queues {
		n += q.Size()
	}
	return n
}

// IsEmpty reports whether every queue, buffers included, is empty. Only
// meaningful while the workers are quiescent.
func (s *QueueSet) IsEmpty() bool {
	for _, q := range s.queues {
		if !q.IsEmpty() {
			return false
		}
	}
	return true
}

// Clear discards all pending work in every queue. Used on cancellation;
// callers must ensure quiescence.
func (s *QueueSet) Clear() {
	for _, q := range s.queues {
		q.Clear()
	}
}
