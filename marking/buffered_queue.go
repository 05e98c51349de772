package marking

// ---------------------------------------------------------------------------
// BufferedQueue: single-slot buffer over a TaskQueue
// ---------------------------------------------------------------------------

// BufferedQueue wraps a TaskQueue with one extra slot holding the most
// recently produced task. Most produced tasks are consumed almost
// immediately by the producing worker (depth-first scanning), so keeping the
// newest task out of the shared structure avoids a synchronized publish and
// re-fetch for that common case. An older buffered task is published to the
// shared queue the moment it is superseded, so it remains stealable.
//
// The buffer is private to the owning worker: Push, PopBuffer, ClearBuffer
// and BufferEmpty are deliberately unsynchronized and must not be called
// from other workers. Steal, Size and the other promoted TaskQueue methods
// see only the shared structure.
type BufferedQueue struct {
	TaskQueue

	_        CacheLinePad
	buf      Task
	bufEmpty bool

	pushes     uint64
	bufferHits uint64
	_          CacheLinePad
}

// NewBufferedQueue wraps q. The buffer starts empty.
func NewBufferedQueue(q TaskQueue) *BufferedQueue {
	return &BufferedQueue{TaskQueue: q, bufEmpty: true}
}

// Push places t in the buffer. If the buffer already holds a task, that
// older task is first evicted into the shared queue (which always succeeds,
// overflowing if need be). Push itself always succeeds.
func (q *BufferedQueue) Push(t Task) bool {
	q.pushes++
	if !q.bufEmpty {
		q.TaskQueue.Push(q.buf)
	}
	q.buf = t
	q.bufEmpty = false
	return true
}

// PopBuffer removes and returns the buffered task, if any. It never touches
// the shared queue.
func (q *BufferedQueue) PopBuffer() (Task, bool) {
	if q.bufEmpty {
		var zero Task
		return zero, false
	}
	q.bufferHits++
	q.bufEmpty = true
	return q.buf, true
}

// ClearBuffer marks the buffer empty without evicting its task. Used when
// the buffered task's owner abandons it, e.g. on cancellation.
func (q *BufferedQueue) ClearBuffer() {
	q.bufEmpty = true
}

// BufferEmpty reports whether the buffer slot is vacant.
func (q *BufferedQueue) BufferEmpty() bool {
	return q.bufEmpty
}

// IsEmpty reports whether both the buffer and the shared queue are empty.
func (q *BufferedQueue) IsEmpty() bool {
	return q.bufEmpty && q.TaskQueue.IsEmpty()
}

// Clear discards the buffered task and all pending shared tasks. Callers
// must ensure quiescence, as with TaskQueue.Clear.
func (q *BufferedQueue) Clear() {
	q.bufEmpty = true
	q.TaskQueue.Clear()
}

// Pushes returns the number of tasks pushed through this queue.
func (q *BufferedQueue) Pushes() uint64 { return q.pushes }

// BufferHits returns the number of pops satisfied by the buffer slot.
func (q *BufferedQueue) BufferHits() uint64 { return q.bufferHits }
