package marking

import "testing"

func newTestBufferedQueue() *BufferedQueue {
	return NewBufferedQueue(NewOverflowQueue(16))
}

// Pushing evicts the previously buffered task into the shared queue, never
// the new one: after push(a), push(b), push(c), PopBuffer yields c, and a
// and b are observable only via the shared queue.
func TestBufferedPushEvictsPrevious(t *testing.T) {
	q := newTestBufferedQueue()
	a, b, c := NewTask(1), NewTask(2), NewTask(3)

	q.Push(a)
	q.Push(b)
	q.Push(c)

	task, ok := q.PopBuffer()
	if !ok {
		t.Fatal("PopBuffer failed after pushes")
	}
	if task != c {
		t.Errorf("PopBuffer = %d, want newest (3)", task.Ref())
	}
	if _, ok := q.PopBuffer(); ok {
		t.Error("PopBuffer succeeded twice for a single buffered task")
	}

	// a and b were published to the shared structure, owner end last-in-first.
	task, ok = q.PopLocal()
	if !ok || task != b {
		t.Errorf("PopLocal = %v %v, want task 2", task.Ref(), ok)
	}
	task, ok = q.PopLocal()
	if !ok || task != a {
		t.Errorf("PopLocal = %v %v, want task 1", task.Ref(), ok)
	}
}

// An evicted task must be visible to thieves; the buffered one is not.
func TestBufferedEvictedIsStealable(t *testing.T) {
	q := newTestBufferedQueue()
	q.Push(NewTask(1))
	q.Push(NewTask(2))

	task, ok := q.Steal()
	if !ok {
		t.Fatal("Steal failed; evicted task was not published")
	}
	if task.Ref() != 1 {
		t.Errorf("Steal = %d, want evicted task 1", task.Ref())
	}
	if _, ok := q.Steal(); ok {
		t.Error("Steal reached the buffered task")
	}
}

func TestBufferedIsEmpty(t *testing.T) {
	q := newTestBufferedQueue()
	if !q.IsEmpty() {
		t.Error("new queue not empty")
	}

	q.Push(NewTask(1))
	if q.IsEmpty() {
		t.Error("IsEmpty() = true immediately after Push")
	}

	q.Push(NewTask(2))
	if _, ok := q.PopBuffer(); !ok {
		t.Fatal("PopBuffer failed")
	}
	if q.IsEmpty() {
		t.Error("IsEmpty() = true while the shared queue still holds a task")
	}

	if _, ok := q.PopLocal(); !ok {
		t.Fatal("PopLocal failed")
	}
	if !q.IsEmpty() {
		t.Error("IsEmpty() = false after draining buffer and shared queue")
	}
}

func TestBufferedClearBuffer(t *testing.T) {
	q := newTestBufferedQueue()
	q.Push(NewTask(1))

	q.ClearBuffer()
	if !q.BufferEmpty() {
		t.Error("BufferEmpty() = false after ClearBuffer")
	}
	if _, ok := q.PopBuffer(); ok {
		t.Error("PopBuffer succeeded after ClearBuffer")
	}
	// ClearBuffer abandons, never evicts.
	if !q.IsEmpty() {
		t.Error("abandoned task leaked into the shared queue")
	}
}

func TestBufferedClear(t *testing.T) {
	q := newTestBufferedQueue()
	for i := 1; i <= 5; i++ {
		q.Push(NewTask(uintptr(i)))
	}
	q.Clear()
	if !q.IsEmpty() {
		t.Error("IsEmpty() = false after Clear")
	}
}

func TestBufferedCounters(t *testing.T) {
	q := newTestBufferedQueue()
	q.Push(NewTask(1))
	q.Push(NewTask(2))
	q.PopBuffer()

	if q.Pushes() != 2 {
		t.Errorf("Pushes() = %d, want 2", q.Pushes())
	}
	if q.BufferHits() != 1 {
		t.Errorf("BufferHits() = %d, want 1", q.BufferHits())
	}
}
