package marking

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueuePushPopLocal(t *testing.T) {
	q := NewOverflowQueue(16)

	for i := 1; i <= 5; i++ {
		q.Push(NewTask(uintptr(i)))
	}
	if q.Size() != 5 {
		t.Errorf("Size() = %d, want 5", q.Size())
	}

	// Owner end is LIFO.
	for i := 5; i >= 1; i-- {
		task, ok := q.PopLocal()
		if !ok {
			t.Fatalf("PopLocal failed at %d", i)
		}
		if task.Ref() != uintptr(i) {
			t.Errorf("PopLocal = %d, want %d", task.Ref(), i)
		}
	}
	if _, ok := q.PopLocal(); ok {
		t.Error("PopLocal on empty queue succeeded")
	}
	if !q.IsEmpty() {
		t.Error("IsEmpty() = false after draining")
	}
}

func TestQueueStealTakesOldest(t *testing.T) {
	q := NewOverflowQueue(16)
	for i := 1; i <= 3; i++ {
		q.Push(NewTask(uintptr(i)))
	}

	task, ok := q.Steal()
	if !ok {
		t.Fatal("Steal failed on non-empty queue")
	}
	if task.Ref() != 1 {
		t.Errorf("Steal = %d, want oldest (1)", task.Ref())
	}

	if _, ok := q.Steal(); !ok {
		t.Error("second Steal failed")
	}
	if q.Size() != 1 {
		t.Errorf("Size() = %d, want 1", q.Size())
	}
}

func TestQueueOverflowSpill(t *testing.T) {
	q := NewOverflowQueue(4)
	const total = 10

	for i := 1; i <= total; i++ {
		if !q.Push(NewTask(uintptr(i))) {
			t.Fatalf("Push(%d) failed", i)
		}
	}
	if q.Size() != total {
		t.Errorf("Size() = %d, want %d", q.Size(), total)
	}
	if q.Overflows() != total-4 {
		t.Errorf("Overflows() = %d, want %d", q.Overflows(), total-4)
	}

	seen := make(map[uintptr]bool)
	for i := 0; i < total; i++ {
		task, ok := q.PopLocal()
		if !ok {
			t.Fatalf("PopLocal failed after %d pops", i)
		}
		if seen[task.Ref()] {
			t.Errorf("task %d popped twice", task.Ref())
		}
		seen[task.Ref()] = true
	}
	if !q.IsEmpty() {
		t.Error("IsEmpty() = false after draining ring and overflow")
	}
}

func TestQueueClear(t *testing.T) {
	q := NewOverflowQueue(4)
	for i := 0; i < 8; i++ {
		q.Push(NewTask(uintptr(i + 1)))
	}
	q.Clear()
	if !q.IsEmpty() {
		t.Error("IsEmpty() = false after Clear")
	}
	if q.Size() != 0 {
		t.Errorf("Size() = %d after Clear, want 0", q.Size())
	}
}

// Owner pops and three thieves steal concurrently; every task must be
// consumed exactly once.
func TestQueueConcurrentSteal(t *testing.T) {
	const total = 20000
	q := NewOverflowQueue(256)
	for i := 1; i <= total; i++ {
		q.Push(NewTask(uintptr(i)))
	}

	var (
		consumed atomic.Int64
		taken    = make([]atomic.Int32, total+1)
		fail     atomic.Bool
	)
	deadline := time.Now().Add(10 * time.Second)

	record := func(task Task) {
		if taken[task.Ref()].Add(1) != 1 {
			fail.Store(true)
		}
		consumed.Add(1)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for consumed.Load() < total && time.Now().Before(deadline) {
				if task, ok := q.Steal(); ok {
					record(task)
				} else {
					runtime.Gosched()
				}
			}
		}()
	}
	// Owner drains its own end, including the overflow stack.
	for consumed.Load() < total && time.Now().Before(deadline) {
		if task, ok := q.PopLocal(); ok {
			record(task)
		} else {
			runtime.Gosched()
		}
	}
	wg.Wait()

	if consumed.Load() != total {
		t.Fatalf("consumed %d tasks, want %d", consumed.Load(), total)
	}
	if fail.Load() {
		t.Error("some task was consumed more than once")
	}
	if !q.IsEmpty() {
		t.Error("IsEmpty() = false after full drain")
	}
}

// Size must never miss a pushed task: the termination protocol relies on it.
func TestQueueSizeSoundUnderStealing(t *testing.T) {
	q := NewOverflowQueue(64)
	const rounds = 5000

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				q.Steal()
			}
		}
	}()

	stolenBefore := func() uint64 { return q.Stolen() }
	for i := 0; i < rounds; i++ {
		before := stolenBefore()
		q.Push(NewTask(uintptr(i + 1)))
		if q.Size() == 0 && q.Stolen() == before {
			t.Fatalf("round %d: pushed task missing from Size with no steal", i)
		}
		for !q.IsEmpty() {
			q.PopLocal()
		}
	}
	close(stop)
	wg.Wait()
}

func TestQueueCapacityRounding(t *testing.T) {
	q := NewOverflowQueue(100)
	if len(q.ring) != 128 {
		t.Errorf("ring capacity = %d, want 128", len(q.ring))
	}
	q = NewOverflowQueue(0)
	if len(q.ring) != DefaultQueueCapacity {
		t.Errorf("ring capacity = %d, want %d", len(q.ring), DefaultQueueCapacity)
	}
}
