package marking

import "testing"

func TestSnapshotStats(t *testing.T) {
	s := NewQueueSet(2, 16)

	q := s.Queue(0)
	q.Push(NewTask(1))
	q.Push(NewTask(2))
	q.PopBuffer()
	s.Queue(1).Steal() // empty, no effect
	q.Steal()          // takes the evicted task

	stats := SnapshotStats(s, nil)
	if len(stats.Queues) != 2 {
		t.Fatalf("len(Queues) = %d, want 2", len(stats.Queues))
	}
	if stats.Queues[0].Pushes != 2 {
		t.Errorf("Queues[0].Pushes = %d, want 2", stats.Queues[0].Pushes)
	}
	if stats.Queues[0].BufferHits != 1 {
		t.Errorf("Queues[0].BufferHits = %d, want 1", stats.Queues[0].BufferHits)
	}
	if stats.Queues[0].Stolen != 1 {
		t.Errorf("Queues[0].Stolen = %d, want 1", stats.Queues[0].Stolen)
	}
	if stats.TotalPushes() != 2 {
		t.Errorf("TotalPushes() = %d, want 2", stats.TotalPushes())
	}
	if stats.TotalStolen() != 1 {
		t.Errorf("TotalStolen() = %d, want 1", stats.TotalStolen())
	}
}
