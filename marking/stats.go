package marking

import "time"

// ---------------------------------------------------------------------------
// Phase statistics
// ---------------------------------------------------------------------------

// QueueStats holds per-queue counters sampled after a phase.
type QueueStats struct {
	Pushes     uint64
	BufferHits uint64
	Stolen     uint64
	Overflows  uint64
}

// PhaseStats aggregates the counters of a completed marking phase. Sample
// it only while the workers are quiescent; the per-queue buffer counters are
// owner-private and unsynchronized.
type PhaseStats struct {
	Queues       []QueueStats
	Takeovers    uint64
	Terminations uint64
	Resumes      uint64
	Duration     time.Duration
	Timestamp    time.Time
}

// SnapshotStats collects the counters of queues and tt into one snapshot.
// tt may be nil when no terminator was involved.
func SnapshotStats(queues *QueueSet, tt *TaskTerminator) *PhaseStats {
	stats := &PhaseStats{
		Queues:    make([]QueueStats, queues.Size()),
		Timestamp: time.Now(),
	}
	for i := range stats.Queues {
		q := queues.Queue(i)
		qs := &stats.Queues[i]
		qs.Pushes = q.Pushes()
		qs.BufferHits = q.BufferHits()
		if oq, ok := q.TaskQueue.(*OverflowQueue); ok {
			qs.Stolen = oq.Stolen()
			qs.Overflows = oq.Overflows()
		}
	}
	if tt != nil {
		stats.Takeovers = tt.Takeovers()
		stats.Terminations = tt.Terminations()
		stats.Resumes = tt.Resumes()
	}
	return stats
}

// TotalPushes sums the push counters of all queues.
func (s *PhaseStats) TotalPushes() uint64 {
	var n uint64
	for i := range s.Queues {
		n += s.Queues[i].Pushes
	}
	return n
}

// TotalStolen sums the steal counters of all queues.
func (s *PhaseStats) TotalStolen() uint64 {
	var n uint64
	for i := range s.Queues {
		n += s.Queues[i].Stolen
	}
	return n
}
