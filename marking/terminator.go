package marking

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Terminator capability
// ---------------------------------------------------------------------------

// A Terminator lets the caller inject external conditions into termination
// detection. ShouldExitTermination is polled while a worker spins or waits;
// returning true aborts the attempt with a "resume" result so the caller can
// service the condition (e.g. a pending safepoint) and offer again later.
// ShouldForceTermination short-circuits the protocol entirely, declaring
// termination regardless of quorum or pending work (e.g. a cancelled cycle).
type Terminator interface {
	ShouldExitTermination() bool
	ShouldForceTermination() bool
}

// CancelledTerminator is the capability for abandoned phases: it always
// forces termination and never merely exits.
type CancelledTerminator struct{}

// ShouldExitTermination always reports false.
func (CancelledTerminator) ShouldExitTermination() bool { return false }

// ShouldForceTermination always reports true.
func (CancelledTerminator) ShouldForceTermination() bool { return true }

// ---------------------------------------------------------------------------
// Spin tuning
// ---------------------------------------------------------------------------

// SpinConfig tunes the spin master's poll ladder: it hard-spins in bursts,
// yields the processor every SpinToYieldRatio bursts, and after
// YieldsBeforeSleep yields falls back to timed sleeping.
type SpinConfig struct {
	// HardSpins is the upper bound on busy iterations per burst; bursts
	// start at HardSpins >> SpinToYieldRatio and double up to this limit.
	HardSpins int
	// SpinToYieldRatio is the number of hard-spin bursts between yields.
	SpinToYieldRatio int
	// YieldsBeforeSleep is the number of yields before the spin master
	// starts sleeping between polls.
	YieldsBeforeSleep int
	// SleepInterval bounds every blocking wait; it also bounds how stale a
	// forced-termination observation can be.
	SleepInterval time.Duration
}

// DefaultSpinConfig returns the default spin ladder tuning.
func DefaultSpinConfig() SpinConfig {
	return SpinConfig{
		HardSpins:         4096,
		SpinToYieldRatio:  10,
		YieldsBeforeSleep: 5000,
		SleepInterval:     time.Millisecond,
	}
}

func (c SpinConfig) withDefaults() SpinConfig {
	d := DefaultSpinConfig()
	if c.HardSpins <= 0 {
		c.HardSpins = d.HardSpins
	}
	if c.SpinToYieldRatio <= 0 {
		c.SpinToYieldRatio = d.SpinToYieldRatio
	}
	if c.YieldsBeforeSleep <= 0 {
		c.YieldsBeforeSleep = d.YieldsBeforeSleep
	}
	if c.SleepInterval <= 0 {
		c.SleepInterval = d.SleepInterval
	}
	return c
}

//go:noinline
func cpuRelax() {}

// ---------------------------------------------------------------------------
// TaskTerminator: spin-master termination protocol
// ---------------------------------------------------------------------------

// TaskTerminator detects the moment all workers of a marking phase are
// simultaneously out of work. Each worker calls OfferTermination when its
// local and buffered queues are empty and stealing found nothing; the call
// blocks until either new work shows up in the aggregate queue set (resume)
// or all workers are idle with zero pending tasks (terminate).
//
// Among the idle workers, exactly one at a time holds the spin-master role
// and busy-polls the aggregate task count on behalf of the group; the rest
// sleep on a timed monitor. The spin master relinquishes the role before it
// would block, rather than holding it until it leaves the protocol, so a
// freshly idle worker can take over polling immediately instead of queueing
// behind a sleeping incumbent. That keeps both detection latencies low: new
// work for stealing, and global completion.
type TaskTerminator struct {
	nWorkers int
	queues   *QueueSet
	spin     SpinConfig

	offered atomic.Int32

	// Monitor state. spinMaster is guarded by mu; gen is the broadcast
	// generation channel (closed on notify-all, then replaced); tokens
	// carries notify-one wakeups.
	mu         sync.Mutex
	gen        chan struct{}
	tokens     chan struct{}
	spinMaster int

	takeovers    atomic.Uint64
	terminations atomic.Uint64
	resumes      atomic.Uint64
}

const noSpinMaster = -1

// NewTaskTerminator creates a terminator for nWorkers workers sharing
// queues. Zero fields of spin fall back to DefaultSpinConfig values.
func NewTaskTerminator(nWorkers int, queues *QueueSet, spin SpinConfig) *TaskTerminator {
	if nWorkers <= 0 {
		panic(fmt.Sprintf("marking: worker count out of range: %d", nWorkers))
	}
	return &TaskTerminator{
		nWorkers:   nWorkers,
		queues:     queues,
		spin:       spin.withDefaults(),
		gen:        make(chan struct{}),
		tokens:     make(chan struct{}, nWorkers),
		spinMaster: noSpinMaster,
	}
}

// OfferTermination enters the termination protocol on behalf of workerID,
// which must be out of local work. It returns true when the phase is
// complete (all workers idle, no pending tasks, or termination forced by t)
// and false when the worker should resume looking for work. t may be nil
// when no external conditions apply.
func (tt *TaskTerminator) OfferTermination(workerID int, t Terminator) bool {
	if t != nil && t.ShouldForceTermination() {
		tt.mu.Lock()
		tt.notifyAllLocked()
		tt.mu.Unlock()
		tt.terminations.Add(1)
		return true
	}
	if tt.nWorkers == 1 {
		tt.terminations.Add(1)
		return true
	}

	tt.mu.Lock()
	if int(tt.offered.Add(1)) == tt.nWorkers && tt.queues.Tasks() == 0 {
		tt.notifyAllLocked()
		tt.mu.Unlock()
		tt.terminations.Add(1)
		return true
	}

	for {
		if tt.spinMaster == noSpinMaster {
			tt.spinMaster = workerID
			tt.takeovers.Add(1)
			tt.mu.Unlock()

			if tt.spinMasterWork(workerID, t) {
				tt.terminations.Add(1)
				return true
			}
			tt.mu.Lock()
		} else {
			tt.waitLocked()

			if int(tt.offered.Load()) == tt.nWorkers && tt.queues.Tasks() == 0 {
				tt.mu.Unlock()
				tt.terminations.Add(1)
				return true
			}
		}

		if tt.queues.Tasks() > 0 || (t != nil && t.ShouldExitTermination()) {
			tt.offered.Add(-1)
			tt.mu.Unlock()
			tt.resumes.Add(1)
			return false
		}
	}
}

// spinMasterWork polls the aggregate task count on behalf of all idle
// workers. It returns true when it detects termination (after waking
// everyone) and false when it relinquished the role, either because it found
// work or an exit condition (waking as many waiters as there are tasks) or
// because another worker took the role over while it slept.
func (tt *TaskTerminator) spinMasterWork(workerID int, t Terminator) bool {
	yields := 0
	burstsSinceYield := 0
	burst := tt.spin.HardSpins >> uint(tt.spin.SpinToYieldRatio)
	if burst < 1 {
		burst = 1
	}
	burstStart := burst

	for {
		if yields <= tt.spin.YieldsBeforeSleep {
			yields++
			if burstsSinceYield > tt.spin.SpinToYieldRatio {
				runtime.Gosched()
				burstsSinceYield = 0
				burst = burstStart
			} else {
				// Hard spin, doubling the burst up to the limit.
				burst *= 2
				if burst > tt.spin.HardSpins {
					burst = tt.spin.HardSpins
				}
				for j := 0; j < burst; j++ {
					cpuRelax()
				}
				burstsSinceYield++
			}
		} else {
			// Spinning has not paid off; sleep between polls. Give up the
			// role first so a newly idle worker can poll while we sleep.
			tt.mu.Lock()
			tt.spinMaster = noSpinMaster
			tt.waitLocked()
			if tt.spinMaster == noSpinMaster {
				tt.spinMaster = workerID
				tt.mu.Unlock()
			} else {
				// Someone else polls now; rejoin as an ordinary waiter.
				tt.mu.Unlock()
				return false
			}
			yields = 0
		}

		if t != nil && t.ShouldForceTermination() {
			tt.mu.Lock()
			tt.spinMaster = noSpinMaster
			tt.notifyAllLocked()
			tt.mu.Unlock()
			return true
		}

		tasks := tt.queues.Tasks()
		exit := tasks > 0 || (t != nil && t.ShouldExitTermination())

		tt.mu.Lock()
		if int(tt.offered.Load()) == tt.nWorkers && tasks == 0 {
			tt.spinMaster = noSpinMaster
			tt.notifyAllLocked()
			tt.mu.Unlock()
			return true
		}
		if exit {
			// Wake one waiter per observed task beyond our own; wake
			// everyone when there is enough work to go around.
			if tasks >= int(tt.offered.Load())-1 {
				tt.notifyAllLocked()
			} else {
				for ; tasks > 1; tasks-- {
					tt.notifyOneLocked()
				}
			}
			tt.spinMaster = noSpinMaster
			tt.mu.Unlock()
			return false
		}
		tt.mu.Unlock()
	}
}

// Reset prepares the terminator for reuse in a following phase. Callers
// must ensure no worker is still inside OfferTermination.
func (tt *TaskTerminator) Reset() {
	tt.mu.Lock()
	tt.offered.Store(0)
	tt.spinMaster = noSpinMaster
	tt.gen = make(chan struct{})
	tt.tokens = make(chan struct{}, tt.nWorkers)
	tt.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Monitor
// ---------------------------------------------------------------------------

// waitLocked blocks until a notify or the sleep interval elapses. Called
// with mu held; reacquires mu before returning. Wakeups may be spurious;
// every caller rechecks its condition in a loop.
func (tt *TaskTerminator) waitLocked() {
	gen := tt.gen
	tt.mu.Unlock()

	timer := time.NewTimer(tt.spin.SleepInterval)
	select {
	case <-gen:
	case <-tt.tokens:
	case <-timer.C:
	}
	timer.Stop()

	tt.mu.Lock()
}

// notifyAllLocked wakes every waiter. Called with mu held.
func (tt *TaskTerminator) notifyAllLocked() {
	close(tt.gen)
	tt.gen = make(chan struct{})
}

// notifyOneLocked wakes at most one waiter. Called with mu held. The token
// is buffered, so a waiter arriving later may consume it; the protocol
// tolerates both spurious and early wakeups.
func (tt *TaskTerminator) notifyOneLocked() {
	select {
	case tt.tokens <- struct{}{}:
	default:
	}
}

// Takeovers returns how many times a worker acquired the spin-master role.
func (tt *TaskTerminator) Takeovers() uint64 { return tt.takeovers.Load() }

// Terminations returns how many OfferTermination calls returned terminate.
func (tt *TaskTerminator) Terminations() uint64 { return tt.terminations.Load() }

// Resumes returns how many OfferTermination calls returned resume.
func (tt *TaskTerminator) Resumes() uint64 { return tt.resumes.Load() }
