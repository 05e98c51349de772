// Markbench drives a synthetic parallel marking workload through the parmark
// work-distribution structures: workers claim queues, trace a generated
// object graph with chunked array scanning and work stealing, and report
// per-phase statistics.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/parmark/marking"
	"github.com/chazu/parmark/tuning"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("parmark.markbench")

func main() {
	configDir := flag.String("config", "", "Directory containing parmark.toml (default: walk up from cwd)")
	workers := flag.Int("workers", 0, "Worker count (overrides tuning)")
	objects := flag.Int("objects", 0, "Object count (overrides tuning)")
	arrays := flag.Int("arrays", 0, "Array object count (overrides tuning)")
	arrayLen := flag.Int("array-len", 0, "Array length (overrides tuning)")
	phases := flag.Int("phases", 1, "Number of marking phases to run over the same graph")
	reportPath := flag.String("report", "", "Write a CBOR report to this file")
	verbose := flag.Int("v", 1, "Log verbosity")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: markbench [options]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a synthetic marking workload over the parmark queues and terminator.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  markbench -workers 8 -objects 1000000\n")
		fmt.Fprintf(os.Stderr, "  markbench -phases 3 -report bench.cbor\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	tune, err := loadTuning(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading tuning: %v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		tune.Workers.Count = *workers
	}
	if *objects > 0 {
		tune.Bench.Objects = *objects
	}
	if *arrays > 0 {
		tune.Bench.Arrays = *arrays
	}
	if *arrayLen > 0 {
		tune.Bench.ArrayLen = *arrayLen
	}

	session := uuid.NewString()
	log.Infof("session %s: %d workers, %d objects (%d arrays of %d elements)",
		session, tune.Workers.Count, tune.Bench.Objects, tune.Bench.Arrays, tune.Bench.ArrayLen)

	graph := buildGraph(tune.Bench)
	queues := marking.NewQueueSet(tune.Workers.Count, tune.Queue.Capacity)
	term := marking.NewTaskTerminator(tune.Workers.Count, queues, tune.SpinConfig())

	rep := &report{
		Session: session,
		Workers: tune.Workers.Count,
		Objects: tune.Bench.Objects,
	}

	for phase := 0; phase < *phases; phase++ {
		graph.reset()
		queues.ClearClaimed()
		term.Reset()

		start := time.Now()
		runPhase(graph, queues, term)
		elapsed := time.Since(start)

		stats := marking.SnapshotStats(queues, term)
		stats.Duration = elapsed

		log.Infof("phase %d: marked %d objects, %d array elements in %v",
			phase, graph.markedCount.Load(), graph.elementsMarked.Load(), elapsed)
		log.Infof("phase %d: %d pushes, %d stolen, %d spin-master takeovers, %d resumes",
			phase, stats.TotalPushes(), stats.TotalStolen(), stats.Takeovers, stats.Resumes)

		rep.Phases = append(rep.Phases, phaseReport{
			Marked:     graph.markedCount.Load(),
			Elements:   graph.elementsMarked.Load(),
			Pushes:     stats.TotalPushes(),
			Stolen:     stats.TotalStolen(),
			Takeovers:  stats.Takeovers,
			Resumes:    stats.Resumes,
			DurationUS: elapsed.Microseconds(),
		})
	}

	if *reportPath != "" {
		if err := writeReport(*reportPath, rep); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			os.Exit(1)
		}
		log.Infof("report written to %s", *reportPath)
	}
}

func loadTuning(dir string) (*tuning.Tuning, error) {
	if dir != "" {
		return tuning.Load(dir)
	}
	t, err := tuning.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if t == nil {
		t = tuning.Default()
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Synthetic object graph
// ---------------------------------------------------------------------------

// benchGraph is a fake heap: objects are indices, references are index+1 so
// that handle 0 is never used. The first Arrays objects are arrays whose
// elements sparsely reference other objects; the rest carry a few direct
// children pointing at higher indices, which keeps the graph acyclic.
type benchGraph struct {
	children [][]int32
	arrayLen []int
	marked   []atomic.Bool

	markedCount    atomic.Uint64
	elementsMarked atomic.Uint64
}

func buildGraph(cfg tuning.Bench) *benchGraph {
	rng := rand.New(rand.NewSource(cfg.Seed))
	g := &benchGraph{
		children: make([][]int32, cfg.Objects),
		arrayLen: make([]int, cfg.Objects),
		marked:   make([]atomic.Bool, cfg.Objects),
	}
	for i := 0; i < cfg.Objects; i++ {
		if i < cfg.Arrays {
			g.arrayLen[i] = cfg.ArrayLen
			continue
		}
		n := rng.Intn(cfg.Fanout + 1)
		if i+1 >= cfg.Objects {
			continue
		}
		kids := make([]int32, 0, n)
		for j := 0; j < n; j++ {
			kids = append(kids, int32(i+1+rng.Intn(cfg.Objects-i-1)))
		}
		g.children[i] = kids
	}
	return g
}

func (g *benchGraph) reset() {
	for i := range g.marked {
		g.marked[i].Store(false)
	}
	g.markedCount.Store(0)
	g.elementsMarked.Store(0)
}

// mark returns true exactly once per object per phase.
func (g *benchGraph) mark(id int) bool {
	if g.marked[id].Load() || !g.marked[id].CompareAndSwap(false, true) {
		return false
	}
	g.markedCount.Add(1)
	return true
}

// ---------------------------------------------------------------------------
// Marking loop
// ---------------------------------------------------------------------------

// chunkStridePow bounds the element range a worker scans without splitting:
// chunks larger than 2^chunkStridePow are split and half is exposed for
// stealing.
const chunkStridePow = 7

func runPhase(g *benchGraph, queues *marking.QueueSet, term *marking.TaskTerminator) {
	// Seed the roots round-robin before the workers start.
	for i := 0; i < len(g.children); i += 1024 {
		queues.Queue(i % queues.Size()).Push(marking.NewTask(uintptr(i + 1)))
	}

	var wg sync.WaitGroup
	for i := 0; i < queues.Size(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, id := queues.ClaimNext()
			if q == nil {
				return
			}
			w := &benchWorker{id: id, queue: q, queues: queues, term: term, graph: g}
			w.run()
		}()
	}
	wg.Wait()
}

type benchWorker struct {
	id     int
	queue  *marking.BufferedQueue
	queues *marking.QueueSet
	term   *marking.TaskTerminator
	graph  *benchGraph
}

func (w *benchWorker) run() {
	for {
		t, ok := w.pop()
		if !ok {
			if w.term.OfferTermination(w.id, nil) {
				return
			}
			continue
		}
		w.process(t)
	}
}

// pop takes the freshest local task first, then the local shared queue, then
// tries one steal round over the peers.
func (w *benchWorker) pop() (marking.Task, bool) {
	if t, ok := w.queue.PopBuffer(); ok {
		return t, true
	}
	if t, ok := w.queue.PopLocal(); ok {
		return t, true
	}
	n := w.queues.Size()
	for i := 1; i < n; i++ {
		if t, ok := w.queues.Queue((w.id + i) % n).Steal(); ok {
			return t, true
		}
	}
	var zero marking.Task
	return zero, false
}

func (w *benchWorker) process(t marking.Task) {
	id := int(t.Ref()) - 1

	if t.IsChunked() {
		// Keep the left half, expose the right half for stealing, until the
		// chunk is down to scanning stride.
		for t.Pow() > chunkStridePow {
			left, right := t.Split()
			w.queue.Push(right)
			t = left
		}
		w.scanRange(id, t.ChunkStart(), t.ChunkEnd())
		return
	}

	if !w.graph.mark(id) {
		return
	}
	if alen := w.graph.arrayLen[id]; alen > 0 {
		if alen > 1<<chunkStridePow {
			w.queue.Push(marking.NewChunkedTask(t.Ref(), 1, ceilLog2(alen)))
		} else {
			w.scanRange(id, 0, alen)
		}
		return
	}
	for _, c := range w.graph.children[id] {
		w.queue.Push(marking.NewTask(uintptr(c + 1)))
	}
}

// scanRange visits array elements [from, to), clamped to the array length.
// Every 16th element references another object, so big arrays fan work out
// across the queues.
func (w *benchWorker) scanRange(id, from, to int) {
	alen := w.graph.arrayLen[id]
	if to > alen {
		to = alen
	}
	if from >= to {
		return
	}
	w.graph.elementsMarked.Add(uint64(to - from))
	objects := len(w.graph.children)
	for i := from; i < to; i += 16 {
		child := (id*31 + i*7) % objects
		w.queue.Push(marking.NewTask(uintptr(child + 1)))
	}
}

func ceilLog2(n int) int {
	p := 0
	for 1<<p < n {
		p++
	}
	return p
}

// ---------------------------------------------------------------------------
// Report
// ---------------------------------------------------------------------------

type report struct {
	Session string        `cbor:"session"`
	Workers int           `cbor:"workers"`
	Objects int           `cbor:"objects"`
	Phases  []phaseReport `cbor:"phases"`
}

type phaseReport struct {
	Marked     uint64 `cbor:"marked"`
	Elements   uint64 `cbor:"elements"`
	Pushes     uint64 `cbor:"pushes"`
	Stolen     uint64 `cbor:"stolen"`
	Takeovers  uint64 `cbor:"takeovers"`
	Resumes    uint64 `cbor:"resumes"`
	DurationUS int64  `cbor:"duration-us"`
}

func writeReport(path string, rep *report) error {
	data, err := cbor.Marshal(rep)
	if err != nil {
		return fmt.Errorf("cannot encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}
