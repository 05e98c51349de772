package marking

import "fmt"

// ---------------------------------------------------------------------------
// Task: mark task with optional array chunk coordinates
// ---------------------------------------------------------------------------

// A Task carries a reference to a traced object, optionally narrowed to a
// sub-range of an array. Tasks are word-sized values: they are copied freely
// between queues and never mutated after construction. The reference is an
// opaque handle; this package never dereferences it.
//
// A chunk task <C, P> covers the half-open element interval
// [(C-1)*2^P, C*2^P) of its array. Chunk 0 means "not chunked": the task
// denotes the whole object and the power field is ignored. Chunking starts
// from 1 so that a plain task is simply the reference with zero padding,
// which keeps the ubiquitous plain-reference path cheap.
//
// Bit budgets for the packed encoding. The three limits trade off against
// each other: more chunk bits allow deeper concurrent splitting of one
// array, more power bits allow longer arrays, and whatever remains bounds
// the addressable space for the reference. They are independent constants
// so one can be tightened to loosen another.
const (
	// ChunkBits bounds the number of outstanding chunk divisions per array.
	ChunkBits = 10
	// PowBits bounds representable array length at 2^(2^PowBits) elements.
	PowBits = 5

	// ChunkLimit and PowLimit are the exclusive upper bounds for the chunk
	// and power fields.
	ChunkLimit = 1 << ChunkBits
	PowLimit   = 1 << PowBits
)

// taskChecks enables precondition checks in task constructors. Violations
// are contract bugs in the caller; with checks off the behavior is
// undefined, never silently corrected.
const taskChecks = true

func checkChunked(chunk, pow int) {
	if chunk < 0 || chunk >= ChunkLimit {
		panic(fmt.Sprintf("marking: chunk out of range: %d", chunk))
	}
	if pow < 0 || pow >= PowLimit {
		panic(fmt.Sprintf("marking: pow out of range: %d", pow))
	}
}

// ---------------------------------------------------------------------------
// Splitting
// ---------------------------------------------------------------------------

// Split divides a chunk task into two tasks covering the two halves of its
// interval, with no gap or overlap:
//
//	<C, P>  ->  <2C-1, P-1>, <2C, P-1>
//
// The left half covers [(2C-2)*2^(P-1), (2C-1)*2^(P-1)), the right half
// [(2C-1)*2^(P-1), 2C*2^(P-1)); their union is the original interval
// [(C-1)*2^P, C*2^P). The initial task for an array of length n can be the
// single value <1, ceil(log2(n))>, with further splitting paid lazily by
// whichever workers need more granularity.
//
// Split panics if the task is not chunked, is already a single-element
// chunk (Pow() == 0), or sits at the chunk-id budget edge: the halves carry
// chunk ids 2C-1 and 2C, so a task with Chunk() >= ChunkLimit/2 cannot be
// split without overflowing ChunkBits. Callers control the split depth and
// must keep it within the budget.
func (t Task) Split() (left, right Task) {
	if taskChecks {
		if !t.IsChunked() {
			panic("marking: split of a plain task")
		}
		if t.Pow() == 0 {
			panic("marking: split of a single-element chunk")
		}
	}
	c, p := t.Chunk(), t.Pow()
	left = NewChunkedTask(t.Ref(), 2*c-1, p-1)
	right = NewChunkedTask(t.Ref(), 2*c, p-1)
	return left, right
}

// ChunkStart returns the first element index covered by a chunk task.
func (t Task) ChunkStart() int {
	return (t.Chunk() - 1) << uint(t.Pow())
}

// ChunkEnd returns the element index one past the last covered by a chunk
// task.
func (t Task) ChunkEnd() int {
	return t.Chunk() << uint(t.Pow())
}

// ChunkLen returns the number of elements covered by a chunk task, 2^Pow().
func (t Task) ChunkLen() int {
	return 1 << uint(t.Pow())
}

// IsPlain reports whether the task denotes a whole reference rather than an
// array sub-range.
func (t Task) IsPlain() bool {
	return !t.IsChunked()
}
