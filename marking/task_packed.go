//go:build !(386 || arm || mips || mipsle)

package marking

import "fmt"

// Task encoding on wide-address targets: the chunk data is packed into bits
// stolen from the 64-bit reference word.
//
//	|----------ref----------|-pow-|--chunk--|
//	0                       49    54       64
//
// A plain task has all upper bits zero, so constructing one is just the
// reference with zero padding and the chunked test is a mask against the
// upper bits. With the default budgets this leaves 49 bits of addressable
// space for the reference (512 TB).
const (
	// RefBits is what remains of the word after the chunk and power fields.
	RefBits = 64 - ChunkBits - PowBits

	// RefLimit is the exclusive upper bound for reference addresses.
	RefLimit = 1 << RefBits

	refShift   = 0
	powShift   = refShift + RefBits
	chunkShift = powShift + PowBits

	refMask   uint64 = 1<<RefBits - 1
	powMask   uint64 = 1<<PowBits - 1
	chunkMask uint64 = 1<<ChunkBits - 1
)

// Task is a single packed machine word. See the package constants in task.go
// for the field budgets.
type Task uint64

func checkRef(ref uintptr) {
	if uint64(ref) >= RefLimit {
		panic(fmt.Sprintf("marking: reference exceeds %d-bit budget: %#x", RefBits, ref))
	}
}

// NewTask constructs a plain task for ref.
func NewTask(ref uintptr) Task {
	if taskChecks {
		checkRef(ref)
	}
	return Task(uint64(ref) << refShift)
}

// NewChunkedTask constructs a task covering chunk <chunk, pow> of the array
// at ref. It panics if chunk, pow, or ref exceed their bit budgets.
func NewChunkedTask(ref uintptr, chunk, pow int) Task {
	if taskChecks {
		checkChunked(chunk, pow)
		checkRef(ref)
	}
	return Task(uint64(ref)<<refShift | uint64(pow)<<powShift | uint64(chunk)<<chunkShift)
}

// Ref returns the referenced object handle.
func (t Task) Ref() uintptr {
	return uintptr((uint64(t) >> refShift) & refMask)
}

// Chunk returns the chunk ordinal, or 0 for a plain task.
func (t Task) Chunk() int {
	return int((uint64(t) >> chunkShift) & chunkMask)
}

// Pow returns the chunk size exponent; meaningless for a plain task.
func (t Task) Pow() int {
	return int((uint64(t) >> powShift) & powMask)
}

// IsChunked reports whether the task carries array chunk coordinates.
func (t Task) IsChunked() bool {
	return uint64(t)>>chunkShift != 0
}

// bits returns the ring-slot representation of the task.
func (t Task) bits() uint64 { return uint64(t) }

func taskFromBits(b uint64) Task { return Task(b) }
