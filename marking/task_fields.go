//go:build 386 || arm || mips || mipsle

package marking

// Task encoding on narrow-address targets: a 32-bit address space leaves no
// room to steal chunk bits from the reference, so the fields are stored
// separately. The accessors and splitting semantics are identical to the
// packed variant; only the in-memory representation differs. This variant is
// also handy for debugging the packed one.
type Task struct {
	ref   uintptr
	chunk uint16
	pow   uint8
}

// NewTask constructs a plain task for ref.
func NewTask(ref uintptr) Task {
	return Task{ref: ref}
}

// NewChunkedTask constructs a task covering chunk <chunk, pow> of the array
// at ref. It panics if chunk or pow exceed their bit budgets.
func NewChunkedTask(ref uintptr, chunk, pow int) Task {
	if taskChecks {
		checkChunked(chunk, pow)
	}
	return Task{ref: ref, chunk: uint16(chunk), pow: uint8(pow)}
}

// Ref returns the referenced object handle.
func (t Task) Ref() uintptr { return t.ref }

// Chunk returns the chunk ordinal, or 0 for a plain task.
func (t Task) Chunk() int { return int(t.chunk) }

// Pow returns the chunk size exponent; meaningless for a plain task.
func (t Task) Pow() int { return int(t.pow) }

// IsChunked reports whether the task carries array chunk coordinates.
func (t Task) IsChunked() bool { return t.chunk != 0 }

// bits returns the ring-slot representation: a 32-bit reference, the power,
// and the chunk ordinal fit one 64-bit slot even without stolen bits.
func (t Task) bits() uint64 {
	return uint64(t.ref)<<32 | uint64(t.pow)<<ChunkBits | uint64(t.chunk)
}

func taskFromBits(b uint64) Task {
	return Task{
		ref:   uintptr(b >> 32),
		chunk: uint16(b & (ChunkLimit - 1)),
		pow:   uint8((b >> ChunkBits) & (PowLimit - 1)),
	}
}
