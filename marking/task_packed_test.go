//go:build !(386 || arm || mips || mipsle)

package marking

import "testing"

// The packed encoding steals chunk and power bits from the reference word,
// so references must fit the remaining budget.
func TestPackedRefBudget(t *testing.T) {
	if RefBits != 64-ChunkBits-PowBits {
		t.Errorf("RefBits = %d, want %d", RefBits, 64-ChunkBits-PowBits)
	}

	max := uintptr(RefLimit - 1)
	task := NewTask(max)
	if task.Ref() != max {
		t.Errorf("Ref() = %#x, want %#x", task.Ref(), max)
	}

	mustPanic(t, "NewTask(ref out of budget)", func() {
		NewTask(uintptr(RefLimit))
	})
	mustPanic(t, "NewChunkedTask(ref out of budget)", func() {
		NewChunkedTask(uintptr(RefLimit), 1, 1)
	})
}

// A plain task is the reference word with zero padding: the fast path the
// encoding is designed around.
func TestPackedPlainIsBareWord(t *testing.T) {
	task := NewTask(0xCAFE)
	if uint64(task) != 0xCAFE {
		t.Errorf("packed plain task = %#x, want %#x", uint64(task), 0xCAFE)
	}
}

func TestTaskBitsRoundTrip(t *testing.T) {
	for _, task := range []Task{
		NewTask(0),
		NewTask(0x7FFF),
		NewChunkedTask(0x1000, 5, 3),
		NewChunkedTask(0, ChunkLimit-1, PowLimit-1),
	} {
		got := taskFromBits(task.bits())
		if got != task {
			t.Errorf("taskFromBits(bits) = %v, want %v", got, task)
		}
	}
}
