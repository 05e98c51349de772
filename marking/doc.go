// Package marking implements work distribution for a parallel marking phase.
//
// This package contains:
//   - Word-packed mark tasks with recursive array chunking
//   - A ring-buffer task queue with steal support and an overflow stack
//   - A single-slot buffered queue wrapper for the produce-then-consume path
//   - An atomically claimable queue set, one queue per worker
//   - A spin-master termination protocol for detecting global completion
package marking
