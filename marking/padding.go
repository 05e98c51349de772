package marking

// CacheLineSize is the assumed coherence granule. 64 bytes covers the
// common platforms; a wrong guess costs performance, not correctness.
const CacheLineSize = 64

// CacheLinePad occupies one cache line. Placed between fields written by
// different workers to prevent false sharing.
type CacheLinePad struct {
	_ [CacheLineSize]byte
}
