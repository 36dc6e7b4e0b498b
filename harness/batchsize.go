package harness

import (
	"errors"
	"log/slog"
)

// ErrResourceExhausted marks an out-of-resource failure inside a forward
// pass. Batch-size probing treats it as recoverable; everything else that
// escapes a model call is fatal to the run.
var ErrResourceExhausted = errors.New("resource exhausted")

// maxProbeAttempts bounds the halving steps during batch-size detection.
const maxProbeAttempts = 10

// probeFunc attempts a speculative forward pass at the candidate batch size.
type probeFunc func(batchSize int) error

// detectBatchSize finds the largest feasible batch size by probing downward
// from maxSize, halving on resource exhaustion. Probing failures that are
// not resource exhaustion fall back to the safe minimum of 1, as does
// exhausting every candidate.
func detectBatchSize(maxSize int, probe probeFunc) int {
	size := maxSize
	for attempt := 0; attempt < maxProbeAttempts; attempt++ {
		if size <= 1 {
			return 1
		}
		err := probe(size)
		if err == nil {
			return size
		}
		if !errors.Is(err, ErrResourceExhausted) {
			slog.Warn("batch size probe failed, falling back to 1", "batch_size", size, "error", err)
			return 1
		}
		size /= 2
	}
	return 1
}
