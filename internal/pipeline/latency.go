package pipeline

import (
	"sort"
	"sync"
)

// latencyWindow keeps the most recent per-record latencies for status
// reporting. Bounded; oldest samples are overwritten.
type latencyWindow struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]float64, size)}
}

func (w *latencyWindow) add(ms float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = ms
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

// stats returns the average and 95th percentile of the window.
func (w *latencyWindow) stats() (avg, p95 float64) {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	if n == 0 {
		w.mu.Unlock()
		return 0, 0
	}
	buf := make([]float64, n)
	copy(buf, w.samples[:n])
	w.mu.Unlock()

	sum := 0.0
	for _, v := range buf {
		sum += v
	}
	sort.Float64s(buf)
	idx := int(0.95 * float64(len(buf)))
	if idx >= len(buf) {
		idx = len(buf) - 1
	}
	return sum / float64(len(buf)), buf[idx]
}
