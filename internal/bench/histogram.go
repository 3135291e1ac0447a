package bench

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// latencyHistogram is a thread-safe HDR histogram of request latencies in
// microseconds.
type latencyHistogram struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

func newLatencyHistogram() *latencyHistogram {
	// 1us to 10min, 3 significant figures
	return &latencyHistogram{
		hist: hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3),
	}
}

func (h *latencyHistogram) Record(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.hist.RecordValue(d.Microseconds())
}

// PercentilesMs reports p50/p95/p99 in milliseconds.
func (h *latencyHistogram) PercentilesMs() (p50, p95, p99 float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return float64(h.hist.ValueAtQuantile(50)) / 1000.0,
		float64(h.hist.ValueAtQuantile(95)) / 1000.0,
		float64(h.hist.ValueAtQuantile(99)) / 1000.0
}

func (h *latencyHistogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.TotalCount()
}
