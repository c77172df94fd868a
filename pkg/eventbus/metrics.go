package eventbus

import "sync/atomic"

// Metrics holds the running dispatch counters.
type Metrics struct {
	published atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Published int64 `json:"published"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Published: m.published.Load(),
		Processed: m.processed.Load(),
		Failed:    m.failed.Load(),
	}
}
