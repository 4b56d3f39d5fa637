// Package metrics collects in-memory request statistics for the /metrics
// endpoint. Everything resets on restart; there is no exporter.
package metrics

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

// Latency samples are kept in a rolling window so a long-lived process
// reports recent behavior rather than its whole lifetime.
const maxLatencySamples = 4096

// Metrics accumulates counters and latency samples across requests.
type Metrics struct {
	total   int64
	success int64

	mu        sync.Mutex
	latencies []int64 // end-to-end handler duration, ms
}

// Snapshot is the computed view served by the /metrics endpoint.
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	SuccessRate   float64 `json:"success_rate"` // percentage 0-100
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	P95LatencyMs  int64   `json:"p95_latency_ms"`
}

func New() *Metrics {
	return &Metrics{latencies: make([]int64, 0, 256)}
}

// Record captures one completed request. success means the response status
// was below 500; client errors still count as served requests.
func (m *Metrics) Record(latencyMs int64, success bool) {
	atomic.AddInt64(&m.total, 1)
	if success {
		atomic.AddInt64(&m.success, 1)
	}

	m.mu.Lock()
	if len(m.latencies) < maxLatencySamples {
		m.latencies = append(m.latencies, latencyMs)
	} else {
		copy(m.latencies, m.latencies[1:])
		m.latencies[maxLatencySamples-1] = latencyMs
	}
	m.mu.Unlock()
}

// Snapshot computes the current statistics.
func (m *Metrics) Snapshot() Snapshot {
	total := atomic.LoadInt64(&m.total)
	success := atomic.LoadInt64(&m.success)

	var successRate float64
	if total > 0 {
		successRate = float64(success) / float64(total) * 100
	}

	m.mu.Lock()
	lats := make([]int64, len(m.latencies))
	copy(lats, m.latencies)
	m.mu.Unlock()

	var avgMs float64
	var p95Ms int64
	if len(lats) > 0 {
		sort.Slice(lats, func(i, j int) bool { return lats[i] < lats[j] })
		var sum int64
		for _, v := range lats {
			sum += v
		}
		avgMs = float64(sum) / float64(len(lats))
		idx := int(math.Ceil(float64(len(lats))*0.95)) - 1
		if idx < 0 {
			idx = 0
		}
		p95Ms = lats[idx]
	}

	return Snapshot{
		TotalRequests: total,
		SuccessRate:   math.Round(successRate*10) / 10,
		AvgLatencyMs:  math.Round(avgMs),
		P95LatencyMs:  p95Ms,
	}
}

// Handler serves the current snapshot as JSON.
func (m *Metrics) Handler(logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m.Snapshot()); err != nil {
			logger.Printf("Failed to encode metrics snapshot: %v", err)
		}
	}
}
