package handler

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
)

const (
	latencyWindow = 1000
	healthyP95    = 300 * time.Millisecond
)

// Telemetry keeps per-endpoint call counts and a rolling latency window.
type Telemetry struct {
	mu        sync.Mutex
	endpoints map[string]*endpointStats
	sources   map[string]func() map[string]any
}

type endpointStats struct {
	requests  int64
	errors    int64
	totalTime time.Duration
	latencies []time.Duration
	next      int
}

func NewTelemetry() *Telemetry {
	return &Telemetry{
		endpoints: make(map[string]*endpointStats),
		sources:   make(map[string]func() map[string]any),
	}
}

// AddSource includes another component's counters in Snapshot under name.
func (t *Telemetry) AddSource(name string, snapshot func() map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources[name] = snapshot
}

// Observe records one call. Only 5xx responses count as errors.
func (t *Telemetry) Observe(endpoint string, status int, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.endpoints[endpoint]
	if !ok {
		st = &endpointStats{}
		t.endpoints[endpoint] = st
	}
	st.requests++
	if status >= http.StatusInternalServerError {
		st.errors++
	}
	st.totalTime += elapsed
	if len(st.latencies) < latencyWindow {
		st.latencies = append(st.latencies, elapsed)
	} else {
		st.latencies[st.next] = elapsed
		st.next = (st.next + 1) % latencyWindow
	}
}

func (t *Telemetry) Snapshot() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	endpoints := make(map[string]any, len(t.endpoints))
	status := "HEALTHY"
	for name, st := range t.endpoints {
		p95 := percentile(st.latencies, 0.95)
		if p95 >= healthyP95 {
			status = "DEGRADED"
		}
		var errorRate, avg float64
		if st.requests > 0 {
			errorRate = float64(st.errors) / float64(st.requests) * 100
			avg = float64(st.totalTime.Milliseconds()) / float64(st.requests)
		}
		endpoints[name] = map[string]any{
			"requests":       st.requests,
			"errors":         st.errors,
			"error_rate":     errorRate,
			"avg_latency_ms": avg,
			"p95_latency_ms": p95.Milliseconds(),
		}
	}

	out := map[string]any{
		"status":    status,
		"endpoints": endpoints,
	}
	for name, fn := range t.sources {
		out[name] = fn()
	}
	return out
}

func percentile(samples []time.Duration, q float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Instrument wraps a route so its calls show up under endpoint.
func (t *Telemetry) Instrument(endpoint string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next(rec, r, ps)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		t.Observe(endpoint, rec.status, time.Since(start))
	}
}
