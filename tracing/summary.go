package tracing

import (
	"math"
	"slices"
	"time"

	"github.com/BaSui01/agentquorum/recovery"
)

// Percentiles reported per operation.
var Percentiles = []float64{50, 75, 90, 95, 99}

// OperationStats 单类操作的统计
type OperationStats struct {
	Count  int           `json:"count" yaml:"count"`
	Errors int           `json:"errors" yaml:"errors"`
	Total  time.Duration `json:"total_ns" yaml:"total_ns"`
	Mean   time.Duration `json:"mean_ns" yaml:"mean_ns"`
	P50    time.Duration `json:"p50_ns" yaml:"p50_ns"`
	P75    time.Duration `json:"p75_ns" yaml:"p75_ns"`
	P90    time.Duration `json:"p90_ns" yaml:"p90_ns"`
	P95    time.Duration `json:"p95_ns" yaml:"p95_ns"`
	P99    time.Duration `json:"p99_ns" yaml:"p99_ns"`
}

// Summary aggregates the log of one session.
type Summary struct {
	SessionID        string                        `json:"session_id" yaml:"session_id"`
	WorkerID         string                        `json:"worker_id" yaml:"worker_id"`
	StartedAt        time.Time                     `json:"started_at" yaml:"started_at"`
	TotalEntries     int                           `json:"total_entries" yaml:"total_entries"`
	TotalErrors      int                           `json:"total_errors" yaml:"total_errors"`
	Operations       map[string]OperationStats     `json:"operations" yaml:"operations"`
	Agents           map[string]int                `json:"agents" yaml:"agents"`
	ErrorsBySeverity map[recovery.Severity]int     `json:"errors_by_severity" yaml:"errors_by_severity"`
	ErrorsByPattern  map[recovery.ErrorPattern]int `json:"errors_by_pattern" yaml:"errors_by_pattern"`
}

// Summary computes counts, latency percentiles and error breakdowns.
func (t *Tracer) Summary() Summary {
	entries := t.Snapshot()

	s := Summary{
		SessionID:    t.sessionID,
		WorkerID:     t.workerID,
		StartedAt:    t.startedAt,
		TotalEntries: len(entries),
		Operations:   make(map[string]OperationStats),
		Agents:       make(map[string]int),
		ErrorsBySeverity: map[recovery.Severity]int{
			recovery.SeverityCritical: 0,
			recovery.SeverityHigh:     0,
			recovery.SeverityMedium:   0,
			recovery.SeverityLow:      0,
		},
		ErrorsByPattern: make(map[recovery.ErrorPattern]int),
	}

	durations := make(map[string][]time.Duration)
	for _, e := range entries {
		stats := s.Operations[e.Operation]
		stats.Count++
		stats.Total += e.Duration
		if e.IsError() {
			stats.Errors++
			s.TotalErrors++
			s.ErrorsBySeverity[e.ErrorPattern.Severity()]++
			s.ErrorsByPattern[e.ErrorPattern]++
		}
		s.Operations[e.Operation] = stats
		durations[e.Operation] = append(durations[e.Operation], e.Duration)
		if e.AgentName != "" {
			s.Agents[e.AgentName]++
		}
	}

	for op, ds := range durations {
		slices.Sort(ds)
		stats := s.Operations[op]
		stats.Mean = stats.Total / time.Duration(len(ds))
		stats.P50 = Percentile(ds, 50)
		stats.P75 = Percentile(ds, 75)
		stats.P90 = Percentile(ds, 90)
		stats.P95 = Percentile(ds, 95)
		stats.P99 = Percentile(ds, 99)
		s.Operations[op] = stats
	}
	return s
}

// Percentile returns the nearest-rank percentile of sorted durations.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}
