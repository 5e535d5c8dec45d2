// Package latency 时延追踪器测试
package latency

import (
	"math"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"pairtrade-backtester/internal/core/model"
)

// **Feature: pairtrade-backtester, Property 9: Percentile Calculation Correctness**
// **Validates: Requirements 12.6**

func TestTracker_Percentiles(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("P50/P90/P99 与排序分位数一致", prop.ForAll(
		func(lagsMs []int64) bool {
			if len(lagsMs) < 3 {
				return true
			}

			tr := NewTracker(1000)
			for _, ms := range lagsMs {
				tr.Add(time.Duration(ms) * time.Millisecond)
			}

			stats := tr.Stats()

			sorted := make([]int64, len(lagsMs))
			copy(sorted, lagsMs)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

			want50 := float64(sorted[idxQuantile(sorted, 0.50)])
			want90 := float64(sorted[idxQuantile(sorted, 0.90)])
			want99 := float64(sorted[idxQuantile(sorted, 0.99)])

			return stats.Count == int64(len(lagsMs)) &&
				approxEqual(stats.P50Ms, want50, 1e-9) &&
				approxEqual(stats.P90Ms, want90, 1e-9) &&
				approxEqual(stats.P99Ms, want99, 1e-9)
		},
		gen.SliceOfN(20, gen.Int64Range(0, 5000)),
	))

	properties.TestingRun(t)
}

func TestTracker_RollingWindowEvictsOldest(t *testing.T) {
	tr := NewTracker(3)
	for _, ms := range []int64{1000, 1000, 1000, 5, 5, 5} {
		tr.Add(time.Duration(ms) * time.Millisecond)
	}
	stats := tr.Stats()
	if stats.Count != 6 {
		t.Fatalf("Count=%d, want 6", stats.Count)
	}
	if math.Abs(stats.P99Ms-5) > 1e-9 {
		t.Fatalf("P99Ms=%f, want 5", stats.P99Ms)
	}
}

func TestTracker_RecordDecision(t *testing.T) {
	tr := NewTracker(100)

	tr.RecordDecision(model.OracleResponse{Decision: model.DecisionEntry, Confidence: 90}, 10*time.Millisecond, false)
	tr.RecordDecision(model.OracleResponse{Decision: model.DecisionPass, Confidence: 80}, 20*time.Millisecond, false)
	tr.RecordDecision(model.OracleResponse{Decision: model.DecisionPass}, 30*time.Millisecond, true)

	s := tr.Stats()
	if s.Count != 3 || s.Entries != 1 || s.Passes != 2 || s.Failures != 1 {
		t.Fatalf("stats=%+v", s)
	}
	if math.Abs(s.P50Ms-20) > 1e-9 {
		t.Fatalf("P50Ms=%f, want 20", s.P50Ms)
	}
}

func TestTracker_Empty(t *testing.T) {
	s := NewTracker(10).Stats()
	if s.Count != 0 || s.P50Ms != 0 || s.P99Ms != 0 {
		t.Fatalf("空追踪器 stats=%+v", s)
	}
}

func idxQuantile(sorted []int64, q float64) int {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return 0
	}
	if q >= 1 {
		return len(sorted) - 1
	}
	idx := int(float64(len(sorted)-1) * q)
	if idx < 0 {
		return 0
	}
	if idx >= len(sorted) {
		return len(sorted) - 1
	}
	return idx
}

func approxEqual(a, b float64, eps float64) bool {
	return math.Abs(a-b) <= eps
}
