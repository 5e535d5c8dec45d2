// Package latency 实现决策预言机调用时延的滚动统计。
// 按判定结果（ENTRY/PASS/失败）分别计数，时延分位数基于全部调用。
package latency

import (
	"sort"
	"sync"
	"time"

	"pairtrade-backtester/internal/core/model"
)

// LatencyStats 时延统计快照（滚动窗口）
// 单位：毫秒。
type LatencyStats struct {
	// Count 调用总数（累计）
	Count int64 `json:"count"`
	// Entries ENTRY 判定次数
	Entries int64 `json:"entries"`
	// Passes PASS 判定次数（含失败降级）
	Passes int64 `json:"passes"`
	// Failures 失败降级次数
	Failures int64 `json:"failures"`

	// P50Ms P50 时延（毫秒）
	P50Ms float64 `json:"p50_ms"`
	// P90Ms P90 时延（毫秒）
	P90Ms float64 `json:"p90_ms"`
	// P99Ms P99 时延（毫秒）
	P99Ms float64 `json:"p99_ms"`
}

type rollingWindow struct {
	size  int
	buf   []int64
	pos   int
	count int64
	full  bool

	mu sync.Mutex
}

func newRollingWindow(size int) *rollingWindow {
	return &rollingWindow{size: size, buf: make([]int64, 0, size)}
}

func (w *rollingWindow) add(v int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.count++
	if w.size <= 0 {
		return
	}

	if !w.full {
		w.buf = append(w.buf, v)
		if len(w.buf) == w.size {
			w.full = true
			w.pos = 0
		}
		return
	}

	w.buf[w.pos] = v
	w.pos++
	if w.pos >= w.size {
		w.pos = 0
	}
}

func (w *rollingWindow) snapshotQuantiles(qs ...float64) (count int64, values []int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	count = w.count
	if len(w.buf) == 0 {
		return count, make([]int64, len(qs))
	}

	tmp := make([]int64, len(w.buf))
	copy(tmp, w.buf)
	sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })

	values = make([]int64, len(qs))
	n := len(tmp)
	for i, q := range qs {
		if q <= 0 {
			values[i] = tmp[0]
			continue
		}
		if q >= 1 {
			values[i] = tmp[n-1]
			continue
		}
		idx := int(float64(n-1) * q)
		values[i] = tmp[idx]
	}
	return count, values
}

// Tracker 预言机调用时延追踪器
// 并发安全，可同时作为多个 Guard 的记录器
type Tracker struct {
	window *rollingWindow

	mu       sync.Mutex
	entries  int64
	passes   int64
	failures int64
}

// NewTracker 创建时延追踪器
// 参数 windowSize: 滚动窗口大小（建议 1000），用于 P50/P90/P99。
func NewTracker(windowSize int) *Tracker {
	return &Tracker{window: newRollingWindow(windowSize)}
}

// Add 记录一次调用时延
func (t *Tracker) Add(elapsed time.Duration) {
	if elapsed < 0 {
		elapsed = 0
	}
	t.window.add(elapsed.Nanoseconds())
}

// RecordDecision 实现 oracle.Recorder
func (t *Tracker) RecordDecision(resp model.OracleResponse, elapsed time.Duration, failed bool) {
	t.Add(elapsed)

	t.mu.Lock()
	defer t.mu.Unlock()
	if failed {
		t.failures++
	}
	if resp.Decision == model.DecisionEntry {
		t.entries++
	} else {
		t.passes++
	}
}

// Stats 获取统计快照
func (t *Tracker) Stats() LatencyStats {
	count, qs := t.window.snapshotQuantiles(0.50, 0.90, 0.99)

	t.mu.Lock()
	defer t.mu.Unlock()
	return LatencyStats{
		Count:    count,
		Entries:  t.entries,
		Passes:   t.passes,
		Failures: t.failures,
		P50Ms:    float64(qs[0]) / 1_000_000.0,
		P90Ms:    float64(qs[1]) / 1_000_000.0,
		P99Ms:    float64(qs[2]) / 1_000_000.0,
	}
}
