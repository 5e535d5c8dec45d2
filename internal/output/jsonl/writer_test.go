// Package jsonl 输出模块测试
package jsonl

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"pairtrade-backtester/internal/config"
	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/core/sim"
)

// **Feature: pairtrade-backtester, Property 14: Trade Output Completeness**
// **Validates: Requirements 6.2**

func TestTradeRecord_OutputCompleteness_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("trades JSON 必含必需字段", prop.ForAll(
		func(entryA, exitA float64, hours int64, long bool) bool {
			dir := model.DirShortALongB
			if long {
				dir = model.DirLongAShortB
			}
			tr := model.TradeRecord{
				ID:               "t",
				Direction:        dir,
				EntryTimestampMs: 0,
				ExitTimestampMs:  hours * 3_600_000,
				ExitZScore:       model.None(),
				EntryPriceA:      entryA,
				ExitPriceA:       exitA,
				ExitReason:       model.ExitEndOfData,
			}

			b, err := json.Marshal(tr)
			if err != nil {
				return false
			}
			var m map[string]any
			if err := json.Unmarshal(b, &m); err != nil {
				return false
			}

			required := []string{
				"id", "direction", "entry_ts_ms", "exit_ts_ms",
				"entry_z_score", "exit_z_score",
				"entry_price_a", "entry_price_b", "exit_price_a", "exit_price_b",
				"pnl_a", "pnl_b", "trade_pnl", "entry_cost", "exit_cost", "net_pnl",
				"duration_hours", "exit_reason", "win",
			}
			for _, k := range required {
				if _, ok := m[k]; !ok {
					return false
				}
			}
			// 无值的 z-score 输出为 null
			return m["exit_z_score"] == nil
		},
		gen.Float64Range(1, 200000),
		gen.Float64Range(1, 200000),
		gen.Int64Range(0, 10_000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lines := 0
	for sc.Scan() {
		lines++
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return lines
}

func TestWriter_WriteAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jsonl")

	w, err := NewWriter(path, 100)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := w.Write(map[string]any{"i": i}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := countLines(t, path); n != 10 {
		t.Fatalf("lines=%d, want 10", n)
	}
	if written, failed := w.Stats(); written != 10 || failed != 0 {
		t.Fatalf("Stats=%d/%d", written, failed)
	}
	if err := w.Write(1); !errors.Is(err, ErrClosed) {
		t.Fatalf("关闭后写入 err=%v", err)
	}
}

func TestWriter_AppendAndTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "a.jsonl")
	for round := 0; round < 2; round++ {
		w, err := NewWriter(path, 10)
		if err != nil {
			t.Fatalf("NewWriter: %v", err)
		}
		_ = w.Write("x")
		_ = w.Close()
	}
	if n := countLines(t, path); n != 2 {
		t.Fatalf("追加模式 lines=%d, want 2", n)
	}

	w, err := NewWriter(path, 10, WithTruncate())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	_ = w.Write("y")
	_ = w.Close()
	if n := countLines(t, path); n != 1 {
		t.Fatalf("覆盖模式 lines=%d, want 1", n)
	}
}

func TestWriter_EncodeFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	w, err := NewWriter(path, 10)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	_ = w.Write(map[string]any{"ok": 1})
	_ = w.Write(make(chan int))
	if err := w.Close(); err == nil {
		t.Fatalf("编码失败应在 Close 时报告")
	}
	if n := countLines(t, path); n != 1 {
		t.Fatalf("lines=%d, want 1", n)
	}
}

func TestSink(t *testing.T) {
	dir := t.TempDir()
	cfg := config.OutputConfig{Dir: dir, TradesEnabled: true, EquityEnabled: true, BufferSize: 8}
	s, err := NewSink(cfg, nil)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}

	s.OnSignal(model.SignalEvent{ID: "s1"})
	s.OnTrade(model.TradeRecord{ID: "t1", ExitReason: model.ExitStopLoss})
	for i := 0; i < 3; i++ {
		s.OnStep(sim.StepRecord{TimestampMs: int64(i), Equity: 10000})
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if n := countLines(t, filepath.Join(dir, TradesFile)); n != 1 {
		t.Fatalf("trades lines=%d", n)
	}
	if n := countLines(t, filepath.Join(dir, EquityFile)); n != 3 {
		t.Fatalf("equity lines=%d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, SignalsFile)); !os.IsNotExist(err) {
		t.Fatalf("未启用的 signals 文件不应创建")
	}
}
