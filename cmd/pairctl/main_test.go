package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"pairtrade-backtester/internal/config"
	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/store"
	"pairtrade-backtester/internal/util/timeutil"
)

func openStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "pairctl.db"), 90)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func openState() model.PositionState {
	return model.PositionState{
		Status:           model.StatusOpen,
		PositionID:       "pos-1",
		Direction:        model.DirShortALongB,
		EntryZScore:      model.Some(2.3),
		EntryPriceA:      model.Some(2000),
		EntryPriceB:      model.Some(30000),
		PositionSize:     5000,
		EntryTimestampMs: 1_700_000_000_000,
		Balance:          model.Some(4992.5),
	}
}

func TestCmdStatus(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	cfg := config.Default()

	var out bytes.Buffer
	if err := cmdStatus(ctx, st, cfg, &out); err != nil {
		t.Fatalf("cmdStatus: %v", err)
	}
	if !strings.Contains(out.String(), "未初始化") || !strings.Contains(out.String(), "无数据") {
		t.Fatalf("空库输出=%s", out.String())
	}

	_ = st.SaveState(ctx, openState())
	_ = st.SaveMonitor(ctx, store.MonitorRecord{TimestampMs: 1_700_000_000_000, ZScore: model.Some(2.3), PriceA: 2000, PriceB: 30000, Status: model.StatusOpen, Equity: 9992.5})
	out.Reset()
	if err := cmdStatus(ctx, st, cfg, &out); err != nil {
		t.Fatalf("cmdStatus: %v", err)
	}
	for _, want := range []string{"OPEN", "short_a_long_b", "ETH_entry", "z_score: 2.3000"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("输出缺少 %q:\n%s", want, out.String())
		}
	}
}

func TestCmdTrades(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	for i, pnl := range []float64{55.9, -20, 10} {
		_ = st.SaveTrade(ctx, model.TradeRecord{
			ID:              string(rune('a' + i)),
			ExitTimestampMs: int64(i+1) * timeutil.HourMs,
			NetPnL:          pnl,
			Win:             pnl > 0,
			ExitReason:      model.ExitMeanReversion,
		})
	}

	var out bytes.Buffer
	if err := cmdTrades(ctx, st, []string{"-limit", "2"}, &out); err != nil {
		t.Fatalf("cmdTrades: %v", err)
	}
	if !strings.Contains(out.String(), "合计: 2 笔 | 盈利: 1 | 净盈亏: $-10.00") {
		t.Fatalf("limit 输出=%s", out.String())
	}

	out.Reset()
	if err := cmdTrades(ctx, st, []string{"-all"}, &out); err != nil {
		t.Fatalf("cmdTrades: %v", err)
	}
	if !strings.Contains(out.String(), "合计: 3 笔 | 盈利: 2 | 净盈亏: $45.90") {
		t.Fatalf("all 输出=%s", out.String())
	}
}

func TestCmdLogs_Empty(t *testing.T) {
	var out bytes.Buffer
	if err := cmdLogs(context.Background(), openStore(t), []string{"-days", "3"}, &out); err != nil {
		t.Fatalf("cmdLogs: %v", err)
	}
	if !strings.Contains(out.String(), "最近 3 天无监控数据") {
		t.Fatalf("输出=%s", out.String())
	}
}

func TestCmdStop(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	_ = st.SaveState(ctx, openState())

	// 未确认则保持原状态
	var out bytes.Buffer
	if err := cmdStop(ctx, st, nil, strings.NewReader("n\n"), &out); err != nil {
		t.Fatalf("cmdStop: %v", err)
	}
	if got, _, _ := st.LoadState(ctx); !got.IsOpen() {
		t.Fatalf("取消后状态不应改变: %+v", got)
	}

	out.Reset()
	if err := cmdStop(ctx, st, []string{"-yes"}, strings.NewReader(""), &out); err != nil {
		t.Fatalf("cmdStop: %v", err)
	}
	got, _, _ := st.LoadState(ctx)
	if got.IsOpen() || got.Balance != model.Some(9992.5) {
		t.Fatalf("重置后状态=%+v", got)
	}
}
