// Package app 组装层测试
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pairtrade-backtester/internal/config"
	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/core/sim"
	"pairtrade-backtester/internal/oracle"
	"pairtrade-backtester/internal/stats/rolling"
	"pairtrade-backtester/internal/store"
)

func approx(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func testStrategy() config.StrategyConfig {
	return config.StrategyConfig{
		Window:             10,
		EntryThreshold:     2.0,
		ExitThreshold:      0.5,
		StopLossThreshold:  3.5,
		ChangeLookbackBars: 2,
	}
}

// writeLegs 写出两腿 CSV：B 恒为 100，A 按比率序列
func writeLegs(t *testing.T, ratios []float64) config.DataConfig {
	t.Helper()
	dir := t.TempDir()
	var a, b strings.Builder
	a.WriteString("timestamp,close\n")
	b.WriteString("timestamp,close\n")
	for i, r := range ratios {
		ts := int64(1_700_000_000_000) + int64(i)*3_600_000
		fmt.Fprintf(&a, "%d,%g\n", ts, 100*r)
		fmt.Fprintf(&b, "%d,100\n", ts)
	}
	cfg := config.DataConfig{
		Format:  "csv",
		PathA:   filepath.Join(dir, "ETH.csv"),
		PathB:   filepath.Join(dir, "BTC.csv"),
		SymbolA: "ETH",
		SymbolB: "BTC",
	}
	if err := os.WriteFile(cfg.PathA, []byte(a.String()), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(cfg.PathB, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return cfg
}

// spikeRatios 10 行在 1.00/1.01 间交替，最后一行跳到 1.05（z ≈ 2.683）
func spikeRatios() []float64 {
	var r []float64
	for i := 0; i < 5; i++ {
		r = append(r, 1.00, 1.01)
	}
	return append(r, 1.05)
}

func TestLoadSeriesAndLatestStep(t *testing.T) {
	series, err := LoadSeries(writeLegs(t, spikeRatios()))
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(series) != 11 {
		t.Fatalf("len=%d, want 11", len(series))
	}

	in, err := LatestStep(series, testStrategy(), nil)
	if err != nil {
		t.Fatalf("LatestStep: %v", err)
	}
	if !in.Row.ZScore.Valid || !approx(in.Row.ZScore.Value, 2.6832815729997477, 1e-6) {
		t.Fatalf("z=%+v", in.Row.ZScore)
	}
	// 与全量计算的最后一行一致
	rows, _ := rolling.Rows(series, testStrategy().Window)
	if rows[len(rows)-1].ZScore != in.Row.ZScore {
		t.Fatalf("尾部计算与全量不一致: %+v vs %+v", in.Row.ZScore, rows[len(rows)-1].ZScore)
	}
	// 两根之前 A=101，当前 A=105
	if !in.Change24hA.Valid || !approx(in.Change24hA.Value, (105.0-101.0)/101.0*100, 1e-9) {
		t.Fatalf("Change24hA=%+v", in.Change24hA)
	}
	if !in.Change24hB.Valid || in.Change24hB.Value != 0 {
		t.Fatalf("Change24hB=%+v", in.Change24hB)
	}

	if _, err := LatestStep(series[:10], testStrategy(), nil); !errors.Is(err, sim.ErrDataInsufficient) {
		t.Fatalf("err=%v, want ErrDataInsufficient", err)
	}
}

func TestLoadSeries_Errors(t *testing.T) {
	if _, err := LoadSeries(config.DataConfig{Format: "csv"}); err == nil {
		t.Fatalf("缺少路径应报错")
	}
	cfg := writeLegs(t, []float64{1, 1})
	cfg.PathB = filepath.Join(t.TempDir(), "missing.csv")
	if _, err := LoadSeries(cfg); err == nil {
		t.Fatalf("文件不存在应报错")
	}
}

func TestBuildOracle(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()

	cfg.Oracle.Mode = config.OracleModeMock
	o, err := BuildOracle(*cfg, nil)
	if err != nil {
		t.Fatalf("BuildOracle mock: %v", err)
	}
	if resp := o.Decide(ctx, model.OracleRequest{ZScore: 2.5}); resp.Decision != model.DecisionEntry {
		t.Fatalf("mock=%+v", resp)
	}

	cfg.Oracle.Mode = config.OracleModePass
	o, _ = BuildOracle(*cfg, nil)
	if resp := o.Decide(ctx, model.OracleRequest{}); resp.Decision != model.DecisionPass {
		t.Fatalf("pass=%+v", resp)
	}

	cfg.Oracle.Mode = config.OracleModeLive
	cfg.Oracle.APIKeyEnv = "PAIRTRADE_TEST_MISSING_KEY"
	t.Setenv(cfg.Oracle.APIKeyEnv, "")
	if _, err := BuildOracle(*cfg, nil); !errors.Is(err, oracle.ErrNoAPIKey) {
		t.Fatalf("err=%v, want ErrNoAPIKey", err)
	}
	t.Setenv(cfg.Oracle.APIKeyEnv, "sk-test")
	if _, err := BuildOracle(*cfg, nil); err != nil {
		t.Fatalf("BuildOracle live: %v", err)
	}
}

func TestRunStep_PersistsState(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"), 90)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	series, err := LoadSeries(writeLegs(t, spikeRatios()))
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	in, err := LatestStep(series, testStrategy(), nil)
	if err != nil {
		t.Fatalf("LatestStep: %v", err)
	}

	ledgerCfg := config.DefaultLedger()
	loop := sim.NewLoop(testStrategy(), ledgerCfg, oracle.MockOracle{}, 70, nil, store.NewObserver(st, nil))
	out, err := RunStep(ctx, loop, st, in, ledgerCfg.InitialCapital)
	if err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if !out.State.IsOpen() || out.State.Direction != model.DirShortALongB {
		t.Fatalf("应开空 A 多 B: %+v", out.State)
	}

	saved, ok, err := st.LoadState(ctx)
	if err != nil || !ok || saved != out.State {
		t.Fatalf("持久化状态=%+v ok=%v err=%v", saved, ok, err)
	}
	sigs, _ := st.ListSignals(ctx, 0)
	if len(sigs) != 1 || !sigs[0].Opened {
		t.Fatalf("signals=%+v", sigs)
	}
	if ms, _ := st.ListMonitors(ctx, 0, 0); len(ms) != 1 || ms[0].Status != model.StatusOpen {
		t.Fatalf("monitors=%+v", ms)
	}

	// 同一行再次处理：已持仓，z 未回落，不会重复开仓
	out2, err := RunStep(ctx, loop, st, in, ledgerCfg.InitialCapital)
	if err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if out2.Signal != nil || out2.Trade != nil || out2.State != out.State {
		t.Fatalf("重复处理改变了状态: %+v", out2)
	}
}

func TestResetState(t *testing.T) {
	open := model.PositionState{
		Status:       model.StatusOpen,
		Direction:    model.DirLongAShortB,
		EntryPriceA:  model.Some(2000),
		EntryPriceB:  model.Some(30000),
		PositionSize: 5000,
		Balance:      model.Some(4992.5),
	}
	got := ResetState(open)
	if got.IsOpen() || got.Balance != model.Some(9992.5) {
		t.Fatalf("ResetState=%+v", got)
	}
	if got := ResetState(model.NoPositionState(model.Some(123))); got.Balance != model.Some(123) || got.IsOpen() {
		t.Fatalf("空仓重置=%+v", got)
	}
	open.Balance = model.Some(-250)
	if got := ResetState(open); got.Balance != model.Some(4750) || got.IsOpen() {
		t.Fatalf("负余额重置=%+v", got)
	}
	open.Balance = model.None()
	if got := ResetState(open); got.Balance.Valid || got.IsOpen() {
		t.Fatalf("余额未知时=%+v", got)
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", SummaryFile)
	if err := WriteJSON(path, map[string]int{"total_trades": 3}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), `"total_trades": 3`) {
		t.Fatalf("内容=%s", b)
	}
}
