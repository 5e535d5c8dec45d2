// Package perf 绩效统计测试
package perf

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"pairtrade-backtester/internal/core/model"
)

func trade(gross, entryCost, exitCost float64, reason model.ExitReason) model.TradeRecord {
	net := gross - entryCost - exitCost
	return model.TradeRecord{
		TradePnL:      gross,
		EntryCost:     entryCost,
		ExitCost:      exitCost,
		NetPnL:        net,
		Win:           net > 0,
		ExitReason:    reason,
		DurationHours: 2,
	}
}

func TestCalculator_Empty(t *testing.T) {
	stats := NewCalculator(10).Stats()
	if stats.Count != 0 || stats.EV != 0 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestCalculator_EVFormula(t *testing.T) {
	c := NewCalculator(100)

	// 2 赢 1 输；每笔成本 2
	for _, tr := range []model.TradeRecord{
		trade(10, 1, 1, model.ExitMeanReversion),
		trade(20, 1, 1, model.ExitMeanReversion),
		trade(-15, 1, 1, model.ExitStopLoss),
	} {
		tr := tr
		c.Add(&tr)
	}

	stats := c.Stats()
	if stats.Count != 3 || stats.WinCount != 2 || stats.LossCount != 1 {
		t.Fatalf("stats=%+v", stats)
	}
	// p=2/3, R=15, L=15, f=2 => EV=3
	if math.Abs(stats.EV-3.0) > 1e-9 {
		t.Fatalf("EV=%f, want 3", stats.EV)
	}
	if math.Abs(stats.PRequired-17.0/30.0) > 1e-9 {
		t.Fatalf("PRequired=%f, want %f", stats.PRequired, 17.0/30.0)
	}
}

func TestCalculator_RollingWindow(t *testing.T) {
	c := NewCalculator(2)
	for _, g := range []float64{10, -10, 20} {
		tr := trade(g, 0, 0, model.ExitMeanReversion)
		c.Add(&tr)
	}

	stats := c.Stats()
	if stats.Count != 2 || stats.WinCount != 1 || stats.LossCount != 1 {
		t.Fatalf("stats=%+v", stats)
	}
	if math.Abs(stats.AvgProfit-20) > 1e-9 || math.Abs(stats.AvgLoss-10) > 1e-9 {
		t.Fatalf("AvgProfit=%f AvgLoss=%f, want 20/10", stats.AvgProfit, stats.AvgLoss)
	}
}

// **Feature: pairtrade-backtester, Property 10: Expectancy Equals Mean Net PnL**
// **Validates: Requirements 7.2**

func TestCalculator_EVEqualsMeanNet_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 80
	properties := gopter.NewProperties(parameters)

	properties.Property("EV 等于窗口内净盈亏均值", prop.ForAll(
		func(grosses []float64, costs []float64) bool {
			n := len(grosses)
			if len(costs) < n {
				n = len(costs)
			}
			if n == 0 {
				return true
			}
			c := NewCalculator(n)
			var sumNet float64
			for i := 0; i < n; i++ {
				tr := trade(grosses[i], costs[i]/2, costs[i]/2, model.ExitMeanReversion)
				sumNet += tr.NetPnL
				c.Add(&tr)
			}
			return approx(c.Stats().EV, sumNet/float64(n), 1e-6)
		},
		gen.SliceOfN(25, gen.Float64Range(-500, 500)),
		gen.SliceOfN(25, gen.Float64Range(0, 30)),
	))

	properties.TestingRun(t)
}

func TestMaxDrawdown(t *testing.T) {
	cases := []struct {
		initial float64
		curve   []float64
		want    float64
	}{
		{10000, nil, 0},
		{10000, []float64{10000, 10000}, 0},
		{10000, []float64{9000, 9500}, 0.1},
		{10000, []float64{12000, 9000, 13000, 11700}, 0.25},
		{0, []float64{-5, -10}, 0},
	}
	for _, c := range cases {
		if got := MaxDrawdown(c.initial, c.curve); !approx(got, c.want, 1e-12) {
			t.Fatalf("MaxDrawdown(%v, %v)=%f, want %f", c.initial, c.curve, got, c.want)
		}
	}
}

// **Feature: pairtrade-backtester, Property 11: Drawdown Bounds**
// **Validates: Requirements 7.1**

func TestMaxDrawdown_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("正权益曲线的回撤落在 [0, 1)，单调不减曲线回撤为 0", prop.ForAll(
		func(curve []float64) bool {
			dd := MaxDrawdown(10000, curve)
			if dd < 0 || dd >= 1 {
				return false
			}
			mono := make([]float64, len(curve))
			peak := 10000.0
			for i, v := range curve {
				if v > peak {
					peak = v
				}
				mono[i] = peak
			}
			return MaxDrawdown(10000, mono) == 0
		},
		gen.SliceOf(gen.Float64Range(1, 30000)),
	))

	properties.TestingRun(t)
}

func TestReport(t *testing.T) {
	res := &model.BacktestResult{
		InitialCapital: 10000,
		FinalBalance:   10040,
		EquityCurve:    []float64{10000, 9900, 10100, 10040},
		Trades: []model.TradeRecord{
			trade(70, 7.5, 7.5, model.ExitMeanReversion),
			trade(-10, 7.5, 7.5, model.ExitStopLoss),
			trade(20, 7.5, 7.5, model.ExitEndOfData),
		},
		Signals: []model.SignalEvent{
			{Approved: true, Opened: true},
			{Approved: false},
			{Approved: true, Opened: true},
			{Approved: true, Opened: true},
		},
		TotalTrades:   3,
		WinningTrades: 2,
		TotalCosts:    45,
	}

	s := Report(res)
	if !approx(s.FinalEquity, 10040, 1e-9) || !approx(s.TotalReturnPct, 0.4, 1e-9) {
		t.Fatalf("FinalEquity=%f TotalReturnPct=%f", s.FinalEquity, s.TotalReturnPct)
	}
	if !approx(s.MaxDrawdown, 0.01, 1e-12) {
		t.Fatalf("MaxDrawdown=%f, want 0.01", s.MaxDrawdown)
	}
	if !approx(s.WinRate, 2.0/3.0, 1e-12) {
		t.Fatalf("WinRate=%f", s.WinRate)
	}
	// 净盈亏：55, -25, 5
	if !approx(s.TotalNetPnL, 35, 1e-9) || !approx(s.AvgWin, 30, 1e-9) || !approx(s.AvgLoss, -25, 1e-9) {
		t.Fatalf("TotalNetPnL=%f AvgWin=%f AvgLoss=%f", s.TotalNetPnL, s.AvgWin, s.AvgLoss)
	}
	if !approx(s.Expectancy, 35.0/3.0, 1e-9) {
		t.Fatalf("Expectancy=%f", s.Expectancy)
	}
	if s.ExitReasons[model.ExitMeanReversion] != 1 || s.ExitReasons[model.ExitStopLoss] != 1 || s.ExitReasons[model.ExitEndOfData] != 1 {
		t.Fatalf("ExitReasons=%v", s.ExitReasons)
	}
	if s.Signals != 4 || s.ApprovedSignals != 3 || !approx(s.AvgDurationHours, 2, 1e-12) {
		t.Fatalf("summary=%+v", s)
	}
}

func TestReport_NoTrades(t *testing.T) {
	s := Report(&model.BacktestResult{InitialCapital: 10000})
	if s.WinRate != 0 || s.TotalReturnPct != 0 || s.FinalEquity != 10000 || s.MaxDrawdown != 0 {
		t.Fatalf("summary=%+v", s)
	}
	if s.Expectancy != 0 || s.PRequired != 0 {
		t.Fatalf("无交易时不应计算期望: %+v", s)
	}
	if Report(nil).ExitReasons == nil {
		t.Fatalf("nil 结果应返回空摘要")
	}
}

func approx(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}
