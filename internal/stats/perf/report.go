package perf

import (
	"pairtrade-backtester/internal/core/model"
)

// Summary 回测绩效摘要
type Summary struct {
	// InitialCapital 初始资金
	InitialCapital float64 `json:"initial_capital"`
	// FinalEquity 期末权益（曲线为空时为初始资金）
	FinalEquity float64 `json:"final_equity"`
	// FinalBalance 期末余额
	FinalBalance float64 `json:"final_balance"`
	// TotalReturnPct 总收益率（%）
	TotalReturnPct float64 `json:"total_return_pct"`
	// MaxDrawdown 最大回撤（比例，0~1）
	MaxDrawdown float64 `json:"max_drawdown"`

	// TotalTrades 交易次数
	TotalTrades int `json:"total_trades"`
	// WinningTrades 盈利交易次数
	WinningTrades int `json:"winning_trades"`
	// WinRate 胜率（无交易时为 0）
	WinRate float64 `json:"win_rate"`
	// TotalCosts 累计交易成本
	TotalCosts float64 `json:"total_costs"`
	// TotalNetPnL 累计净盈亏
	TotalNetPnL float64 `json:"total_net_pnl"`
	// AvgWin 盈利交易平均净盈亏
	AvgWin float64 `json:"avg_win"`
	// AvgLoss 亏损交易平均净盈亏（<=0）
	AvgLoss float64 `json:"avg_loss"`
	// AvgDurationHours 平均持仓时长（小时）
	AvgDurationHours float64 `json:"avg_duration_hours"`
	// Expectancy 每笔期望净盈亏
	Expectancy float64 `json:"expectancy"`
	// PRequired 盈亏平衡胜率
	PRequired float64 `json:"p_required"`
	// ExitReasons 各退出原因的交易次数
	ExitReasons map[model.ExitReason]int `json:"exit_reasons"`

	// Signals 入场信号次数
	Signals int `json:"signals"`
	// ApprovedSignals 通过预言机门控的信号次数
	ApprovedSignals int `json:"approved_signals"`
}

// MaxDrawdown 计算最大回撤
// 峰值从初始资金起算；dd = (peak - equity) / peak，peak <= 0 时记为 0
func MaxDrawdown(initial float64, curve []float64) float64 {
	peak := initial
	var maxDD float64
	for _, eq := range curve {
		if eq > peak {
			peak = eq
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - eq) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// WinRate 胜率，无交易时为 0
func WinRate(winning, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(winning) / float64(total)
}

// TotalReturnPct 总收益率（%），初始资金为 0 时返回 0
func TotalReturnPct(initial, final float64) float64 {
	if initial == 0 {
		return 0
	}
	return (final - initial) / initial * 100
}

// Report 汇总回测结果
func Report(res *model.BacktestResult) Summary {
	if res == nil {
		return Summary{ExitReasons: map[model.ExitReason]int{}}
	}

	final := res.FinalEquity()
	s := Summary{
		InitialCapital: res.InitialCapital,
		FinalEquity:    final,
		FinalBalance:   res.FinalBalance,
		TotalReturnPct: TotalReturnPct(res.InitialCapital, final),
		MaxDrawdown:    MaxDrawdown(res.InitialCapital, res.EquityCurve),
		TotalTrades:    res.TotalTrades,
		WinningTrades:  res.WinningTrades,
		WinRate:        WinRate(res.WinningTrades, res.TotalTrades),
		TotalCosts:     res.TotalCosts,
		ExitReasons:    map[model.ExitReason]int{},
		Signals:        len(res.Signals),
	}

	calc := NewCalculator(len(res.Trades))
	var sumWin, sumLoss, sumHours float64
	var losses int
	for i := range res.Trades {
		tr := &res.Trades[i]
		calc.Add(tr)
		s.TotalNetPnL += tr.NetPnL
		sumHours += tr.DurationHours
		s.ExitReasons[tr.ExitReason]++
		if tr.Win {
			sumWin += tr.NetPnL
		} else {
			sumLoss += tr.NetPnL
			losses++
		}
	}
	if wins := len(res.Trades) - losses; wins > 0 {
		s.AvgWin = sumWin / float64(wins)
	}
	if losses > 0 {
		s.AvgLoss = sumLoss / float64(losses)
	}
	if n := len(res.Trades); n > 0 {
		s.AvgDurationHours = sumHours / float64(n)
		ev := calc.Stats()
		s.Expectancy = ev.EV
		s.PRequired = ev.PRequired
	}

	for _, sig := range res.Signals {
		if sig.Approved {
			s.ApprovedSignals++
		}
	}
	return s
}
