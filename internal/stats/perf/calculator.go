// Package perf 实现回测绩效统计。
//
// 期望值（每笔，USD）：
// EV = p × (R - f) + (1 - p) × (-L - f)
// p_required = (L + f) / (R + L)
// 其中 R 为盈利交易平均毛盈亏，L 为亏损交易平均毛亏损（取负号），f 为每笔平均成本；
// 盈亏分类按净盈亏，EV 因此等于每笔平均净盈亏。
package perf

import (
	"pairtrade-backtester/internal/core/model"
)

type tradeSample struct {
	win      bool
	tradePnL float64
	cost     float64
	netPnL   float64
}

// EVStats EV 统计信息（滚动窗口，USD）
type EVStats struct {
	// Count 样本数
	Count int64 `json:"count"`
	// WinCount 盈利样本数（净盈亏>0）
	WinCount int64 `json:"win_count"`
	// LossCount 亏损样本数（净盈亏<=0）
	LossCount int64 `json:"loss_count"`

	// WinRate 胜率 p
	WinRate float64 `json:"win_rate"`
	// AvgProfit 盈利交易平均毛盈亏 R
	AvgProfit float64 `json:"avg_profit"`
	// AvgLoss 亏损交易平均毛亏损 L（正数表示亏损）
	AvgLoss float64 `json:"avg_loss"`
	// AvgCost 每笔平均成本 f（入场 + 出场）
	AvgCost float64 `json:"avg_cost"`

	// EV 每笔期望净盈亏
	EV float64 `json:"ev"`
	// PRequired 盈亏平衡胜率
	PRequired float64 `json:"p_required"`
}

// Calculator EV 计算器（滚动窗口）
type Calculator struct {
	// windowSize 滚动窗口大小
	windowSize int
	// buf 环形缓冲区
	buf []tradeSample
	// pos 写入位置
	pos int
	// full 是否已填满
	full bool

	// 维护滚动统计（O(1) 更新）
	count     int64
	winCount  int64
	lossCount int64
	sumWinR   float64
	sumLossL  float64
	sumCost   float64
}

// NewCalculator 创建 EV 计算器
// 参数 windowSize: 滚动窗口大小（<=0 时为 1000）
func NewCalculator(windowSize int) *Calculator {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &Calculator{
		windowSize: windowSize,
		buf:        make([]tradeSample, windowSize),
	}
}

// Add 添加一笔已实现交易
func (c *Calculator) Add(tr *model.TradeRecord) {
	if tr == nil {
		return
	}

	s := tradeSample{
		win:      tr.NetPnL > 0,
		tradePnL: tr.TradePnL,
		cost:     tr.TotalCost(),
		netPnL:   tr.NetPnL,
	}

	// 若环已满，移除旧样本对统计的贡献
	if c.full {
		old := c.buf[c.pos]
		c.count--
		if old.win {
			c.winCount--
			c.sumWinR -= old.tradePnL
		} else {
			c.lossCount--
			c.sumLossL += old.tradePnL
		}
		c.sumCost -= old.cost
	}

	c.buf[c.pos] = s
	c.pos++
	if c.pos >= c.windowSize {
		c.pos = 0
		c.full = true
	}

	c.count++
	if s.win {
		c.winCount++
		c.sumWinR += s.tradePnL
	} else {
		c.lossCount++
		c.sumLossL -= s.tradePnL
	}
	c.sumCost += s.cost
}

// Stats 返回滚动窗口统计
func (c *Calculator) Stats() EVStats {
	out := EVStats{
		Count:     c.count,
		WinCount:  c.winCount,
		LossCount: c.lossCount,
	}
	if c.count <= 0 {
		return out
	}

	out.WinRate = float64(c.winCount) / float64(c.count)
	out.AvgCost = c.sumCost / float64(c.count)

	if c.winCount > 0 {
		out.AvgProfit = c.sumWinR / float64(c.winCount)
	}
	if c.lossCount > 0 {
		out.AvgLoss = c.sumLossL / float64(c.lossCount)
	}

	p := out.WinRate
	R := out.AvgProfit
	L := out.AvgLoss
	f := out.AvgCost
	out.EV = p*(R-f) + (1-p)*(-L-f)

	den := R + L
	if den > 0 {
		out.PRequired = (L + f) / den
	} else {
		out.PRequired = 1
	}

	return out
}
