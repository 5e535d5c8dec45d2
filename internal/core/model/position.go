package model

import (
	"time"
)

// ExitReason 退出原因
type ExitReason string

const (
	// ExitMeanReversion 均值回归退出
	// 当 |z| <= exit 阈值时触发
	ExitMeanReversion ExitReason = "mean_reversion"
	// ExitStopLoss 止损退出
	// 当 z 朝持仓不利方向突破 stop 阈值时触发，优先于均值回归
	ExitStopLoss ExitReason = "stop_loss"
	// ExitEndOfData 数据结束强制平仓
	ExitEndOfData ExitReason = "end_of_data"
)

// Position 双腿配对仓位
// 任意时刻至多存在一个，由 ledger 独占
type Position struct {
	// ID 仓位唯一标识
	ID string
	// Direction 交易方向
	Direction Direction
	// AmountA A 腿数量
	AmountA float64
	// AmountB B 腿数量
	AmountB float64
	// EntryPriceA A 腿入场价
	EntryPriceA float64
	// EntryPriceB B 腿入场价
	EntryPriceB float64
	// NotionalA A 腿入场名义价值
	NotionalA float64
	// NotionalB B 腿入场名义价值
	NotionalB float64
	// EntryCost 入场交易成本
	// 计算公式: (notional_a + notional_b) × cost_rate
	EntryCost float64
	// EntryTimestampMs 入场时间戳（毫秒）
	EntryTimestampMs int64
	// EntryZScore 入场 z-score
	EntryZScore float64
	// EntryRatio 入场比率
	EntryRatio float64
}

// Notional 双腿入场名义价值合计
func (p *Position) Notional() float64 {
	return p.NotionalA + p.NotionalB
}

// LegPnL 按方向计算两腿盈亏
// 多头腿价格上涨盈利，空头腿价格下跌盈利
func (p *Position) LegPnL(priceA, priceB float64) (pnlA, pnlB float64) {
	pnlA = (priceA - p.EntryPriceA) * p.AmountA * p.Direction.SignA()
	pnlB = (priceB - p.EntryPriceB) * p.AmountB * p.Direction.SignB()
	return pnlA, pnlB
}

// EntryTime 入场时间
func (p *Position) EntryTime() time.Time {
	return time.UnixMilli(p.EntryTimestampMs)
}

// TradeRecord 已实现交易记录
// 用于 JSONL 输出与持久化
type TradeRecord struct {
	// ID 仓位唯一标识
	ID string `json:"id"`
	// Direction 交易方向
	Direction Direction `json:"direction"`
	// EntryTimestampMs 入场时间（毫秒）
	EntryTimestampMs int64 `json:"entry_ts_ms"`
	// ExitTimestampMs 出场时间（毫秒）
	ExitTimestampMs int64 `json:"exit_ts_ms"`
	// EntryZScore 入场 z-score
	EntryZScore float64 `json:"entry_z_score"`
	// ExitZScore 出场 z-score，数据结束时可能无值
	ExitZScore NullFloat `json:"exit_z_score"`
	// EntryRatio 入场比率
	EntryRatio float64 `json:"entry_ratio"`
	// AmountA A 腿数量
	AmountA float64 `json:"amount_a"`
	// AmountB B 腿数量
	AmountB float64 `json:"amount_b"`
	// EntryPriceA A 腿入场价
	EntryPriceA float64 `json:"entry_price_a"`
	// EntryPriceB B 腿入场价
	EntryPriceB float64 `json:"entry_price_b"`
	// ExitPriceA A 腿出场价
	ExitPriceA float64 `json:"exit_price_a"`
	// ExitPriceB B 腿出场价
	ExitPriceB float64 `json:"exit_price_b"`
	// NotionalA A 腿入场名义价值
	NotionalA float64 `json:"notional_a"`
	// NotionalB B 腿入场名义价值
	NotionalB float64 `json:"notional_b"`
	// PnLA A 腿盈亏
	PnLA float64 `json:"pnl_a"`
	// PnLB B 腿盈亏
	PnLB float64 `json:"pnl_b"`
	// TradePnL 毛盈亏 = pnl_a + pnl_b
	TradePnL float64 `json:"trade_pnl"`
	// EntryCost 入场成本
	EntryCost float64 `json:"entry_cost"`
	// ExitCost 出场成本
	ExitCost float64 `json:"exit_cost"`
	// NetPnL 净盈亏 = trade_pnl - entry_cost - exit_cost
	NetPnL float64 `json:"net_pnl"`
	// PnLPct 净盈亏占名义价值百分比
	PnLPct float64 `json:"pnl_pct"`
	// DurationHours 持仓时长（小时）
	DurationHours float64 `json:"duration_hours"`
	// ExitReason 退出原因
	ExitReason ExitReason `json:"exit_reason"`
	// Win 是否盈利（net_pnl > 0）
	Win bool `json:"win"`
}

// TotalCost 入场与出场成本合计
func (t *TradeRecord) TotalCost() float64 {
	return t.EntryCost + t.ExitCost
}

// PositionStatus 持仓状态
type PositionStatus string

const (
	// StatusNoPosition 空仓
	StatusNoPosition PositionStatus = "NO_POSITION"
	// StatusOpen 持仓中
	StatusOpen PositionStatus = "OPEN"
)

// PositionState 持仓状态交接结构
// 供无状态宿主进程在两次调用之间外部持久化
type PositionState struct {
	// Status 状态: NO_POSITION 或 OPEN
	Status PositionStatus `json:"status"`
	// PositionID 仓位标识（OPEN 时）
	PositionID string `json:"position_id,omitempty"`
	// Direction 方向（OPEN 时）
	Direction Direction `json:"direction,omitempty"`
	// EntryZScore 入场 z-score
	EntryZScore NullFloat `json:"entry_z_score"`
	// EntryRatio 入场比率
	EntryRatio NullFloat `json:"entry_ratio"`
	// EntryPriceA A 腿入场价
	EntryPriceA NullFloat `json:"entry_price_a"`
	// EntryPriceB B 腿入场价
	EntryPriceB NullFloat `json:"entry_price_b"`
	// PositionSize 双腿名义价值合计（USD）
	PositionSize float64 `json:"position_size"`
	// EntryTimestampMs 入场时间戳（毫秒）
	EntryTimestampMs int64 `json:"entry_timestamp"`
	// Balance 可用余额，可为负；无值表示沿用初始资金
	Balance NullFloat `json:"balance"`
}

// IsOpen 判断是否持仓中
func (s PositionState) IsOpen() bool {
	return s.Status == StatusOpen
}

// NoPositionState 返回空仓状态
func NoPositionState(balance NullFloat) PositionState {
	return PositionState{Status: StatusNoPosition, Balance: balance}
}

// BacktestResult 回测结果
// 追加式构建，Run 完成后不可变
type BacktestResult struct {
	// InitialCapital 初始资金
	InitialCapital float64 `json:"initial_capital"`
	// FinalBalance 最终余额
	FinalBalance float64 `json:"final_balance"`
	// EquityCurve 每个时间步的权益
	EquityCurve []float64 `json:"equity_curve"`
	// Timestamps 与 EquityCurve 平行的时间戳（毫秒）
	Timestamps []int64 `json:"timestamps"`
	// ZScores 与 EquityCurve 平行的 z-score
	ZScores []NullFloat `json:"z_scores"`
	// Trades 已实现交易
	Trades []TradeRecord `json:"trades"`
	// Signals 入场信号事件
	Signals []SignalEvent `json:"signals"`
	// TotalTrades 交易次数
	TotalTrades int `json:"total_trades"`
	// WinningTrades 盈利交易次数
	WinningTrades int `json:"winning_trades"`
	// TotalCosts 累计交易成本
	TotalCosts float64 `json:"total_costs"`
}

// FinalEquity 最后一个权益点，曲线为空时返回初始资金
func (r *BacktestResult) FinalEquity() float64 {
	if len(r.EquityCurve) == 0 {
		return r.InitialCapital
	}
	return r.EquityCurve[len(r.EquityCurve)-1]
}
